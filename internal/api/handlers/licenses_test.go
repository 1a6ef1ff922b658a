// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwidgate/hwidgate/internal/license"
	"github.com/hwidgate/hwidgate/internal/models"
	"github.com/hwidgate/hwidgate/internal/services"
)

type failingService struct {
	err error
}

func (f *failingService) Check(context.Context, services.CheckRequest) (license.Status, error) {
	return license.Status{}, f.err
}

func (f *failingService) Grant(context.Context, services.GrantRequest) (*services.GrantResult, error) {
	return nil, f.err
}

func (f *failingService) List(context.Context, services.ListRequest) ([]*models.License, error) {
	return nil, f.err
}

func TestServiceErrorMapping(t *testing.T) {
	dsnErr := errors.New(`pq: password authentication failed for user "admin" (postgres://admin:hunter2@db/licenses)`)

	tests := []struct {
		name     string
		err      error
		code     int
		message  string
		leakFree bool
	}{
		{
			name:    "validation",
			err:     &services.ValidationError{Field: "hwid", Message: "is required"},
			code:    http.StatusBadRequest,
			message: "hwid: is required",
		},
		{
			name:    "auth",
			err:     &services.AuthError{Reason: "invalid secret"},
			code:    http.StatusForbidden,
			message: "Forbidden",
		},
		{
			name:     "storage",
			err:      &services.StorageError{Op: "check", Err: dsnErr},
			code:     http.StatusInternalServerError,
			message:  "storage error during check",
			leakFree: true,
		},
		{
			name:     "unknown",
			err:      dsnErr,
			code:     http.StatusInternalServerError,
			message:  "internal error",
			leakFree: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLicenseHandler(&failingService{err: tt.err}, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"hwid":"A"}`))
			h.Check(rec, req)

			require.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"status":"error","error":"`+tt.message+`"}`, rec.Body.String())

			if tt.leakFree {
				assert.NotContains(t, rec.Body.String(), "hunter2")
				assert.NotContains(t, rec.Body.String(), "postgres://")
			}
		})
	}
}

func TestDecodeJSONBodyLimit(t *testing.T) {
	h := NewLicenseHandler(&failingService{}, nil)

	huge := `{"hwid":"` + strings.Repeat("x", maxBodyBytes+1) + `"}`
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(huge)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
