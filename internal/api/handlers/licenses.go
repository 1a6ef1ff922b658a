// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hwidgate/hwidgate/internal/license"
	"github.com/hwidgate/hwidgate/internal/metrics"
	"github.com/hwidgate/hwidgate/internal/models"
	"github.com/hwidgate/hwidgate/internal/services"
)

// LicenseService is what the handlers need from services.LicenseService.
type LicenseService interface {
	Check(ctx context.Context, req services.CheckRequest) (license.Status, error)
	Grant(ctx context.Context, req services.GrantRequest) (*services.GrantResult, error)
	List(ctx context.Context, req services.ListRequest) ([]*models.License, error)
}

// LicenseHandler handles license related HTTP requests
type LicenseHandler struct {
	service LicenseService
	metrics *metrics.Manager
}

// NewLicenseHandler creates a new license handler. metricsManager may be nil.
func NewLicenseHandler(service LicenseService, metricsManager *metrics.Manager) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		metrics: metricsManager,
	}
}

// CheckResponse is returned by Check. Date is omitted for unknown HWIDs.
type CheckResponse struct {
	Status string      `json:"status"`
	Date   *civil.Date `json:"date,omitempty"`
}

// GrantResponse is returned by Grant
type GrantResponse struct {
	Status string     `json:"status"`
	HWID   string     `json:"hwid"`
	Date   civil.Date `json:"date"`
	Mode   string     `json:"mode"`
}

// LicenseInfo is one entry of ListResponse
type LicenseInfo struct {
	HWID string     `json:"hwid"`
	Date civil.Date `json:"date"`
}

// ListResponse is returned by List
type ListResponse struct {
	Status   string        `json:"status"`
	Licenses []LicenseInfo `json:"licenses"`
}

// RegisterRoutes registers license routes
func (h *LicenseHandler) RegisterRoutes(r chi.Router) {
	r.Post("/check", h.Check)
	r.Post("/add", h.Grant)
	r.Post("/list", h.List)
}

// Check reports whether a HWID holds an active license
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req services.CheckRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		h.badBody(w, "check", err)
		return
	}

	status, err := h.service.Check(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "check", err)
		return
	}

	h.metrics.ObserveRequest("check", string(status.State))

	RespondJSON(w, http.StatusOK, CheckResponse{
		Status: string(status.State),
		Date:   status.Date,
	})
}

// Grant sets, extends or bans a HWID
func (h *LicenseHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req services.GrantRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		h.badBody(w, "grant", err)
		return
	}

	result, err := h.service.Grant(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "grant", err)
		return
	}

	h.metrics.ObserveRequest("grant", result.Mode.String())

	RespondJSON(w, http.StatusOK, GrantResponse{
		Status: "success",
		HWID:   result.HWID,
		Date:   result.Date,
		Mode:   result.Mode.String(),
	})
}

// List returns every license ordered by expiry date, latest first
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	var req services.ListRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		h.badBody(w, "list", err)
		return
	}

	licenses, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "list", err)
		return
	}

	h.metrics.ObserveRequest("list", "success")

	infos := make([]LicenseInfo, 0, len(licenses))
	for _, l := range licenses {
		infos = append(infos, LicenseInfo{
			HWID: l.HWID,
			Date: l.ExpiryDate,
		})
	}

	RespondJSON(w, http.StatusOK, ListResponse{
		Status:   "success",
		Licenses: infos,
	})
}

func (h *LicenseHandler) badBody(w http.ResponseWriter, op string, err error) {
	log.Debug().Err(err).Str("operation", op).Msg("Failed to decode request body")
	h.metrics.ObserveRequest(op, "invalid")
	RespondError(w, http.StatusBadRequest, "Invalid request body")
}

// respondServiceError maps service error kinds onto status codes. Storage
// details stay in the log.
func (h *LicenseHandler) respondServiceError(w http.ResponseWriter, op string, err error) {
	var (
		verr *services.ValidationError
		aerr *services.AuthError
		serr *services.StorageError
	)

	switch {
	case errors.As(err, &verr):
		h.metrics.ObserveRequest(op, "invalid")
		RespondError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &aerr):
		log.Warn().Str("operation", op).Str("reason", aerr.Reason).Msg("Rejected admin request")
		h.metrics.ObserveRequest(op, "forbidden")
		RespondError(w, http.StatusForbidden, "Forbidden")
	case errors.As(err, &serr):
		log.Error().Err(serr.Err).Str("operation", op).Msg("License storage failed")
		h.metrics.ObserveRequest(op, "error")
		RespondError(w, http.StatusInternalServerError, "storage error during "+serr.Op)
	default:
		log.Error().Err(err).Str("operation", op).Msg("License request failed")
		h.metrics.ObserveRequest(op, "error")
		RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
