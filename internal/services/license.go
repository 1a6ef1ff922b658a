// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/hwidgate/hwidgate/internal/license"
	"github.com/hwidgate/hwidgate/internal/models"
)

// LicenseStore is the persistence the service needs.
type LicenseStore interface {
	Lookup(ctx context.Context, hwid string) (civil.Date, bool, error)
	Modify(ctx context.Context, hwid string, fn models.ModifyFunc) (civil.Date, error)
	List(ctx context.Context) ([]*models.License, error)
}

// SecretVerifier checks the shared admin secret.
type SecretVerifier interface {
	Verify(presented string) bool
}

// CheckRequest is the body of a client license check.
type CheckRequest struct {
	HWID string `json:"hwid" validate:"required,max=255"`
}

// GrantRequest is the body of a grant, extend or ban call. Days and Mode
// fall back to the configured default and ModeSet when omitted.
type GrantRequest struct {
	Secret string `json:"secret"`
	HWID   string `json:"hwid" validate:"required,max=255"`
	Days   *int   `json:"days" validate:"omitempty,min=0,max=36500"`
	Mode   string `json:"mode"`
}

// ListRequest is the body of a list call.
type ListRequest struct {
	Secret string `json:"secret"`
}

// GrantResult is the outcome of a successful grant.
type GrantResult struct {
	HWID string
	Date civil.Date
	Mode license.Mode
}

// LicenseService answers checks and applies grants on top of a LicenseStore.
type LicenseService struct {
	store       LicenseStore
	auth        SecretVerifier
	validate    *validator.Validate
	location    *time.Location
	defaultDays int
	now         func() time.Time
}

type Option func(*LicenseService)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) {
		s.now = now
	}
}

// WithLocation sets the time zone used to derive the current date.
func WithLocation(loc *time.Location) Option {
	return func(s *LicenseService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithDefaultDays sets the grant length used when a request omits days.
func WithDefaultDays(days int) Option {
	return func(s *LicenseService) {
		s.defaultDays = days
	}
}

// NewLicenseService creates a new license service
func NewLicenseService(store LicenseStore, auth SecretVerifier, opts ...Option) *LicenseService {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &LicenseService{
		store:       store,
		auth:        auth,
		validate:    v,
		location:    time.Local,
		defaultDays: license.DefaultDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date in the service's time zone.
func (s *LicenseService) Today() civil.Date {
	return civil.DateOf(s.now().In(s.location))
}

// DefaultDays is the grant length used when days is omitted.
func (s *LicenseService) DefaultDays() int {
	return s.defaultDays
}

// Check classifies the stored license for a HWID.
func (s *LicenseService) Check(ctx context.Context, req CheckRequest) (license.Status, error) {
	if err := s.validateStruct(req); err != nil {
		return license.Status{}, err
	}

	expiry, found, err := s.store.Lookup(ctx, req.HWID)
	if err != nil {
		return license.Status{}, &StorageError{Op: "check", Err: err}
	}

	today := s.Today()
	if !found {
		return license.Classify(nil, today), nil
	}
	return license.Classify(&expiry, today), nil
}

// Grant authorizes and applies a grant, extension or ban.
func (s *LicenseService) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	if err := s.authorize(req.Secret); err != nil {
		return nil, err
	}

	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	mode, err := license.ParseMode(req.Mode)
	if err != nil {
		return nil, &ValidationError{Field: "mode", Message: "must be one of set, add, ban"}
	}

	days := s.defaultDays
	if req.Days != nil {
		days = *req.Days
	}

	return s.Apply(ctx, req.HWID, mode, days)
}

// Apply computes and stores the new expiry for hwid without checking the
// secret. Callers must already be trusted, such as the local CLI.
func (s *LicenseService) Apply(ctx context.Context, hwid string, mode license.Mode, days int) (*GrantResult, error) {
	if hwid == "" {
		return nil, &ValidationError{Field: "hwid", Message: "is required"}
	}
	if days < 0 || days > license.MaxDays {
		return nil, &ValidationError{Field: "days", Message: fmt.Sprintf("must be between 0 and %d", license.MaxDays)}
	}
	if !mode.Valid() {
		return nil, &ValidationError{Field: "mode", Message: "must be one of set, add, ban"}
	}

	today := s.Today()
	date, err := s.store.Modify(ctx, hwid, func(current *civil.Date) (civil.Date, error) {
		next := license.NextExpiry(current, mode, days, today)
		if !license.InRange(next) {
			return civil.Date{}, &ValidationError{
				Field:   "days",
				Message: fmt.Sprintf("would move the expiry past %s", license.MaxDate),
			}
		}
		return next, nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, &StorageError{Op: "grant", Err: err}
	}

	log.Info().
		Str("hwid", MaskHWID(hwid)).
		Str("mode", mode.String()).
		Int("days", days).
		Str("date", date.String()).
		Msg("License updated")

	return &GrantResult{
		HWID: hwid,
		Date: date,
		Mode: mode,
	}, nil
}

// List authorizes and returns every license, latest expiry first.
func (s *LicenseService) List(ctx context.Context, req ListRequest) ([]*models.License, error) {
	if err := s.authorize(req.Secret); err != nil {
		return nil, err
	}
	return s.Licenses(ctx)
}

// Licenses returns every license without checking the secret.
func (s *LicenseService) Licenses(ctx context.Context) ([]*models.License, error) {
	licenses, err := s.store.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return licenses, nil
}

func (s *LicenseService) authorize(secret string) error {
	if s.auth == nil {
		return &AuthError{Reason: "no api secret configured"}
	}
	if !s.auth.Verify(secret) {
		return &AuthError{Reason: "invalid secret"}
	}
	return nil
}

func (s *LicenseService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Message: describeFieldError(fe)}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// MaskHWID shortens a HWID for logs.
func MaskHWID(hwid string) string {
	if len(hwid) <= 8 {
		return "***"
	}
	return hwid[:8] + "***"
}
