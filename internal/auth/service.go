// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrNoSecretConfigured = errors.New("no api secret configured")

// Service checks the shared secret that guards grant and list requests.
// The secret is a capability token: whoever holds it can administer every
// license.
type Service struct {
	secret     []byte
	secretHash string
}

// NewService builds a Service from the configured secret. A non-empty
// secretHash takes precedence over the plaintext secret.
func NewService(secret, secretHash string) (*Service, error) {
	if secretHash != "" {
		if _, _, _, err := decodeHash(secretHash); err != nil {
			return nil, fmt.Errorf("invalid apiSecretHash: %w", err)
		}
		return &Service{secretHash: secretHash}, nil
	}

	return &Service{secret: []byte(secret)}, nil
}

// Configured reports whether admin requests can succeed at all.
func (s *Service) Configured() bool {
	return s != nil && (s.secretHash != "" || len(s.secret) > 0)
}

// Verify reports whether presented matches the configured secret.
func (s *Service) Verify(presented string) bool {
	if !s.Configured() {
		return false
	}

	if s.secretHash != "" {
		ok, err := VerifySecret(presented, s.secretHash)
		if err != nil {
			log.Error().Err(err).Msg("Failed to verify api secret")
			return false
		}
		return ok
	}

	return subtle.ConstantTimeCompare([]byte(presented), s.secret) == 1
}
