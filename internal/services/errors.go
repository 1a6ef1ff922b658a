// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import "fmt"

// ValidationError reports a request that can never succeed as sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError reports a missing or wrong shared secret.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "forbidden: " + e.Reason
}

// StorageError wraps a failure of the license store. Op names the
// operation and is safe to show to clients; Err is not.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
