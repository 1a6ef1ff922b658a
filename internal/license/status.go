// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import "cloud.google.com/go/civil"

// State is the client-facing classification of a HWID.
type State string

const (
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateNotFound State = "not_found"
)

// Status is the result of classifying a stored expiry.
// Date is nil only for StateNotFound.
type Status struct {
	State State
	Date  *civil.Date
}

// Active reports whether the license is usable today.
func (s Status) Active() bool {
	return s.State == StateActive
}

// Classify turns a stored expiry into a Status. The expiry day itself is
// still active.
func Classify(stored *civil.Date, today civil.Date) Status {
	if stored == nil {
		return Status{State: StateNotFound}
	}

	d := *stored
	if d.Before(today) {
		return Status{State: StateExpired, Date: &d}
	}
	return Status{State: StateActive, Date: &d}
}
