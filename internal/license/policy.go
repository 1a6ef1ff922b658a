// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Mode selects how a grant computes the new expiry date.
type Mode string

const (
	// ModeSet recomputes the expiry from today and ignores the stored value.
	ModeSet Mode = "set"
	// ModeAdd extends from the later of today and the stored expiry.
	ModeAdd Mode = "add"
	// ModeBan moves the expiry to yesterday so the HWID is expired immediately.
	ModeBan Mode = "ban"
)

// DefaultDays is the grant length used when a request omits days.
const DefaultDays = 30

// MaxDays bounds the days of a single grant. Repeated add grants can still
// reach MaxDate, which InRange guards.
const MaxDays = 36500

// MaxDate is the latest expiry that has a four-digit ISO year.
var MaxDate = civil.Date{Year: 9999, Month: time.December, Day: 31}

// InRange reports whether d can be stored and read back as YYYY-MM-DD.
func InRange(d civil.Date) bool {
	return d.IsValid() && d.Year >= 1 && !d.After(MaxDate)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSet, ModeAdd, ModeBan:
		return true
	}
	return false
}

// String returns the wire form of m.
func (m Mode) String() string {
	return string(m)
}

// ParseMode maps a request value onto a Mode. An empty value means ModeSet.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeSet, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// NextExpiry computes the expiry date a grant should store.
//
// current is the stored expiry, or nil when the HWID has never been granted.
// days must already be validated as non-negative by the caller.
func NextExpiry(current *civil.Date, mode Mode, days int, today civil.Date) civil.Date {
	switch mode {
	case ModeAdd:
		base := today
		if current != nil && current.After(today) {
			base = *current
		}
		return base.AddDays(days)
	case ModeBan:
		return today.AddDays(-1)
	default:
		return today.AddDays(days)
	}
}
