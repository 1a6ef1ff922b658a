// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = civil.Date{Year: 2025, Month: time.March, Day: 10}

func datePtr(d civil.Date) *civil.Date {
	return &d
}

func TestNextExpiry(t *testing.T) {
	tests := []struct {
		name    string
		current *civil.Date
		mode    Mode
		days    int
		want    civil.Date
	}{
		{
			name: "set_without_current",
			mode: ModeSet,
			days: 30,
			want: civil.Date{Year: 2025, Month: time.April, Day: 9},
		},
		{
			name:    "set_ignores_future_current",
			current: datePtr(today.AddDays(300)),
			mode:    ModeSet,
			days:    5,
			want:    today.AddDays(5),
		},
		{
			name:    "set_zero_days_is_today",
			current: datePtr(today.AddDays(10)),
			mode:    ModeSet,
			days:    0,
			want:    today,
		},
		{
			name: "add_without_current_starts_today",
			mode: ModeAdd,
			days: 10,
			want: today.AddDays(10),
		},
		{
			name:    "add_extends_active_license",
			current: datePtr(today.AddDays(20)),
			mode:    ModeAdd,
			days:    10,
			want:    today.AddDays(30),
		},
		{
			name:    "add_extends_license_expiring_today",
			current: datePtr(today),
			mode:    ModeAdd,
			days:    7,
			want:    today.AddDays(7),
		},
		{
			name:    "add_does_not_bank_elapsed_time",
			current: datePtr(today.AddDays(-400)),
			mode:    ModeAdd,
			days:    10,
			want:    today.AddDays(10),
		},
		{
			name:    "add_after_yesterday_expiry",
			current: datePtr(today.AddDays(-1)),
			mode:    ModeAdd,
			days:    1,
			want:    today.AddDays(1),
		},
		{
			name:    "ban_active_license",
			current: datePtr(today.AddDays(90)),
			mode:    ModeBan,
			days:    30,
			want:    today.AddDays(-1),
		},
		{
			name: "ban_unknown_hwid",
			mode: ModeBan,
			want: today.AddDays(-1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExpiry(tt.current, tt.mode, tt.days, today)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextExpirySetIsIdempotent(t *testing.T) {
	target := civil.Date{Year: 2025, Month: time.December, Day: 31}
	days := target.DaysSince(today)

	var current *civil.Date
	for i := 0; i < 3; i++ {
		got := NextExpiry(current, ModeSet, days, today)
		require.Equal(t, target, got)
		current = &got
	}
}

func TestNextExpiryAddCompounds(t *testing.T) {
	for _, days := range [][2]int{{0, 0}, {1, 0}, {0, 5}, {30, 30}, {365, 10}} {
		first := NextExpiry(nil, ModeAdd, days[0], today)
		second := NextExpiry(&first, ModeAdd, days[1], today)
		assert.Equal(t, today.AddDays(days[0]+days[1]), second, "days %v", days)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeSet},
		{in: "set", want: ModeSet},
		{in: "add", want: ModeAdd},
		{in: "ADD", want: ModeAdd},
		{in: " ban ", want: ModeBan},
		{in: "extend", wantErr: true},
		{in: "delete", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(today))
	assert.True(t, InRange(MaxDate))
	assert.False(t, InRange(MaxDate.AddDays(1)))
	assert.False(t, InRange(civil.Date{Year: 10020, Month: time.February, Day: 8}))
	assert.False(t, InRange(civil.Date{}))
}
