// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hwidgate/hwidgate/internal/database"
	"github.com/hwidgate/hwidgate/internal/license"
)

// ErrDateOutOfRange is returned for expiries that cannot be stored as YYYY-MM-DD.
var ErrDateOutOfRange = errors.New("expiry date out of range")

// License is the stored grant for a single HWID.
type License struct {
	HWID       string     `json:"hwid"`
	ExpiryDate civil.Date `json:"date"`
}

// LicenseStore persists one row per HWID.
type LicenseStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewLicenseStore(db *sql.DB, dialect database.Dialect) *LicenseStore {
	return &LicenseStore{
		db:      db,
		dialect: dialect,
	}
}

const upsertLicenseQuery = `
	INSERT INTO licenses (hwid, expiry_date)
	VALUES (?, ?)
	ON CONFLICT (hwid) DO UPDATE SET expiry_date = excluded.expiry_date
`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Lookup returns the stored expiry for hwid. The bool is false when no row exists.
func (s *LicenseStore) Lookup(ctx context.Context, hwid string) (civil.Date, bool, error) {
	return s.lookup(ctx, s.db, hwid)
}

func (s *LicenseStore) lookup(ctx context.Context, q queryer, hwid string) (civil.Date, bool, error) {
	var expiry sqlDate
	err := q.QueryRowContext(ctx, s.dialect.Rebind("SELECT expiry_date FROM licenses WHERE hwid = ?"), hwid).Scan(&expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return civil.Date{}, false, nil
		}
		return civil.Date{}, false, fmt.Errorf("failed to look up license: %w", err)
	}

	return civil.Date(expiry), true, nil
}

// Upsert inserts the row for hwid or overwrites its expiry. The new value
// always wins.
func (s *LicenseStore) Upsert(ctx context.Context, hwid string, expiry civil.Date) error {
	return s.upsert(ctx, s.db, hwid, expiry)
}

func (s *LicenseStore) upsert(ctx context.Context, q queryer, hwid string, expiry civil.Date) error {
	if !license.InRange(expiry) {
		return fmt.Errorf("%w: %s", ErrDateOutOfRange, expiry)
	}
	if _, err := q.ExecContext(ctx, s.dialect.Rebind(upsertLicenseQuery), hwid, sqlDate(expiry)); err != nil {
		return fmt.Errorf("failed to upsert license: %w", err)
	}
	return nil
}

// List returns every license ordered by expiry date, latest first. Rows
// sharing an expiry date are ordered by HWID.
func (s *LicenseStore) List(ctx context.Context) ([]*License, error) {
	query := `
		SELECT hwid, expiry_date
		FROM licenses
		ORDER BY expiry_date DESC, hwid ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*License, 0)
	for rows.Next() {
		var (
			hwid   string
			expiry sqlDate
		)
		if err := rows.Scan(&hwid, &expiry); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, &License{
			HWID:       hwid,
			ExpiryDate: civil.Date(expiry),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}

	return licenses, nil
}

// ModifyFunc receives the stored expiry (nil when absent) and returns the
// expiry to store. A non-nil error aborts the write.
type ModifyFunc func(current *civil.Date) (civil.Date, error)

// Modify reads the expiry for hwid, passes it to fn and upserts the result in
// one transaction. Concurrent calls for the same HWID are serialized, so no
// update computed from a stale read is ever written. An error from fn is
// returned unwrapped and nothing is written.
func (s *LicenseStore) Modify(ctx context.Context, hwid string, fn ModifyFunc) (civil.Date, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return civil.Date{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dialect == database.DialectPostgres {
		// Row locks cannot cover a HWID that has no row yet.
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", hwid); err != nil {
			return civil.Date{}, fmt.Errorf("failed to lock license: %w", err)
		}
	}

	current, found, err := s.lookup(ctx, tx, hwid)
	if err != nil {
		return civil.Date{}, err
	}

	var next civil.Date
	if found {
		next, err = fn(&current)
	} else {
		next, err = fn(nil)
	}
	if err != nil {
		return civil.Date{}, err
	}

	if err := s.upsert(ctx, tx, hwid, next); err != nil {
		return civil.Date{}, err
	}

	if err := tx.Commit(); err != nil {
		return civil.Date{}, fmt.Errorf("failed to commit license: %w", err)
	}

	return next, nil
}

// sqlDate moves civil dates through database/sql. Drivers hand DATE columns
// back either as time.Time or as ISO text depending on the backend.
type sqlDate civil.Date

func (d sqlDate) Value() (driver.Value, error) {
	return civil.Date(d).String(), nil
}

func (d *sqlDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = sqlDate(civil.DateOf(v))
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		return errors.New("expiry_date is null")
	default:
		return fmt.Errorf("unsupported expiry_date type %T", src)
	}
}

func (d *sqlDate) parse(s string) error {
	if len(s) > 10 {
		// Some drivers return a full timestamp for DATE columns.
		s = s[:10]
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid expiry_date %q: %w", s, err)
	}
	*d = sqlDate(parsed)
	return nil
}
