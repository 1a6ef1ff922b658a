// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"embed"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// New opens the database behind databaseURL and applies pending migrations.
// Postgres URLs use lib/pq, everything else is a SQLite file path.
func New(databaseURL string) (*DB, error) {
	dialect := DialectFor(databaseURL)

	var (
		conn *sql.DB
		err  error
	)
	switch dialect {
	case DialectPostgres:
		conn, err = sql.Open("postgres", databaseURL)
	default:
		conn, err = openSQLite(databaseURL)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", dialect)
	}

	db := &DB{
		conn:    conn,
		dialect: dialect,
	}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, nil
}

func openSQLite(databasePath string) (*sql.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	// Pragmas go through the DSN so every pooled connection gets them.
	// Immediate transactions take the write lock up front, which serializes
	// read-modify-write grants instead of failing them on upgrade.
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(10000)")
	params.Set("_txlock", "immediate")

	return sql.Open("sqlite", "file:"+filepath.ToSlash(databasePath)+"?"+params.Encode())
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate(ctx context.Context) error {
	createTable := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	if db.dialect == DialectPostgres {
		createTable = `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	}

	if _, err := db.conn.ExecContext(ctx, createTable); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	dir := path.Join("migrations", string(db.dialect))
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations directory")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && path.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		if err := db.applyMigration(ctx, dir, file); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s", file)
		}
	}

	return nil
}

func (db *DB) applyMigration(ctx context.Context, dir, filename string) error {
	var count int
	err := db.conn.QueryRowContext(ctx, db.dialect.Rebind("SELECT COUNT(*) FROM migrations WHERE filename = ?"), filename).Scan(&count)
	if err != nil {
		return errors.Wrap(err, "failed to check migration status")
	}

	if count > 0 {
		log.Debug().Msgf("Migration %s already applied", filename)
		return nil
	}

	content, err := migrationsFS.ReadFile(path.Join(dir, filename))
	if err != nil {
		return errors.Wrap(err, "failed to read migration file")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return errors.Wrap(err, "failed to execute migration")
	}

	if _, err := tx.ExecContext(ctx, db.dialect.Rebind("INSERT INTO migrations (filename) VALUES (?)"), filename); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration")
	}

	log.Info().Str("dialect", string(db.dialect)).Msgf("Applied migration: %s", filename)
	return nil
}
