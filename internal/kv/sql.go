package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultTable is the table SQL stores use unless configured otherwise.
const DefaultTable = "composer_kv"

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string

	quote       func(string) string
	createTable string // %s is the quoted table name
	get         string
	upsert      string
	remove      string
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		quote:  func(s string) string { return `"` + s + `"` },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			state_key TEXT PRIMARY KEY,
			state_value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		get: `SELECT state_value FROM %s WHERE state_key = ?`,
		upsert: `INSERT INTO %s (state_key, state_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at`,
		remove: `DELETE FROM %s WHERE state_key = ?`,
	}

	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		quote:  pq.QuoteIdentifier,
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			state_key TEXT PRIMARY KEY,
			state_value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		get: `SELECT state_value FROM %s WHERE state_key = $1`,
		upsert: `INSERT INTO %s (state_key, state_value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (state_key) DO UPDATE SET state_value = EXCLUDED.state_value, updated_at = EXCLUDED.updated_at`,
		remove: `DELETE FROM %s WHERE state_key = $1`,
	}

	MySQL = Dialect{
		Name:   "mysql",
		Driver: "mysql",
		quote:  func(s string) string { return "`" + s + "`" },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			state_key VARCHAR(255) PRIMARY KEY,
			state_value LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		get: `SELECT state_value FROM %s WHERE state_key = ?`,
		upsert: `INSERT INTO %s (state_key, state_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE state_value = VALUES(state_value), updated_at = VALUES(updated_at)`,
		remove: `DELETE FROM %s WHERE state_key = ?`,
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case SQLite.Name:
		return SQLite, true
	case Postgres.Name, "postgresql", "pg":
		return Postgres, true
	case MySQL.Name:
		return MySQL, true
	}
	return Dialect{}, false
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps values in a single two-column table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time

	getSQL, upsertSQL, removeSQL string
}

// OpenSQL connects to dsn with the dialect's driver and prepares the table.
func OpenSQL(ctx context.Context, d Dialect, dsn, table string) (*SQLStore, error) {
	if d.Name == MySQL.Name {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("%s store: invalid dsn: %w", d.Name, err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s store: failed to open database: %w", d.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s store: failed to connect: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		// SQLite allows a single writer; serialize through one connection.
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(ctx, db, d, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and creates the table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, d Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("%s store: invalid table name %q", d.Name, table)
	}
	quoted := d.quote(table)

	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.createTable, quoted)); err != nil {
		return nil, fmt.Errorf("%s store: create table: %w", d.Name, err)
	}

	return &SQLStore{
		db:        db,
		dialect:   d,
		table:     table,
		now:       time.Now,
		getSQL:    fmt.Sprintf(d.get, quoted),
		upsertSQL: fmt.Sprintf(d.upsert, quoted),
		removeSQL: fmt.Sprintf(d.remove, quoted),
	}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s store get %q: %w", s.dialect.Name, key, err)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsertSQL, key, value, s.now().UTC()); err != nil {
		return fmt.Errorf("%s store set %q: %w", s.dialect.Name, key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.removeSQL, key); err != nil {
		return fmt.Errorf("%s store remove %q: %w", s.dialect.Name, key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
