// Package sqldb opens the relational database named by DATABASE_URL and implements
// the SQL-backed stores on top of it. sqlite:// URLs use the pure-Go SQLite driver,
// postgres:// URLs use pgx.
package sqldb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects placeholder and locking syntax.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const pgErrUniqueViolation = "23505"

// ErrUnsupportedURL is returned for DATABASE_URL schemes other than sqlite and postgres.
var ErrUnsupportedURL = errors.New("sqldb: unsupported database url")

// Rebind rewrites $n placeholders for the dialect. Queries are written in Postgres form.
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ForUpdate returns the row-locking suffix for select statements inside a transaction.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " for update"
	}
	return ""
}

// Target is a parsed DATABASE_URL.
type Target struct {
	Dialect Dialect
	Driver  string
	DSN     string
	// Path is the database file for SQLite targets.
	Path string
}

// ParseURL resolves rawURL. Relative SQLite paths (sqlite:///database/x.db) are joined onto baseDir;
// four slashes denote an absolute path.
func ParseURL(rawURL, baseDir string) (Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(rawURL, "sqlite:///"):
		p := strings.TrimPrefix(rawURL, "sqlite:///")
		if p == "" {
			return Target{}, fmt.Errorf("%w: missing sqlite path", ErrUnsupportedURL)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, filepath.FromSlash(p))
		}
		dsn := "file:" + p + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		return Target{Dialect: SQLite, Driver: "sqlite", DSN: dsn, Path: p}, nil
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return Target{Dialect: Postgres, Driver: "pgx", DSN: rawURL}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, redact(rawURL))
	}
}

// DB is a pooled connection plus its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	target  Target
}

// Open connects to rawURL. For SQLite the parent directory is created.
func Open(rawURL, baseDir string) (*DB, error) {
	t, err := ParseURL(rawURL, baseDir)
	if err != nil {
		return nil, err
	}
	if t.Dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(t.Path), 0o750); err != nil {
			return nil, fmt.Errorf("sqldb: create database dir: %w", err)
		}
	}
	db, err := sql.Open(t.Driver, t.DSN)
	if err != nil {
		return nil, err
	}
	switch t.Dialect {
	case SQLite:
		// One writer at a time; the file lock serialises anyway.
		db.SetMaxOpenConns(1)
	case Postgres:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	return &DB{DB: db, Dialect: t.Dialect, target: t}, nil
}

// Wrap adopts an existing handle, used with sqlmock in tests.
func Wrap(db *sql.DB, d Dialect) *DB {
	return &DB{DB: db, Dialect: d, target: Target{Dialect: d}}
}

// Target returns the parsed URL the handle was opened with.
func (db *DB) Target() Target { return db.target }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func redact(raw string) string {
	if i := strings.Index(raw, "@"); i > 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + "***" + raw[i:]
		}
	}
	return raw
}

// placeholders returns "$from, $from+1, ..." for n values.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}
