// Package sqlstore persists synced transactions to a relational database.
// PostgreSQL (lib/pq) and SQLite (go-sqlite3) are supported, selected by the DSN.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("pluggysync/db")

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// ErrUnsupportedDSN is returned when no driver matches the connection string.
var ErrUnsupportedDSN = errors.New("unsupported database URL")

type DB struct {
	*sql.DB
	driver string
}

// ParseDSN picks the driver for a connection string and returns the
// driver-specific data source name.
func ParseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return driverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return driverSQLite, sqliteSource(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "sqlite3://"):
		return driverSQLite, sqliteSource(strings.TrimPrefix(dsn, "sqlite3://")), nil
	case strings.HasPrefix(dsn, "file:"):
		return driverSQLite, dsn, nil
	case strings.Contains(dsn, "dbname=") || strings.Contains(dsn, "host="):
		// lib/pq keyword/value form: "host=localhost dbname=finance sslmode=disable"
		return driverPostgres, dsn, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
}

func sqliteSource(path string) string {
	if strings.Contains(path, "?") {
		return "file:" + path
	}
	return "file:" + path + "?_foreign_keys=on"
}

// Open connects to the database named by dsn and verifies the connection.
// The pool is capped at one connection: every Open serves a single write.
func Open(ctx context.Context, dsn string) (*DB, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: driver}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Placeholder returns the n-th (1-based) bind parameter for the driver.
func (db *DB) Placeholder(n int) string {
	if db.driver == driverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ExecContext wraps sql.DB.ExecContext with tracing.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tracedExec(ctx, db.driver, query, func(ctx context.Context) (sql.Result, error) {
		return db.DB.ExecContext(ctx, query, args...)
	})
}

// Tx is a database transaction whose statements are traced.
type Tx struct {
	*sql.Tx
	driver string
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{Tx: tx, driver: db.driver}, nil
}

// ExecContext wraps sql.Tx.ExecContext with tracing.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tracedExec(ctx, tx.driver, query, func(ctx context.Context) (sql.Result, error) {
		return tx.Tx.ExecContext(ctx, query, args...)
	})
}

// CommitContext commits the transaction inside a "db.Commit" span.
func (tx *Tx) CommitContext(ctx context.Context) error {
	_, span := dbTracer.Start(ctx, "db.Commit", trace.WithAttributes(
		attribute.String("db.system", dbSystem(tx.driver)),
	))
	defer span.End()

	if err := tx.Tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func tracedExec(ctx context.Context, driver, query string, exec func(context.Context) (sql.Result, error)) (sql.Result, error) {
	ctx, span := dbTracer.Start(ctx, "db.Exec", trace.WithAttributes(
		attribute.String("db.system", dbSystem(driver)),
		attribute.String("db.operation", extractSQLVerb(query)),
		attribute.String("db.statement", sanitizeQuery(query)),
	))
	defer span.End()

	result, err := exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func dbSystem(driver string) string {
	if driver == driverPostgres {
		return "postgresql"
	}
	return "sqlite"
}

// redact hides the password of a URL-style DSN so it can be logged.
func redact(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if colon := strings.IndexByte(userinfo, ':'); colon >= 0 {
		return dsn[:scheme+3] + userinfo[:colon] + ":***" + dsn[at:]
	}
	return dsn
}

// sanitizeQuery replaces string literals and bare numeric literals with '?'
// so that sensitive values are never stored in traces.
// Parameterized queries using $1, $2, ... are left as-is since they carry no data.
func sanitizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	i := 0
	for i < len(q) {
		ch := q[i]

		// Replace quoted string literals: 'value' → '?'
		if ch == '\'' {
			b.WriteString("'?'")
			i++
			for i < len(q) {
				if q[i] == '\'' {
					if i+1 < len(q) && q[i+1] == '\'' {
						i += 2 // escaped quote ''
						continue
					}
					i++
					break
				}
				i++
			}
			continue
		}

		if unicode.IsDigit(rune(ch)) && (i == 0 || !isIdentChar(q[i-1])) {
			b.WriteByte('?')
			for i < len(q) && (unicode.IsDigit(rune(q[i])) || q[i] == '.') {
				i++
			}
			continue
		}

		b.WriteByte(ch)
		i++
	}

	s := b.String()
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '$'
}

func extractSQLVerb(q string) string {
	q = strings.TrimSpace(q)
	if idx := strings.IndexAny(q, " \t\n"); idx > 0 {
		return strings.ToUpper(q[:idx])
	}
	return strings.ToUpper(q)
}
