// Package db is the persistence adapter: crossing events and completed
// visits go to SQLite or Postgres, selected by the DSN scheme. Writes are
// made off the analytics hot path through Writer.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL driver and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ConnectTimeout bounds the initial ping.
const ConnectTimeout = 5 * time.Second

// ErrUnsupportedDSN is returned for a DSN with an unknown scheme.
var ErrUnsupportedDSN = errors.New("db: unsupported DSN")

// DB is a connected, migrated store for crossing events and visits.
type DB struct {
	*sql.DB
	dialect Dialect
	label   string
}

// ParseDSN maps a DSN to a dialect and the driver-specific data source.
// sqlite://path and bare *.db paths use SQLite; postgres:// and
// postgresql:// use Postgres.
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: sqlite DSN has no path", ErrUnsupportedDSN)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return DialectSQLite, dsn, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
}

// Connect opens the database named by dsn, checks it is reachable and
// applies pending migrations. Any failure is returned; the caller decides
// whether to run without persistence.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	dialect, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}

	db := &DB{DB: sqlDB, dialect: dialect, label: redact(dsn)}
	if dialect == DialectSQLite {
		if err := db.applyPragmas(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Dialect reports which backend db talks to.
func (db *DB) Dialect() Dialect { return db.dialect }

// Label is the DSN with any password removed.
func (db *DB) Label() string { return db.label }

func (db *DB) applyPragmas(ctx context.Context) error {
	// The writer goroutine and HTTP readers share the file.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		userinfo = userinfo[:i] + ":xxxxx"
	}
	return dsn[:scheme+3] + userinfo + dsn[at:]
}
