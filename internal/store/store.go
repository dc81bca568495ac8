package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	postgresMaxOpenConns = 10
)

// Store wraps the relational database holding namespaces, samples, blobs
// and attachments.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Options selects the database driver. Path is used by sqlite, DSN by postgres.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open opens the SQLite database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	return OpenWithOptions(Options{Driver: DriverSQLite, Path: path})
}

// OpenWithOptions opens the configured database and applies pending migrations.
func OpenWithOptions(opts Options) (*Store, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		d = sqliteDialect
		dsn, dsnErr := sqliteDSN(opts.Path)
		if dsnErr != nil {
			return nil, dsnErr
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		if err := configureSQLite(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	case DriverPostgres, "pgx":
		d = postgresDialect
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("database_url is required for postgres")
		}
		db, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(postgresMaxOpenConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}

	if err := runMigrations(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: d}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for migration planning.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the driver name in use.
func (s *Store) Dialect() string {
	return s.dialect.name
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// One connection keeps SQLite writes serialized.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}
