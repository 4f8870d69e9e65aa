// Package database provides the transcription history store.
// It supports both SQLite and PostgreSQL backends.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"

	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// DB represents a database connection with migration support.
type DB struct {
	*sql.DB
	driver   string
	mu       sync.Mutex
	migrated bool
}

// Config holds database configuration.
type Config struct {
	Driver string // "sqlite3" or "postgres"
	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string
}

// ConfigFromHistory maps the history config section onto a database Config.
// DATABASE_URL overrides the configured postgres URL.
func ConfigFromHistory(h config.HistoryConfig) *Config {
	switch h.Driver {
	case "postgres", "postgresql":
		dsn := h.URL
		if env := os.Getenv("DATABASE_URL"); env != "" {
			dsn = env
		}
		return &Config{Driver: "postgres", DSN: dsn}
	default:
		return &Config{Driver: "sqlite3", DSN: logging.ExpandHome(h.Path)}
	}
}

// New creates a new database connection.
func New(cfg *Config) (*DB, error) {
	var driver string

	switch cfg.Driver {
	case "postgres", "postgresql":
		driver = "postgres"
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres history requires a connection url")
		}
	case "sqlite", "sqlite3", "":
		driver = "sqlite3"
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite history requires a file path")
		}
		if cfg.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:     db,
		driver: driver,
	}, nil
}

// Driver returns the database driver name.
func (d *DB) Driver() string {
	return d.driver
}

// Migrate runs all pending database migrations using goose.
func (d *DB) Migrate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.migrated {
		return nil
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	dialect := "postgres"
	if d.driver == "sqlite3" {
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, d.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.migrated = true
	return nil
}

// NewUUID generates a new UUID.
func NewUUID() string {
	return uuid.New().String()
}
