// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// outstandingTokenIndex enforces zero-or-one issued token per (user, tier).
// GORM tags cannot express partial indexes, so it is created explicitly.
const outstandingTokenIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_token_outstanding
	ON access_tokens (user_id, tier) WHERE status = 'issued'`

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs, and
// installs the OpenTelemetry tracing plugin so queries show up as spans.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         newGormLogger(os.Stderr),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// newGormLogger logs slow queries and errors, except record-not-found, which
// every lookup-before-insert path hits by design of the idempotency checks.
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(stdlog.New(w, "\r\n", stdlog.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// AutoMigrate creates or updates every table the core needs, including the
// partial unique index on outstanding tokens.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.UserProgression{},
		&domain.ScoreRecord{},
		&domain.LedgerEntry{},
		&domain.LedgerAccount{},
		&domain.AccessToken{},
		&domain.InteractionReceipt{},
	); err != nil {
		return err
	}
	return db.Exec(outstandingTokenIndex).Error
}

// Ping reports whether the underlying connection pool answers.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
