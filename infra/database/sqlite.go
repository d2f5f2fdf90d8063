package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteConfig holds database configuration.
type SQLiteConfig struct {
	BusyTimeout     time.Duration
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLiteConfig returns defaults tuned for one process owning the
// file: WAL lets the reader pool run alongside the single writer.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

func NewSQLite(path string) (*sqlx.DB, error) {
	return NewSQLiteWithConfig(path, DefaultSQLiteConfig())
}

func NewSQLiteWithConfig(path string, cfg *SQLiteConfig) (*sqlx.DB, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		url.PathEscape(path), cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
