package storage

import (
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// NewSQLiteStore creates a local source store. path may be a file path or ":memory:".
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, wrapConnect(err, "sqlite3")
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, wrapConnect(err, "sqlite3")
	}

	// WAL for concurrent readers; in-memory databases are per-connection
	db.Exec("PRAGMA journal_mode = WAL")
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return newSQLStore(db, "sqlite3", logger)
}
