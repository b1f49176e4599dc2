package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/source"
)

// SQLStore is a durable source.Store backed by any sqlx driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *logrus.Logger
}

type documentRow struct {
	ContentHash string    `db:"content_hash"`
	Content     string    `db:"content"`
	LineCount   int       `db:"line_count"`
	CreatedAt   time.Time `db:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS source_documents (
	content_hash TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	line_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// Open connects using the configured driver: "sqlite3", "postgres" or "pgx".
func Open(driver, dsn string, logger *logrus.Logger) (*SQLStore, error) {
	switch driver {
	case "sqlite3":
		return NewSQLiteStore(dsn, logger)
	case "postgres", "pgx":
		return NewPostgresStore(driver, dsn, logger)
	}
	return nil, errors.ConfigErrorf("unsupported storage driver %q", driver)
}

func newSQLStore(db *sqlx.DB, driver string, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &SQLStore{db: db, driver: driver, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.DatabaseError(err, "init source schema")
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Put(ctx context.Context, content string) (string, error) {
	hash := source.Hash(content)
	query := s.db.Rebind(`
		INSERT INTO source_documents (content_hash, content, line_count, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, hash, content, source.CountLines(content), time.Now().UTC())
	if err != nil {
		return "", errors.DatabaseError(err, "store source document").WithContext("content_hash", hash)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.WithFields(logrus.Fields{"content_hash": hash[:12], "driver": s.driver}).Debug("stored source document")
	}
	return hash, nil
}

func (s *SQLStore) Document(ctx context.Context, hash string) (*source.Document, error) {
	var row documentRow
	query := s.db.Rebind(`SELECT content_hash, content, line_count, created_at FROM source_documents WHERE content_hash = ?`)
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, source.ErrNotFound
		}
		return nil, errors.DatabaseError(err, "load source document").WithContext("content_hash", hash)
	}
	return &source.Document{ContentHash: row.ContentHash, Lines: source.SplitLines(row.Content)}, nil
}

func (s *SQLStore) GetRange(ctx context.Context, hash string, start, end int) (string, error) {
	doc, err := s.Document(ctx, hash)
	if stderrors.Is(err, source.ErrNotFound) {
		return "", errors.RangeErrorf("unknown content hash %s", hash)
	}
	if err != nil {
		return "", err
	}
	return doc.Slice(start, end)
}

// Count returns the number of stored documents.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM source_documents`); err != nil {
		return 0, errors.DatabaseError(err, "count source documents")
	}
	return n, nil
}

// Purge deletes every stored document.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM source_documents`)
	if err != nil {
		return 0, errors.DatabaseError(err, "purge source documents")
	}
	n, _ := res.RowsAffected()
	s.logger.WithField("rows", n).Info("purged source documents")
	return n, nil
}

var _ source.Store = (*SQLStore)(nil)

func wrapConnect(err error, driver string) error {
	return errors.DatabaseError(err, fmt.Sprintf("connect to %s", driver))
}
