package hashstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// SQLiteStore is the local hash cache. Concurrent external readers and
// writers are tolerated through SQLite's own locking in WAL mode.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed initializes) the local hash cache
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=normal`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS image_hashes (
			digest TEXT NOT NULL,
			partition TEXT NOT NULL,
			score REAL,
			description TEXT,
			filename TEXT,
			content_type TEXT,
			format TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (digest, partition)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Debug("Opened hash store", zap.String("path", dbPath))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get retrieves a record for a digest; (nil, nil) means a miss
func (s *SQLiteStore) Get(ctx context.Context, digest string, partition core.Partition) (*core.HashRecord, error) {
	rec := &core.HashRecord{Digest: digest}
	err := s.db.QueryRowContext(ctx, `
		SELECT score, description FROM image_hashes
		WHERE digest = ? AND partition = ?
	`, digest, string(partition)).Scan(&rec.Score, &rec.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query hash store: %w", err)
	}
	return rec, nil
}

// Put stores a record in a partition, replacing any previous entry
func (s *SQLiteStore) Put(ctx context.Context, record *core.HashRecord, partition core.Partition, meta core.HashMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO image_hashes
			(digest, partition, score, description, filename, content_type, format)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Digest, string(partition), record.Score, record.Description,
		meta.Filename, meta.ContentType, meta.Format.String())
	if err != nil {
		return fmt.Errorf("failed to insert hash record: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}
