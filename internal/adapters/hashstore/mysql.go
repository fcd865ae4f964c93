package hashstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is the shared relational hash backend used when several
// workers contribute to one digest database. Concurrency control is the
// server's own.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to the shared hash backend
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS image_hashes (
			digest VARCHAR(64) NOT NULL,
			partition_name VARCHAR(16) NOT NULL,
			score FLOAT,
			description TEXT,
			filename VARCHAR(255),
			content_type VARCHAR(255),
			format VARCHAR(16),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (digest, partition_name)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Debug("Connected to shared hash store")
	return &MySQLStore{db: db, logger: logger}, nil
}

// Get retrieves a record for a digest; (nil, nil) means a miss
func (s *MySQLStore) Get(ctx context.Context, digest string, partition core.Partition) (*core.HashRecord, error) {
	rec := &core.HashRecord{Digest: digest}
	err := s.db.QueryRowContext(ctx, `
		SELECT score, description FROM image_hashes
		WHERE digest = ? AND partition_name = ?
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
func (s *MySQLStore) Put(ctx context.Context, record *core.HashRecord, partition core.Partition, meta core.HashMeta) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO image_hashes
			(digest, partition_name, score, description, filename, content_type, format)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Digest, string(partition), record.Score, record.Description,
		meta.Filename, meta.ContentType, meta.Format.String())
	if err != nil {
		return fmt.Errorf("failed to insert hash record: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close MySQL database: %w", err)
	}
	return nil
}
