package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/ocr-spam-filter/internal/adapters/hashstore"
	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// HashStoreFactory creates hash store backends based on configuration
type HashStoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHashStoreFactory creates a new hash store factory
func NewHashStoreFactory(cfg *config.Config, logger *zap.Logger) *HashStoreFactory {
	return &HashStoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateHashStore creates the hash store matching the configured hashing
// mode: modes 1 and 2 use the local SQLite cache (or memory when no path
// is configured), mode 3 the shared MySQL backend. Mode 0 still returns a
// memory store so callers never hold a nil port.
func (f *HashStoreFactory) CreateHashStore() (core.HashStore, error) {
	hash := f.cfg.GetHash()
	switch hash.Mode {
	case 0:
		return hashstore.NewMemoryStore(f.logger), nil
	case 1, 2:
		if hash.SQLitePath == "" {
			return hashstore.NewMemoryStore(f.logger), nil
		}
		if err := os.MkdirAll(filepath.Dir(hash.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return hashstore.NewSQLiteStore(hash.SQLitePath, f.logger)
	case 3:
		return hashstore.NewMySQLStore(hash.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported hashing mode: %d", hash.Mode)
	}
}
