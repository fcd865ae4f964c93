package hashstore

import (
	"context"
	"sync"

	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the HashStore interface,
// used when hashing is enabled without a persistent backend and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[core.Partition]map[string]*core.HashRecord
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory hash store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: map[core.Partition]map[string]*core.HashRecord{
			core.PartitionSpam: {},
			core.PartitionGood: {},
		},
		logger: logger,
	}
}

// Get retrieves a record for a digest; (nil, nil) means a miss
func (s *MemoryStore) Get(ctx context.Context, digest string, partition core.Partition) (*core.HashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[partition][digest]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// Put stores a record in a partition
func (s *MemoryStore) Put(ctx context.Context, record *core.HashRecord, partition core.Partition, meta core.HashMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[partition][record.Digest] = &copied
	s.logger.Debug("Stored hash record",
		zap.String("digest", record.Digest),
		zap.String("partition", string(partition)))
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
