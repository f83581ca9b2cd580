package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/reference"
)

// MemoryRepositoryManager keeps everything in process memory. Units of
// work are serialized but not rolled back on failure.
type MemoryRepositoryManager struct {
	mu    sync.Mutex
	repos Repositories
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repos: Repositories{
		Records:   records.NewMemoryRepository(),
		Reference: reference.NewMemoryRepository(),
	}}
}

func (m *MemoryRepositoryManager) Repos() Repositories {
	return m.repos
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.repos)
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
