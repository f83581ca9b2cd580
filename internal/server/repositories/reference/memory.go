package reference

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/medsync/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	kinds map[string][]models.ReferenceItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{kinds: make(map[string][]models.ReferenceItem)}
}

func (m *MemoryRepository) ReplaceAll(_ context.Context, kind string, items []models.ReferenceItem) error {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b models.ReferenceItem) int { return strings.Compare(a.ID, b.ID) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds[kind] = sorted
	return nil
}

func (m *MemoryRepository) ListAll(_ context.Context) (map[string][]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]json.RawMessage, len(m.kinds))
	for k, items := range m.kinds {
		for _, it := range items {
			result[k] = append(result[k], it.Data)
		}
	}
	return result, nil
}
