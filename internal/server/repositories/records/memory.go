package records

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/server/models"
)

type key struct{ t, id string }

// MemoryRepository keeps records in a map. Used for development and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs map[key]models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recs: make(map[key]models.Record)}
}

func (m *MemoryRepository) Get(_ context.Context, entityType, entityID string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[key{entityType, entityID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryRepository) Put(_ context.Context, r *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key{r.EntityType, r.EntityID}] = *r
	return nil
}

func (m *MemoryRepository) ChangedSince(_ context.Context, since *time.Time) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Record
	for _, r := range m.recs {
		if since == nil || r.UpdatedAt.After(*since) {
			result = append(result, r)
		}
	}
	slices.SortFunc(result, func(a, b models.Record) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		if a.EntityType != b.EntityType {
			if a.EntityType < b.EntityType {
				return -1
			}
			return 1
		}
		switch {
		case a.EntityID < b.EntityID:
			return -1
		case a.EntityID > b.EntityID:
			return 1
		}
		return 0
	})
	return result, nil
}
