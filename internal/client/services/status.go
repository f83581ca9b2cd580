package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
)

// StatusService is the read surface behind status indicators.
type StatusService interface {
	// PendingCount is the number of outstanding queue items, dead-lettered
	// ones included. Conflicted entities have no queued items.
	PendingCount(ctx context.Context) (int, error)
	LastSyncAt(ctx context.Context) (time.Time, bool, error)
	// UnresolvedConflicts is the number of open ledger entries, for status
	// indicators. ConflictService.ListUnresolved returns the entries.
	UnresolvedConflicts(ctx context.Context) (int, error)
	Snapshot(ctx context.Context) (models.StatusSnapshot, error)
}

type statusService struct {
	store  *store.Store
	online func() bool
}

// NewStatusService builds the read surface. online may be nil when no
// connectivity check runs, the snapshot then reports offline.
func NewStatusService(s *store.Store, online func() bool) StatusService {
	if online == nil {
		online = func() bool { return false }
	}
	return &statusService{store: s, online: online}
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}

func (s *statusService) PendingCount(ctx context.Context) (int, error) {
	n, err := s.store.Repos().Queue.Count(ctx)
	return n, storageErr(err)
}

func (s *statusService) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	return s.store.LastSyncAt(ctx)
}

func (s *statusService) UnresolvedConflicts(ctx context.Context) (int, error) {
	n, err := s.store.Repos().Conflicts.CountUnresolved(ctx)
	return n, storageErr(err)
}

func (s *statusService) Snapshot(ctx context.Context) (models.StatusSnapshot, error) {
	snap := models.StatusSnapshot{
		Online:      s.online(),
		GeneratedAt: s.store.Now(),
	}
	var err error
	if snap.PendingCount, err = s.PendingCount(ctx); err != nil {
		return snap, err
	}
	if snap.DeadCount, err = s.store.Repos().Queue.CountDead(ctx); err != nil {
		return snap, storageErr(err)
	}
	if snap.UnresolvedConflicts, err = s.UnresolvedConflicts(ctx); err != nil {
		return snap, err
	}
	last, ok, err := s.LastSyncAt(ctx)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.LastSyncAt = &last
	}
	if snap.Entities, err = s.kindCounts(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *statusService) kindCounts(ctx context.Context) ([]models.KindStatus, error) {
	repo := s.store.Repos().Entities
	kinds := models.EntityKinds()
	result := make([]models.KindStatus, 0, len(kinds))
	for _, k := range kinds {
		ks := models.KindStatus{Type: k.Type}
		for _, c := range []struct {
			status models.SyncStatus
			dst    *int
		}{
			{models.StatusPending, &ks.Pending},
			{models.StatusConflict, &ks.Conflict},
			{models.StatusError, &ks.Error},
		} {
			n, err := repo.CountByStatus(ctx, k.Type, c.status)
			if err != nil {
				return nil, storageErr(err)
			}
			*c.dst = n
		}
		result = append(result, ks)
	}
	return result, nil
}
