package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/client"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/medsync/internal/client/retry"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/timex"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// Replay outcomes reported to observers.
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
	OutcomeRetry    = "retry"
	OutcomeDead     = "dead"
	OutcomeRejected = "rejected"
)

// Report summarises one sync pass.
type Report struct {
	Applied      int           `json:"applied"`
	Conflicts    int           `json:"conflicts"`
	Retried      int           `json:"retried"`
	DeadLettered int           `json:"deadLettered"`
	Rejected     int           `json:"rejected"`
	Pulled       int           `json:"pulled"`
	Duration     time.Duration `json:"duration"`
}

// Failed reports whether any item failed to replay in this pass.
func (r Report) Failed() bool {
	return r.Retried+r.DeadLettered+r.Rejected > 0
}

// Observer is notified about replays and finished passes. Metrics and the
// status feed implement it.
type Observer interface {
	Replayed(t models.EntityType, outcome string)
	PassFinished(ctx context.Context, r Report, err error)
}

type SyncOption func(*Synchronizer)

func WithRetryPolicy(p retry.Policy) SyncOption {
	return func(s *Synchronizer) { s.policy = p }
}

func WithWorkers(n int) SyncOption {
	return func(s *Synchronizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSyncLogger(l logging.Logger) SyncOption {
	return func(s *Synchronizer) { s.logger = l }
}

func WithObserver(o Observer) SyncOption {
	return func(s *Synchronizer) { s.observers = append(s.observers, o) }
}

// Synchronizer replays the sync queue against the authority and pulls
// server changes back. Items of one entity are replayed strictly in queue
// order; different entities are replayed concurrently.
type Synchronizer struct {
	store     *store.Store
	remote    client.Remote
	policy    retry.Policy
	workers   int
	logger    logging.Logger
	observers []Observer

	pass   sync.Mutex
	online atomic.Bool
}

func NewSynchronizer(s *store.Store, remote client.Remote, opts ...SyncOption) *Synchronizer {
	sy := &Synchronizer{
		store:   s,
		remote:  remote,
		policy:  retry.Default(),
		workers: DefaultWorkers,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(sy)
	}
	sy.logger = sy.logger.With("module", "sync")
	return sy
}

// Online reports the result of the latest connectivity check.
func (s *Synchronizer) Online() bool {
	return s.online.Load()
}

// CheckOnline pings the authority and records the result.
func (s *Synchronizer) CheckOnline(ctx context.Context) bool {
	err := s.remote.Ping(ctx)
	online := err == nil
	if was := s.online.Swap(online); was != online {
		s.logger.Info(ctx, "connectivity changed", "online", online, "error", err)
	}
	return online
}

type tally struct {
	mu sync.Mutex
	r  Report
}

func (t *tally) add(f func(r *Report)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.r)
}

// groupByEntity splits the queue into per-entity runs, keeping queue order
// inside each run and ordering runs by their first item.
func groupByEntity(items []models.QueueItem) [][]models.QueueItem {
	index := make(map[string]int)
	var groups [][]models.QueueItem
	for _, it := range items {
		key := string(it.EntityType) + "/" + it.EntityID
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], it)
	}
	return groups
}

// Drain replays every ready queue item once. A run stops at its first item
// that is dead, backing off, failing or in conflict, so later mutations of
// the same entity never overtake earlier ones. Cancelling ctx leaves
// unconfirmed items untouched.
func (s *Synchronizer) Drain(ctx context.Context) (Report, error) {
	items, err := s.store.Repos().Queue.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	var t tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, run := range groupByEntity(items) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.drainRun(gctx, run, &t)
		})
	}
	err = g.Wait()
	return t.r, err
}

func (s *Synchronizer) drainRun(ctx context.Context, run []models.QueueItem, t *tally) error {
	for _, it := range run {
		if ctx.Err() != nil {
			return nil
		}
		if it.Status == models.QueueDead {
			return nil
		}
		if it.NextAttemptAt != nil && it.NextAttemptAt.After(s.store.Now()) {
			return nil
		}
		proceed, err := s.replay(ctx, it, t)
		if err != nil || !proceed {
			return err
		}
	}
	return nil
}

// replay pushes one item. proceed is false when the rest of the run has to
// wait.
func (s *Synchronizer) replay(ctx context.Context, it models.QueueItem, t *tally) (proceed bool, err error) {
	row, err := s.store.Repos().Entities.Get(ctx, it.EntityType, it.EntityID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	m := wire.Mutation{
		EntityType: string(it.EntityType),
		EntityID:   it.EntityID,
		Action:     it.Action,
		Data:       it.Data,
	}
	if row != nil {
		m.BaseUpdatedAt = row.Meta.ServerUpdatedAt
	}

	res, err := s.remote.Push(ctx, m)
	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return false, nil
	case errors.Is(err, common.ErrTransient), errors.Is(err, common.ErrUnauthorized):
		return false, s.fail(ctx, it, err, t)
	default:
		return false, s.reject(ctx, it, err, t)
	}

	switch res.Outcome {
	case wire.OutcomeApplied:
		return true, s.confirm(ctx, it, res, t)
	case wire.OutcomeConflict:
		return false, s.conflict(ctx, it, res, t)
	default:
		return false, s.reject(ctx, it, fmt.Errorf("unexpected outcome %q", res.Outcome), t)
	}
}

func (s *Synchronizer) notifyReplay(t models.EntityType, outcome string) {
	for _, o := range s.observers {
		o.Replayed(t, outcome)
	}
}

// confirm removes the item. The entity turns synced only when this was its
// last queued item; a confirmed delete purges the tombstone.
func (s *Synchronizer) confirm(ctx context.Context, it models.QueueItem, res *wire.PushResult, t *tally) error {
	err := s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Queue.Remove(ctx, it.ID); err != nil {
			return err
		}
		remaining, err := r.Queue.CountForEntity(ctx, it.EntityType, it.EntityID)
		if err != nil {
			return err
		}

		if it.Action == wire.ActionDelete {
			if remaining == 0 {
				return r.Entities.Purge(ctx, it.EntityType, it.EntityID)
			}
			return nil
		}

		row, err := r.Entities.Get(ctx, it.EntityType, it.EntityID)
		if err != nil || row == nil {
			return err
		}
		if remaining > 0 || row.Deleted || row.Meta.SyncStatus != models.StatusPending {
			if res.ServerUpdatedAt == nil {
				return nil
			}
			return r.Entities.SetServerUpdatedAt(ctx, it.EntityType, it.EntityID, *res.ServerUpdatedAt)
		}
		if res.ServerUpdatedAt != nil {
			return r.Entities.MarkSynced(ctx, it.EntityType, it.EntityID, *res.ServerUpdatedAt)
		}
		return r.Entities.SetStatus(ctx, it.EntityType, it.EntityID, models.StatusSynced)
	})
	if err != nil {
		return err
	}
	t.add(func(r *Report) { r.Applied++ })
	s.notifyReplay(it.EntityType, OutcomeApplied)
	s.logger.Debug(ctx, "mutation confirmed", "type", it.EntityType, "id", it.EntityID, "action", it.Action)
	return nil
}

// conflict records a ledger row, flags the entity and drops its queued
// items in one transaction. The ledger keeps the row as it is now, so an
// edit saved while the push was in flight survives in LocalData.
func (s *Synchronizer) conflict(ctx context.Context, it models.QueueItem, res *wire.PushResult, t *tally) error {
	c := &models.Conflict{
		EntityType:      it.EntityType,
		EntityID:        it.EntityID,
		LocalData:       it.Data,
		ServerData:      res.ServerData,
		ServerUpdatedAt: res.ServerUpdatedAt,
		CreatedAt:       s.store.Now(),
	}
	err := s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		row, err := r.Entities.Get(ctx, it.EntityType, it.EntityID)
		if err != nil {
			return err
		}
		if row != nil && len(row.Data) > 0 {
			c.LocalData = row.Data
		}
		if err := r.Conflicts.Record(ctx, c); err != nil {
			return err
		}
		if row != nil {
			if err := r.Entities.SetStatus(ctx, it.EntityType, it.EntityID, models.StatusConflict); err != nil {
				return err
			}
		}
		_, err = r.Queue.RemoveForEntity(ctx, it.EntityType, it.EntityID)
		return err
	})
	if err != nil {
		return err
	}
	t.add(func(r *Report) { r.Conflicts++ })
	s.notifyReplay(it.EntityType, OutcomeConflict)
	s.logger.Warn(ctx, "sync conflict", "type", it.EntityType, "id", it.EntityID, "conflict", c.ID)
	return nil
}

// fail records a retryable failure and schedules the next attempt, or
// dead-letters the item once the policy is exhausted.
func (s *Synchronizer) fail(ctx context.Context, it models.QueueItem, cause error, t *tally) error {
	now := s.store.Now()
	dead := false
	err := s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		attempts, err := r.Queue.RecordAttemptFailure(ctx, it.ID, now, cause.Error())
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.policy.Exhausted(attempts) {
			dead = true
			return r.Queue.MarkDead(ctx, it.ID)
		}
		return r.Queue.Defer(ctx, it.ID, s.policy.NextAttempt(now, attempts))
	})
	if err != nil {
		return err
	}
	outcome := OutcomeRetry
	if dead {
		outcome = OutcomeDead
		t.add(func(r *Report) { r.DeadLettered++ })
		s.logger.Error(ctx, "mutation dead-lettered", "type", it.EntityType, "id", it.EntityID, "error", cause)
	} else {
		t.add(func(r *Report) { r.Retried++ })
		s.logger.Warn(ctx, "mutation failed, will retry", "type", it.EntityType, "id", it.EntityID, "error", cause)
	}
	s.notifyReplay(it.EntityType, outcome)
	return nil
}

// reject handles a failure retrying cannot fix: the item is dead-lettered
// and the entity flagged as error.
func (s *Synchronizer) reject(ctx context.Context, it models.QueueItem, cause error, t *tally) error {
	now := s.store.Now()
	err := s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		if _, err := r.Queue.RecordAttemptFailure(ctx, it.ID, now, cause.Error()); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := r.Queue.MarkDead(ctx, it.ID); err != nil {
			return err
		}
		return r.Entities.SetStatus(ctx, it.EntityType, it.EntityID, models.StatusError)
	})
	if err != nil {
		return err
	}
	t.add(func(r *Report) { r.Rejected++ })
	s.notifyReplay(it.EntityType, OutcomeRejected)
	s.logger.Error(ctx, "mutation rejected", "type", it.EntityType, "id", it.EntityID, "error", cause)
	return nil
}

func (s *Synchronizer) pullCursor(ctx context.Context) (*time.Time, error) {
	v, ok, err := s.store.Repos().Metadata.Get(ctx, metadata.KeyPullCursor)
	if err != nil || !ok || len(v) == 0 {
		return nil, err
	}
	t, err := timex.Parse(string(v))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pull cursor: %w", err)
	}
	return &t, nil
}

// Pull fetches server changes since the stored cursor. A server record
// only replaces a local row that is absent or synced; local work waiting
// for replay or resolution wins. Reference kinds are replaced wholesale; a
// kind with malformed items keeps its previous contents.
func (s *Synchronizer) Pull(ctx context.Context) (int, error) {
	since, err := s.pullCursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	changes, err := s.remote.Pull(ctx, since)
	if err != nil {
		return 0, err
	}

	applied := 0
	now := s.store.Now()
	err = s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		for _, rec := range changes.Records {
			t := models.EntityType(rec.EntityType)
			if k, ok := models.KindOf(t); !ok || k.Reference {
				s.logger.Warn(ctx, "skipping record of unknown type", "type", rec.EntityType, "id", rec.EntityID)
				continue
			}
			row, err := r.Entities.Get(ctx, t, rec.EntityID)
			if err != nil {
				return err
			}
			if row != nil && row.Meta.SyncStatus != models.StatusSynced {
				continue
			}
			if rec.Deleted {
				if row != nil {
					if err := r.Entities.Purge(ctx, t, rec.EntityID); err != nil {
						return err
					}
					applied++
				}
				continue
			}
			updated := rec.UpdatedAt
			err = r.Entities.Put(ctx, t, &entities.Row{
				ID:   rec.EntityID,
				Data: rec.Data,
				Meta: models.SyncMeta{SyncStatus: models.StatusSynced, LocalUpdatedAt: now, ServerUpdatedAt: &updated},
			})
			if err != nil {
				return err
			}
			applied++
		}

		for kind, items := range changes.Reference {
			t := models.EntityType(kind)
			if k, ok := models.KindOf(t); !ok || !k.Reference {
				s.logger.Warn(ctx, "skipping unknown reference kind", "type", kind)
				continue
			}
			if items == nil {
				items = []json.RawMessage{}
			}
			err := r.Reference.ReplaceAll(ctx, t, items)
			if errors.Is(err, common.ErrValidation) {
				s.logger.Warn(ctx, "skipping malformed reference data", "type", kind, "error", err)
				continue
			}
			if err != nil {
				return err
			}
		}

		if changes.ServerTime.IsZero() {
			return nil
		}
		return r.Metadata.Set(ctx, metadata.KeyPullCursor, []byte(timex.Format(changes.ServerTime)))
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// SyncOnce runs one full pass: drain the queue, pull server changes and,
// when nothing failed, stamp lastSyncAt. Passes never overlap.
func (s *Synchronizer) SyncOnce(ctx context.Context) (rep Report, err error) {
	s.pass.Lock()
	defer s.pass.Unlock()

	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		for _, o := range s.observers {
			o.PassFinished(ctx, rep, err)
		}
	}()

	rep, err = s.Drain(ctx)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	rep.Pulled, err = s.Pull(ctx)
	if err != nil {
		return rep, err
	}
	if rep.Failed() {
		return rep, nil
	}
	if err := s.store.SetLastSyncAt(ctx, s.store.Now()); err != nil {
		return rep, err
	}
	s.logger.Info(ctx, "sync pass finished", "applied", rep.Applied, "conflicts", rep.Conflicts, "pulled", rep.Pulled)
	return rep, nil
}

// Run syncs every syncInterval while the authority answers pings, which are
// sent every onlineInterval. It returns when ctx is done.
func (s *Synchronizer) Run(ctx context.Context, syncInterval, onlineInterval time.Duration) error {
	pingTicker := time.NewTicker(onlineInterval)
	defer pingTicker.Stop()
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	s.logger.Info(ctx, "sync daemon started", "interval", syncInterval)

	runPass := func() {
		if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn(ctx, "sync pass failed", "error", err)
		}
	}

	if s.CheckOnline(ctx) {
		runPass()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sync daemon stopped")
			return nil
		case <-pingTicker.C:
			was := s.Online()
			if s.CheckOnline(ctx) && !was {
				runPass()
			}
		case <-syncTicker.C:
			if s.Online() {
				runPass()
			}
		}
	}
}
