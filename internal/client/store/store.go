// Package store is the client's local database. A Store owns one SQLite
// handle, applies migrations on open and hands out typed entity
// collections plus the raw repositories the synchronizer works with.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/migrations"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/reference"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/filex"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/timex"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

// Repositories groups the repositories bound to one handle, either the
// database itself or a transaction.
type Repositories struct {
	Entities  entities.Repository
	Queue     queue.Repository
	Conflicts conflicts.Repository
	Metadata  metadata.Repository
	Reference reference.Repository
}

func newRepositories(db dbx.DBTX) Repositories {
	return Repositories{
		Entities:  entities.NewSQLiteRepository(db),
		Queue:     queue.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
		Metadata:  metadata.NewSQLiteRepository(db),
		Reference: reference.NewSQLiteRepository(db),
	}
}

type Option func(*Store)

// WithClock replaces time.Now for local timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger logging.Logger
	repos  Repositories

	Patients      *Collection[*models.Patient]
	Appointments  *Collection[*models.Appointment]
	Visits        *Collection[*models.Visit]
	Prescriptions *Collection[*models.Prescription]
	LabOrders     *Collection[*models.LabOrder]
	Bills         *Collection[*models.Bill]
}

func dsn(path string) string {
	if path == Memory {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. Pass Memory for a throwaway store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "store")

	if path != Memory {
		if err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", common.ErrStorage, err)
	}
	// One connection serializes writers; it is also what keeps an
	// in-memory database alive between calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to open database: %w", common.ErrStorage, err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	s.db = db
	s.repos = newRepositories(db)

	s.Patients = newCollection(s, models.TypePatient, func() *models.Patient { return &models.Patient{} })
	s.Appointments = newCollection(s, models.TypeAppointment, func() *models.Appointment { return &models.Appointment{} })
	s.Visits = newCollection(s, models.TypeVisit, func() *models.Visit { return &models.Visit{} })
	s.Prescriptions = newCollection(s, models.TypePrescription, func() *models.Prescription { return &models.Prescription{} })
	s.LabOrders = newCollection(s, models.TypeLabOrder, func() *models.LabOrder { return &models.LabOrder{} })
	s.Bills = newCollection(s, models.TypeBill, func() *models.Bill { return &models.Bill{} })

	s.logger.Debug(ctx, "store opened", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("%w: failed to close database: %w", common.ErrStorage, err)
	}
	return nil
}

// DB exposes the handle for maintenance tasks such as backups.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Path() string { return s.path }

// Now is the store clock in UTC.
func (s *Store) Now() time.Time { return s.now().UTC() }

// Repos returns repositories bound to the database outside any transaction.
func (s *Store) Repos() Repositories { return s.repos }

// Tx runs fn with repositories bound to a single transaction. Errors from
// fn are returned wrapped with ErrStorage unless they already carry a
// domain error.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepositories(tx))
	})
	return wrapStorage(err)
}

var domainErrors = []error{
	common.ErrStorage,
	common.ErrNotFound,
	common.ErrConflict,
	common.ErrAlreadyResolved,
	common.ErrValidation,
	common.ErrTransient,
	common.ErrUnauthorized,
	context.Canceled,
	context.DeadlineExceeded,
}

// wrapStorage marks err as a local persistence failure.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}

// LastSyncAt reports when the last fully successful sync pass finished.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := s.repos.Metadata.Get(ctx, metadata.KeyLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, false, wrapStorage(err)
	}
	t, err := timex.Parse(string(v))
	if err != nil {
		return time.Time{}, false, wrapStorage(fmt.Errorf("failed to parse %s: %w", metadata.KeyLastSyncAt, err))
	}
	return t, true, nil
}

func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return wrapStorage(s.repos.Metadata.Set(ctx, metadata.KeyLastSyncAt, []byte(timex.Format(t))))
}

// DeviceID returns the persistent id of this installation, creating it on
// first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.Tx(ctx, func(ctx context.Context, r Repositories) error {
		v, ok, err := r.Metadata.Get(ctx, metadata.KeyDeviceID)
		if err != nil {
			return err
		}
		if ok && len(v) > 0 {
			id = string(v)
			return nil
		}
		id = uuid.NewString()
		return r.Metadata.Set(ctx, metadata.KeyDeviceID, []byte(id))
	})
	return id, err
}

// Row returns the raw stored row of any entity kind, tombstones included.
func (s *Store) Row(ctx context.Context, t models.EntityType, id string) (*entities.Row, error) {
	row, err := s.repos.Entities.Get(ctx, t, id)
	return row, wrapStorage(err)
}

// ListReference decodes every stored reference record of type t.
func ListReference[T any](ctx context.Context, s *Store, t models.EntityType) ([]T, error) {
	raw, err := s.repos.Reference.List(ctx, t)
	if err != nil {
		return nil, wrapStorage(err)
	}
	result := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, wrapStorage(fmt.Errorf("failed to decode %s: %w", t, err))
		}
		result = append(result, v)
	}
	return result, nil
}

// GetReference decodes one reference record; ok is false when absent.
func GetReference[T any](ctx context.Context, s *Store, t models.EntityType, id string) (v T, ok bool, err error) {
	raw, err := s.repos.Reference.Get(ctx, t, id)
	if err != nil || raw == nil {
		return v, false, wrapStorage(err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, wrapStorage(fmt.Errorf("failed to decode %s: %w", t, err))
	}
	return v, true, nil
}

// Requeue returns a dead-lettered item to the queue. An entity that a
// rejection left in error goes back to pending.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.Tx(ctx, func(ctx context.Context, r Repositories) error {
		it, err := r.Queue.Get(ctx, id)
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("queue item[%s]: %w", id, common.ErrNotFound)
		}
		if err := r.Queue.Requeue(ctx, id); err != nil {
			return err
		}
		return clearError(ctx, r, it.EntityType, it.EntityID)
	})
}

// RequeueDead requeues every dead-lettered item and reports how many.
func (s *Store) RequeueDead(ctx context.Context) (int, error) {
	var n int
	err := s.Tx(ctx, func(ctx context.Context, r Repositories) error {
		dead, err := r.Queue.ListDead(ctx)
		if err != nil {
			return err
		}
		for _, it := range dead {
			if err := clearError(ctx, r, it.EntityType, it.EntityID); err != nil {
				return err
			}
		}
		requeued, err := r.Queue.RequeueAll(ctx)
		n = int(requeued)
		return err
	})
	return n, err
}

func clearError(ctx context.Context, r Repositories, t models.EntityType, id string) error {
	row, err := r.Entities.Get(ctx, t, id)
	if err != nil || row == nil || row.Meta.SyncStatus != models.StatusError {
		return err
	}
	return r.Entities.SetStatus(ctx, t, id, models.StatusPending)
}
