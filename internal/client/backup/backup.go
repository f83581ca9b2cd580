// Package backup takes encrypted snapshots of the local database and ships
// them to object storage, and restores them.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/cryptox"
	"github.com/dmitrijs2005/medsync/internal/filex"
	"github.com/dmitrijs2005/medsync/internal/logging"
)

const Extension = ".msb"

// Snapshot writes a consistent copy of db to dst. dst must not exist.
func Snapshot(ctx context.Context, db *sql.DB, dst string) error {
	if err := filex.EnsureParentDir(dst); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// Result describes a finished backup.
type Result struct {
	Name     string
	Location string
	Size     int
}

type Service struct {
	store    *store.Store
	uploader Uploader
	logger   logging.Logger
}

func NewService(s *store.Store, u Uploader, l logging.Logger) *Service {
	if l == nil {
		l = logging.Discard()
	}
	return &Service{store: s, uploader: u, logger: l.With("module", "backup")}
}

// Name builds the object name for a backup taken at t.
func Name(deviceID string, t time.Time) string {
	return fmt.Sprintf("medsync-%s-%s%s", deviceID, t.UTC().Format("20060102T150405Z"), Extension)
}

// Create snapshots the store, seals the snapshot with passphrase and hands
// it to the uploader.
func (s *Service) Create(ctx context.Context, passphrase []byte) (*Result, error) {
	if s.uploader == nil {
		return nil, errors.New("no backup destination configured")
	}
	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "medsync-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snap := filepath.Join(dir, "snapshot.db")
	if err := Snapshot(ctx, s.store.DB(), snap); err != nil {
		return nil, err
	}
	plain, err := os.ReadFile(snap)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := cryptox.Seal(plain, passphrase)
	if err != nil {
		return nil, err
	}

	name := Name(deviceID, s.store.Now())
	loc, err := s.uploader.Upload(ctx, name, sealed)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	s.logger.Info(ctx, "backup created", "name", name, "location", loc, "bytes", len(sealed))
	return &Result{Name: name, Location: loc, Size: len(sealed)}, nil
}

// Restore decrypts sealed and installs it as the database at dbPath. The
// snapshot is opened and migrated before it replaces anything, so a bad
// passphrase or corrupt blob leaves dbPath untouched. Nothing may hold
// dbPath open while this runs.
func Restore(ctx context.Context, sealed, passphrase []byte, dbPath string) error {
	plain, err := cryptox.Open(sealed, passphrase)
	if err != nil {
		return err
	}
	if err := filex.EnsureParentDir(dbPath); err != nil {
		return err
	}

	tmp, err := filex.TempPath(filepath.Dir(dbPath), ".restore-*.db")
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	s, err := store.Open(ctx, tmp)
	if err != nil {
		return fmt.Errorf("verify snapshot: %w", err)
	}
	if err := s.Close(); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(tmp + suffix)
		_ = os.Remove(dbPath + suffix)
	}

	if err := os.Rename(tmp, dbPath); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}
