// Package services holds the authority's business logic: device login,
// versioned record replay with conflict detection, change feeds and backup
// presigning.
package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/server/auth"
	"github.com/dmitrijs2005/medsync/internal/server/config"
	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/medsync/internal/wire"
)

// ErrBackupDisabled is returned by PresignBackup when no bucket is set up.
var ErrBackupDisabled = errors.New("backup storage is not configured")

type AuthorityService struct {
	repos        repomanager.RepositoryManager
	presigner    Presigner
	logger       logging.Logger
	jwtSecret    []byte
	tokenTTL     time.Duration
	deviceSecret []byte
	now          func() time.Time

	// mu orders pushes against each other and against pulls, so a pull
	// cursor never skips a stamp handed out concurrently.
	mu        sync.RWMutex
	lastStamp time.Time
}

// NewAuthorityService wires the service. p may be nil, which disables
// backup presigning.
func NewAuthorityService(m repomanager.RepositoryManager, cfg *config.Config, p Presigner, l logging.Logger) *AuthorityService {
	if l == nil {
		l = logging.Discard()
	}
	return &AuthorityService{
		repos:        m,
		presigner:    p,
		logger:       l.With("module", "authority"),
		jwtSecret:    []byte(cfg.SecretKey),
		tokenTTL:     cfg.AccessTokenValidityDuration,
		deviceSecret: []byte(cfg.DeviceSecret),
		now:          time.Now,
	}
}

// Login checks the enrollment secret and mints an access token for the
// device.
func (s *AuthorityService) Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", common.ErrValidation)
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), s.deviceSecret) != 1 {
		s.logger.Warn(ctx, "login rejected", "device", req.DeviceID)
		return nil, common.ErrUnauthorized
	}
	token, exp, err := auth.GenerateToken(req.DeviceID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.logger.Info(ctx, "device logged in", "device", req.DeviceID)
	return &wire.LoginResponse{AccessToken: token, ExpiresAt: exp.UTC()}, nil
}

func validate(m wire.Mutation) error {
	switch {
	case m.EntityType == "":
		return fmt.Errorf("%w: entity type is required", common.ErrValidation)
	case m.EntityID == "":
		return fmt.Errorf("%w: entity id is required", common.ErrValidation)
	case !m.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", common.ErrValidation, m.Action)
	}
	if m.Action == wire.ActionDelete {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(m.Data, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: %s data must be a JSON object", common.ErrValidation, m.Action)
	}
	return nil
}

// sameData compares two JSON documents by value, ignoring key order and
// whitespace.
func sameData(a, b json.RawMessage) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

// stamp returns the next version for a record whose current version is
// prev. Versions have microsecond precision, so they survive a PostgreSQL
// round trip, and are strictly increasing across the whole server.
func (s *AuthorityService) stamp(prev *models.Record) time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	floor := s.lastStamp
	if prev != nil && prev.UpdatedAt.After(floor) {
		floor = prev.UpdatedAt
	}
	if !t.After(floor) {
		t = floor.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func applied(at time.Time) *wire.PushResult {
	return &wire.PushResult{Outcome: wire.OutcomeApplied, ServerUpdatedAt: &at}
}

// conflict reports the server copy back; a missing or deleted record is
// reported without data or version.
func conflict(rec *models.Record) *wire.PushResult {
	res := &wire.PushResult{Outcome: wire.OutcomeConflict}
	if rec.Live() {
		at := rec.UpdatedAt
		res.ServerUpdatedAt = &at
		res.ServerData = rec.Data
	}
	return res
}

func baseMatches(base *time.Time, rec *models.Record) bool {
	return base != nil && base.Equal(rec.UpdatedAt)
}

// Push applies one replayed mutation against the canonical record.
func (s *AuthorityService) Push(ctx context.Context, deviceID string, m wire.Mutation) (*wire.PushResult, error) {
	if err := validate(m); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res *wire.PushResult
	err := s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		cur, err := r.Records.Get(ctx, m.EntityType, m.EntityID)
		if err != nil {
			return err
		}
		res, err = s.decide(ctx, r, cur, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "mutation replayed",
		"device", deviceID, "type", m.EntityType, "id", m.EntityID, "action", m.Action, "outcome", res.Outcome)
	return res, nil
}

func (s *AuthorityService) decide(ctx context.Context, r repomanager.Repositories, cur *models.Record, m wire.Mutation) (*wire.PushResult, error) {
	put := func(data json.RawMessage, deleted bool) (*wire.PushResult, error) {
		rec := &models.Record{EntityType: m.EntityType, EntityID: m.EntityID, Data: data, UpdatedAt: s.stamp(cur), Deleted: deleted}
		if err := r.Records.Put(ctx, rec); err != nil {
			return nil, err
		}
		return applied(rec.UpdatedAt), nil
	}

	switch m.Action {
	case wire.ActionCreate:
		if !cur.Live() {
			return put(m.Data, false)
		}
		if sameData(cur.Data, m.Data) {
			return applied(cur.UpdatedAt), nil
		}
		return conflict(cur), nil

	case wire.ActionUpdate:
		if !cur.Live() {
			if m.BaseUpdatedAt == nil {
				return put(m.Data, false)
			}
			return conflict(cur), nil
		}
		if baseMatches(m.BaseUpdatedAt, cur) {
			return put(m.Data, false)
		}
		if sameData(cur.Data, m.Data) {
			return applied(cur.UpdatedAt), nil
		}
		return conflict(cur), nil

	default:
		if !cur.Live() {
			res := &wire.PushResult{Outcome: wire.OutcomeApplied}
			if cur != nil {
				at := cur.UpdatedAt
				res.ServerUpdatedAt = &at
			}
			return res, nil
		}
		if baseMatches(m.BaseUpdatedAt, cur) {
			return put(nil, true)
		}
		return conflict(cur), nil
	}
}

// Pull returns every record changed after since, tombstones included, and
// the full reference snapshot. ServerTime is the newest version returned,
// or since when nothing changed.
func (s *AuthorityService) Pull(ctx context.Context, deviceID string, since *time.Time) (*wire.Changes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repos := s.repos.Repos()
	recs, err := repos.Records.ChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	ref, err := repos.Reference.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := &wire.Changes{Records: make([]wire.Record, 0, len(recs)), Reference: ref}
	if since != nil {
		out.ServerTime = since.UTC()
	}
	for _, r := range recs {
		out.Records = append(out.Records, wire.Record{
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Data:       r.Data,
			UpdatedAt:  r.UpdatedAt,
			Deleted:    r.Deleted,
		})
		if r.UpdatedAt.After(out.ServerTime) {
			out.ServerTime = r.UpdatedAt
		}
	}

	s.logger.Debug(ctx, "changes pulled", "device", deviceID, "records", len(out.Records))
	return out, nil
}

// PresignBackup hands out an upload URL under the device's own prefix.
// Only the base of name is used.
func (s *AuthorityService) PresignBackup(ctx context.Context, deviceID, name string) (*wire.PresignResponse, error) {
	if s.presigner == nil {
		return nil, ErrBackupDisabled
	}
	base := path.Base(path.Clean("/" + name))
	if base == "/" || base == "." {
		return nil, fmt.Errorf("%w: backup name is required", common.ErrValidation)
	}
	key := path.Join("backups", deviceID, base)
	url, err := s.presigner.PresignPut(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to presign backup upload: %w", err)
	}
	s.logger.Info(ctx, "backup upload presigned", "device", deviceID, "key", key)
	return &wire.PresignResponse{Key: key, URL: url}, nil
}

// SeedReference loads a reference data file shaped as {"kind": [items]}.
// Every kind in the file replaces the stored snapshot of that kind; items
// need a string "id".
func (s *AuthorityService) SeedReference(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read reference data: %w", err)
	}
	var kinds map[string][]json.RawMessage
	if err := json.Unmarshal(data, &kinds); err != nil {
		return fmt.Errorf("%w: parse reference data %s: %w", common.ErrValidation, file, err)
	}

	batch := make(map[string][]models.ReferenceItem, len(kinds))
	for kind, raw := range kinds {
		for i, item := range raw {
			var head struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(item, &head); err != nil || head.ID == "" {
				return fmt.Errorf("%w: %s item %d has no id", common.ErrValidation, kind, i)
			}
			batch[kind] = append(batch[kind], models.ReferenceItem{Kind: kind, ID: head.ID, Data: item})
		}
	}

	err = s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		for kind, items := range batch {
			if err := r.Reference.ReplaceAll(ctx, kind, items); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "reference data loaded", "file", file, "kinds", len(batch))
	return nil
}
