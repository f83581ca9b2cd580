package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/client"
	"github.com/dmitrijs2005/medsync/internal/client/config"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeRemote struct {
	client.Remote

	mu         sync.Mutex
	pushes     []wire.Mutation
	push       func(m wire.Mutation) (*wire.PushResult, error)
	deviceID   string
	presignURL string
}

func (f *fakeRemote) PresignBackup(_ context.Context, name string) (*wire.PresignResponse, error) {
	return &wire.PresignResponse{Key: "backups/" + name, URL: f.presignURL}, nil
}

func (f *fakeRemote) Ping(context.Context) error { return nil }
func (f *fakeRemote) Close() error               { return nil }

func (f *fakeRemote) Push(_ context.Context, m wire.Mutation) (*wire.PushResult, error) {
	f.mu.Lock()
	f.pushes = append(f.pushes, m)
	f.mu.Unlock()
	if f.push != nil {
		return f.push(m)
	}
	at := serverTime
	return &wire.PushResult{Outcome: wire.OutcomeApplied, ServerUpdatedAt: &at}, nil
}

func (f *fakeRemote) Pull(context.Context, *time.Time) (*wire.Changes, error) {
	return &wire.Changes{ServerTime: serverTime}, nil
}

type harness struct {
	t      *testing.T
	db     string
	remote *fakeRemote
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, db: filepath.Join(t.TempDir(), "medsync.db"), remote: &fakeRemote{}}
	h.deps = DefaultDeps()
	h.deps.Logger = func(*config.Config) logging.Logger { return logging.Discard() }
	h.deps.Dial = func(_ context.Context, _ *config.Config, deviceID string) (client.Remote, error) {
		h.remote.deviceID = deviceID
		return h.remote, nil
	}
	return h
}

// run executes one command against the harness database.
func (h *harness) run(stdin string, args ...string) (string, error) {
	root := NewRootCommand(h.deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--db", h.db))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) register(args ...string) string {
	h.t.Helper()
	out := h.mustRun(append([]string{"patient", "register"}, args...)...)
	fields := strings.Fields(out)
	require.Len(h.t, fields, 4, out)
	return fields[2]
}

func TestPatient_RegisterGetSearch(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor", "--phone", "+2348030000001", "--number", "MRN-001")
	h.register("--first-name", "Emeka", "--last-name", "Obi")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("patient", "get", id)), &got))
	assert.Equal(t, "Chioma", got["firstName"])
	assert.Equal(t, "pending", got["syncStatus"])

	out := h.mustRun("patient", "search", "CHIOMA")
	assert.Contains(t, out, id)
	assert.NotContains(t, out, "Emeka")

	out = h.mustRun("patient", "find", "mrn-001")
	assert.Contains(t, out, `"phone": "+2348030000001"`)

	out = h.mustRun("patient", "find", "--field", "phone", "+2348030000001")
	assert.Contains(t, out, id)

	out = h.mustRun("patient", "pending")
	assert.Contains(t, out, "Chioma Okafor")
	assert.Contains(t, out, "Emeka Obi")

	assert.Equal(t, "2 pending (0 dead)\n", h.mustRun("queue", "count"))
}

func TestPatient_RegisterRefusesDuplicates(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor", "--phone", "+2348030000001", "--number", "MRN-001", "--email", "chioma@example.com")

	for _, dup := range [][]string{
		{"--number", "mrn-001"},
		{"--phone", "+2348030000001"},
		{"--email", "CHIOMA@example.com"},
	} {
		args := append([]string{"patient", "register", "--first-name", "Chioma", "--last-name", "Obi"}, dup...)
		_, err := h.run("", args...)
		require.ErrorIs(t, err, common.ErrDuplicate, "%v", dup)
		assert.Contains(t, err.Error(), id)
	}
	assert.Equal(t, "1 pending (0 dead)\n", h.mustRun("queue", "count"))

	other := h.register("--first-name", "Chioma", "--last-name", "Obi", "--phone", "+2348030000001", "--force")
	assert.NotEqual(t, id, other)
	assert.Equal(t, "2 pending (0 dead)\n", h.mustRun("queue", "count"))
}

func TestReference_ListAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := store.Open(ctx, h.db)
	require.NoError(t, err)
	err = s.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		return r.Reference.ReplaceAll(ctx, models.TypeRole, []json.RawMessage{
			json.RawMessage(`{"id":"r1","name":"Nurse"}`),
			json.RawMessage(`{"id":"r2","name":"Doctor","permissions":["prescribe"]}`),
		})
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var roles []models.Role
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("reference", "list", "role")), &roles))
	require.Len(t, roles, 2)
	assert.Equal(t, "Nurse", roles[0].Name)
	assert.Equal(t, []string{"prescribe"}, roles[1].Permissions)

	var role models.Role
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("reference", "get", "role", "r2")), &role))
	assert.Equal(t, "Doctor", role.Name)

	assert.Equal(t, "[]\n", h.mustRun("reference", "list", "staff"))

	_, err = h.run("", "reference", "get", "role", "r9")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = h.run("", "reference", "list", "patient")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPatient_EditQueuesUpdate(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor")

	out := h.mustRun("patient", "edit", id, "--phone", "+2348030000009", "--kin-name", "Ada Okafor")
	assert.Contains(t, out, "updated patient "+id)

	var got models.Patient
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("patient", "get", id)), &got))
	assert.Equal(t, "+2348030000009", got.Phone)
	assert.Equal(t, "Okafor", got.LastName)
	require.NotNil(t, got.NextOfKin)
	assert.Equal(t, "Ada Okafor", got.NextOfKin.Name)

	out = h.mustRun("queue", "list")
	assert.Equal(t, 1, strings.Count(out, "create"))
	assert.Equal(t, 1, strings.Count(out, "update"))
}

func TestPatient_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "patient", "get", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = h.run("", "patient", "register", "--first-name", "OnlyFirst")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.run("", "patient", "find", "nobody@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = h.run("", "entity", "get", "staff", "s1")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.run("", "conflicts", "resolve", "c1", "mine")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPatient_DeleteLeavesTombstone(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor")

	h.mustRun("patient", "delete", id)
	_, err := h.run("", "patient", "get", id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var row rowView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("entity", "get", "patient", id)), &row))
	assert.True(t, row.Deleted)
	assert.Equal(t, models.StatusPending, row.SyncStatus)
}

func TestSync_ConfirmsQueueAndStampsLastSync(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor")

	out := h.mustRun("sync", "--device-id", "ward-7")
	assert.Contains(t, out, "applied 1, conflicts 0")
	assert.Equal(t, "ward-7", h.remote.deviceID)
	require.Len(t, h.remote.pushes, 1)
	assert.Equal(t, wire.ActionCreate, h.remote.pushes[0].Action)
	assert.Equal(t, id, h.remote.pushes[0].EntityID)

	var snap models.StatusSnapshot
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("status", "--offline")), &snap))
	assert.Zero(t, snap.PendingCount)
	assert.False(t, snap.Online)
	require.NotNil(t, snap.LastSyncAt)

	require.NoError(t, json.Unmarshal([]byte(h.mustRun("status")), &snap))
	assert.True(t, snap.Online)

	var row rowView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("entity", "get", "patient", id)), &row))
	assert.Equal(t, models.StatusSynced, row.SyncStatus)
	assert.Equal(t, serverTime.Format(time.RFC3339), row.ServerUpdatedAt)
}

func TestConflicts_ListShowResolve(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor")

	h.remote.push = func(m wire.Mutation) (*wire.PushResult, error) {
		at := serverTime
		data := json.RawMessage(`{"id":"` + m.EntityID + `","firstName":"Chioma","lastName":"Obi"}`)
		return &wire.PushResult{Outcome: wire.OutcomeConflict, ServerUpdatedAt: &at, ServerData: data}, nil
	}
	out := h.mustRun("sync")
	assert.Contains(t, out, "conflicts 1")

	out = h.mustRun("conflicts", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "changed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	conflictID := strings.Fields(lines[1])[0]

	var c models.Conflict
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("conflicts", "show", conflictID)), &c))
	assert.Equal(t, id, c.EntityID)

	h.mustRun("conflicts", "resolve", conflictID, "server")
	assert.Equal(t, "no unresolved conflicts\n", h.mustRun("conflicts", "list"))

	var got models.Patient
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("patient", "get", id)), &got))
	assert.Equal(t, "Obi", got.LastName)
}

func TestQueue_RequeueRejected(t *testing.T) {
	h := newHarness(t)
	h.register("--first-name", "Chioma", "--last-name", "Okafor")

	h.remote.push = func(wire.Mutation) (*wire.PushResult, error) {
		return nil, fmt.Errorf("%w: bad payload", common.ErrValidation)
	}
	out := h.mustRun("sync")
	assert.Contains(t, out, "rejected 1")
	assert.Equal(t, "1 pending (1 dead)\n", h.mustRun("queue", "count"))
	assert.Contains(t, h.mustRun("queue", "list", "--dead"), "bad payload")

	assert.Equal(t, "requeued 1 items\n", h.mustRun("queue", "requeue"))
	assert.Equal(t, "1 pending (0 dead)\n", h.mustRun("queue", "count"))

	h.remote.push = nil
	assert.Contains(t, h.mustRun("sync"), "applied 1")
	assert.Equal(t, "queue is empty\n", h.mustRun("queue", "list"))
}

func TestBackup_CreateAndRestore(t *testing.T) {
	h := newHarness(t)
	id := h.register("--first-name", "Chioma", "--last-name", "Okafor")
	dir := filepath.Join(t.TempDir(), "backups")

	out, err := h.run("pass\npass\n", "backup", "create", "--backup-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "stored at "+dir)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	file := filepath.Join(dir, files[0].Name())

	other := newHarness(t)
	_, err = other.run("wrong\n", "backup", "restore", file)
	require.Error(t, err)

	_, err = other.run("pass\n", "backup", "restore", file)
	require.NoError(t, err)
	assert.Contains(t, other.mustRun("patient", "get", id), "Chioma")
}

func TestBackup_PassphraseMismatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("a\nb\n", "backup", "create", "--backup-dir", t.TempDir())
	assert.ErrorIs(t, err, ErrPassphraseMismatch)
}

func TestBackup_CreateThroughPresignedURL(t *testing.T) {
	var (
		mu   sync.Mutex
		body []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
	}))
	defer ts.Close()

	h := newHarness(t)
	h.register("--first-name", "Chioma", "--last-name", "Okafor")
	h.remote.presignURL = ts.URL + "/vault/upload"

	out, err := h.run("pass\npass\n", "backup", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "stored at backups/medsync-")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "MSB1", string(body[:4]))
}
