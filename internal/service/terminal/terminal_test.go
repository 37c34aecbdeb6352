package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hotspotdomain "mnetifi-service/internal/domain/hotspot"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/terminal"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/routeros"
	"mnetifi-service/internal/service/hotspot"
)

type memRepo struct {
	mu      sync.Mutex
	rows    []terminal.Result
	seedMax int64
}

func (m *memRepo) Record(_ context.Context, res *terminal.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *res)
	return nil
}

func (m *memRepo) MaxSequence(context.Context, int64) (int64, error) { return m.seedMax, nil }

func (m *memRepo) History(_ context.Context, tenantID int64, f *terminal.HistoryFilters) ([]terminal.Result, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Page, f.PageSize = 1, 20
	return m.rows, int64(len(m.rows)), nil
}

type hotspots struct{}

func (hotspots) Resolve(_ context.Context, tenantID, id int64) (*hotspot.Target, error) {
	if id != 7 {
		return nil, xerrors.ErrNotFound
	}
	key := "ssh-ed25519 AAAA"
	return &hotspot.Target{
		Hotspot: hotspotdomain.Hotspot{
			ID: 7, TenantID: tenantID, RouterHost: "10.0.0.1", RouterPort: 22,
			RouterUsername: "admin", HostKey: &key,
		},
		Password: "plain",
	}, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	got routeros.Target
	out string
	err error
}

func (f *fakeRunner) Run(_ context.Context, t routeros.Target, cmds ...string) ([]routeros.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = t
	return []routeros.Output{{Command: cmds[0], Text: f.out, Err: f.err}}, f.err
}

type counters struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *counters) TerminalCommand(o string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

type recorder struct {
	mu       sync.Mutex
	entities []resource.Entity
}

func (r *recorder) Invalidate(_ context.Context, _ int64, e ...resource.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, e...)
}

type fixture struct {
	svc    *TerminalService
	repo   *memRepo
	runner *fakeRunner
	counts *counters
	inv    *recorder
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := &fixture{repo: &memRepo{}, runner: &fakeRunner{}, counts: &counters{}, inv: &recorder{}, mr: mr}
	f.svc = NewTerminalService(f.repo, hotspots{}, f.runner, rdb, f.counts, f.inv, zap.NewNop())
	return f
}

func TestExecuteRecordsResult(t *testing.T) {
	f := newFixture(t)
	f.runner.out = "name: kilimani"

	res, err := f.svc.Execute(t.Context(), 1, 42, &terminal.ExecuteRequest{HotspotID: 7, Command: "  /system identity print "})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Sequence)
	assert.Equal(t, "/system identity print", res.Command)
	assert.Equal(t, "name: kilimani", res.Output)
	assert.Equal(t, int64(42), res.ExecutedBy)

	assert.Equal(t, "plain", f.runner.got.Password)
	assert.Equal(t, "ssh-ed25519 AAAA", f.runner.got.HostKey)
	require.Len(t, f.repo.rows, 1)
	assert.Equal(t, []string{"success"}, f.counts.outcomes)
	assert.Equal(t, []resource.Entity{resource.Terminal}, f.inv.entities)
}

func TestExecuteFailureIsStillAResult(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("routeros: timed out after 15s")

	res, err := f.svc.Execute(t.Context(), 1, 42, &terminal.ExecuteRequest{HotspotID: 7, Command: "/tool ping 8.8.8.8"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "routeros: timed out after 15s", res.Output)
	assert.Equal(t, []string{"failed"}, f.counts.outcomes)
}

func TestExecuteDeniedCommand(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(t.Context(), 1, 42, &terminal.ExecuteRequest{HotspotID: 7, Command: "/system reboot"})
	require.ErrorIs(t, err, xerrors.ErrValidation)
	assert.Empty(t, f.repo.rows)
	assert.Equal(t, []string{"denied"}, f.counts.outcomes)
}

func TestExecuteUnknownHotspot(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(t.Context(), 1, 42, &terminal.ExecuteRequest{HotspotID: 9, Command: "/interface print"})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestSequenceSeededFromAuditLog(t *testing.T) {
	f := newFixture(t)
	f.repo.seedMax = 41

	var wg sync.WaitGroup
	seqs := make(chan int64, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Execute(context.Background(), 1, 42, &terminal.ExecuteRequest{HotspotID: 7, Command: "/interface print"})
			if err == nil {
				seqs <- res.Sequence
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for s := range seqs {
		seen[s] = true
	}
	assert.Len(t, seen, 5)
	for s := range seen {
		assert.Greater(t, s, int64(41))
	}
	v, err := f.mr.Get("terminal:seq:1")
	require.NoError(t, err)
	assert.Equal(t, "46", v)
}
