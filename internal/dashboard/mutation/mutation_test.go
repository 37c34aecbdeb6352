package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/resource"
)

type server struct {
	mu     sync.Mutex
	keys   []string
	status int
	errMsg string
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.keys = append(s.keys, r.Header.Get(client.IdempotencyHeader))
	status, msg := s.status, s.errMsg
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 300 {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]int64{"id": 9}})
}

func setup(t *testing.T, status int, errMsg string) (*Executor, *querycache.Cache, *notify.Recorder, *server) {
	t.Helper()
	s := &server{status: status, errMsg: errMsg}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	api, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	cache := querycache.New(func(context.Context, querycache.Key) (interface{}, error) {
		return "refetched", nil
	}, querycache.Options{})
	t.Cleanup(cache.Close)

	rec := &notify.Recorder{}
	return NewExecutor(api, cache, rec, nil), cache, rec, s
}

func TestSuccessInvalidatesDependentFamilies(t *testing.T) {
	exec, cache, rec, _ := setup(t, http.StatusCreated, "")
	for _, p := range []string{"/api/plans?type=HOTSPOT", "/api/voucher-batches", "/api/wifi-users?page=2", "/api/tickets"} {
		cache.SetData(querycache.ParseKey(p), "cached")
	}

	var out struct {
		ID int64 `json:"id"`
	}
	req := Create("/api/plans", map[string]interface{}{"name": "Daily"}, resource.Plan, "Plan created")
	req.Out = &out
	require.NoError(t, exec.Execute(context.Background(), req))

	assert.Equal(t, int64(9), out.ID)
	assert.True(t, cache.Get(querycache.ParseKey("/api/plans?type=HOTSPOT")).IsStale)
	assert.True(t, cache.Get(querycache.ParseKey("/api/voucher-batches")).IsStale)
	assert.True(t, cache.Get(querycache.ParseKey("/api/wifi-users?page=2")).IsStale)
	assert.False(t, cache.Get(querycache.ParseKey("/api/tickets")).IsStale)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Success, last.Level)
	assert.Equal(t, "Plan created", last.Title)
}

func TestEveryMutationGetsFreshIdempotencyKey(t *testing.T) {
	exec, _, _, s := setup(t, http.StatusOK, "")
	req := Delete("/api/hotspots/2", resource.Hotspot, "")

	require.NoError(t, exec.Execute(context.Background(), req))
	require.NoError(t, exec.Execute(context.Background(), req))

	require.Len(t, s.keys, 2)
	assert.NotEmpty(t, s.keys[0])
	assert.NotEqual(t, s.keys[0], s.keys[1])
}

func TestFailureRollsBackAndNotifiesServerError(t *testing.T) {
	exec, cache, rec, _ := setup(t, http.StatusConflict, "plan has 12 available vouchers")
	key := querycache.ParseKey("/api/plans")
	cache.SetData(key, []string{"Daily", "Weekly"})

	err := exec.Execute(context.Background(), Request{
		Method:     http.MethodDelete,
		Path:       "/api/plans/1",
		Entities:   []resource.Entity{resource.Plan},
		ErrorTitle: "Failed to delete plan",
		Optimistic: &Optimistic{Key: key, Update: func(cur interface{}) interface{} {
			return cur.([]string)[1:]
		}},
	})

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	st := cache.Get(key)
	assert.Equal(t, []string{"Daily", "Weekly"}, st.Data)
	assert.False(t, st.IsStale)

	last, _ := rec.Last()
	assert.Equal(t, notify.Error, last.Level)
	assert.Equal(t, "Failed to delete plan", last.Title)
	assert.Equal(t, "plan has 12 available vouchers", last.Description)
}

func TestRollbackKeepsStaleValueStale(t *testing.T) {
	srv := httptest.NewServer(&server{status: http.StatusInternalServerError, errMsg: "boom"})
	t.Cleanup(srv.Close)
	api, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	// Refetches never finish, so only the rollback decides the entry state.
	cache := querycache.New(func(ctx context.Context, _ querycache.Key) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, querycache.Options{})
	t.Cleanup(cache.Close)
	exec := NewExecutor(api, cache, nil, nil)

	key := querycache.ParseKey("/api/tickets")
	cache.SetData(key, []string{"T-1", "T-2"})
	cache.Invalidate(key)

	err = exec.Execute(context.Background(), Request{
		Method:     http.MethodPost,
		Path:       "/api/tickets/1/close",
		Optimistic: &Optimistic{Key: key, Update: func(interface{}) interface{} { return []string{"T-2"} }},
	})
	require.Error(t, err)

	st := cache.Get(key)
	assert.Equal(t, []string{"T-1", "T-2"}, st.Data)
	assert.True(t, st.IsStale, "restored value must not count as fresh")
}

func TestOptimisticWithoutPreviousValueIsRemovedOnFailure(t *testing.T) {
	exec, cache, _, _ := setup(t, http.StatusBadRequest, "invalid")
	key := querycache.ParseKey("/api/tickets/5")

	err := exec.Execute(context.Background(), Request{
		Method:     http.MethodPut,
		Path:       "/api/tickets/5",
		Optimistic: &Optimistic{Key: key, Update: func(interface{}) interface{} { return "draft" }},
	})
	require.Error(t, err)
	assert.NotContains(t, cache.Keys(), key.String())
}

func TestOptimisticSuccessInvalidatesKey(t *testing.T) {
	exec, cache, _, _ := setup(t, http.StatusOK, "")
	key := querycache.ParseKey("/api/notifications/count/unread")
	cache.SetData(key, 3)

	err := exec.Execute(context.Background(), Request{
		Method:     http.MethodPut,
		Path:       "/api/notifications/read-all",
		Optimistic: &Optimistic{Key: key, Update: func(interface{}) interface{} { return 0 }},
	})
	require.NoError(t, err)
	assert.True(t, cache.Get(key).IsStale)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Failed to create voucher batch", Create("/x", nil, resource.VoucherBatch, "").ErrorTitle)
}
