package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCanonicalForm(t *testing.T) {
	k := ParseKey("/api/plans?type=HOTSPOT&active=true&empty=")
	assert.Equal(t, []string{"api", "plans"}, k.Segments)
	assert.Equal(t, "/api/plans?active=true&type=HOTSPOT", k.String())
	assert.Equal(t, k.String(), ParseKey("api/plans/?active=true&type=HOTSPOT").String())
	assert.Equal(t, "/api/vouchers?batchId=4", ParseKey("/api/vouchers").With("batchId", "4").String())
}

func TestKeyHasPrefix(t *testing.T) {
	plans := ParseKey("/api/plans")
	assert.True(t, ParseKey("/api/plans?type=HOTSPOT").HasPrefix(plans))
	assert.True(t, ParseKey("/api/plans/3").HasPrefix(plans))
	assert.False(t, ParseKey("/api/planner").HasPrefix(plans))
	assert.False(t, ParseKey("/api").HasPrefix(plans))

	hotspot := ParseKey("/api/plans?type=HOTSPOT")
	assert.False(t, ParseKey("/api/plans?type=PPPOE").HasPrefix(hotspot))
	assert.True(t, ParseKey("/api/plans?type=HOTSPOT&page=2").HasPrefix(hotspot))
}

func TestReadSharesOneFetch(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "plans", nil
	}, Options{})
	defer c.Close()

	key := ParseKey("/api/plans")
	var wg sync.WaitGroup
	results := make([]interface{}, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Read(context.Background(), key)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "plans", v)
	}

	v, err := c.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "plans", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		<-release
		return 42, nil
	}, Options{})
	defer c.Close()

	key := ParseKey("/api/transactions/stats")
	st := c.Get(key)
	assert.True(t, st.IsLoading)
	assert.False(t, st.HasData())

	close(release)
	assert.Eventually(t, func() bool {
		st := c.Get(key)
		return !st.IsLoading && st.Data == 42
	}, time.Second, 5*time.Millisecond)
}

func TestFetchStartedBeforeInvalidationIsDiscarded(t *testing.T) {
	var n int32
	first := make(chan struct{})
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			<-first
			return "old", nil
		}
		return "new", nil
	}, Options{})
	defer c.Close()

	key := ParseKey("/api/vouchers")
	var mu sync.Mutex
	var seen []State
	unsubscribe := c.Subscribe(key, func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer unsubscribe()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, time.Millisecond)
	c.Invalidate(key)
	close(first)

	assert.Eventually(t, func() bool {
		st := c.Get(key)
		return st.Data == "new" && !st.IsStale && !st.IsLoading
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, st := range seen {
		if st.Data == "old" {
			t.Fatalf("result fetched before invalidation was stored: %+v", st)
		}
	}
}

func TestInvalidateFamily(t *testing.T) {
	var calls sync.Map
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		v, _ := calls.LoadOrStore(key.String(), new(int32))
		return atomic.AddInt32(v.(*int32), 1), nil
	}, Options{})
	defer c.Close()

	ctx := context.Background()
	keys := []Key{ParseKey("/api/plans?type=HOTSPOT"), ParseKey("/api/plans/3"), ParseKey("/api/vouchers")}
	for _, k := range keys {
		_, err := c.Read(ctx, k)
		require.NoError(t, err)
	}

	c.InvalidatePath("/api/plans")

	assert.True(t, c.Get(keys[0]).IsStale)
	assert.True(t, c.Get(keys[1]).IsStale)
	assert.False(t, c.Get(keys[2]).IsStale)

	v, err := c.Read(ctx, keys[0])
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestInvalidateRefetchesOnlyWatchedEntries(t *testing.T) {
	var calls int32
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		return atomic.AddInt32(&calls, 1), nil
	}, Options{})
	defer c.Close()

	ctx := context.Background()
	watched, idle := ParseKey("/api/tickets"), ParseKey("/api/hotspots")
	unsubscribe := c.Subscribe(watched, func(State) {})
	defer unsubscribe()
	_, err := c.Read(ctx, watched)
	require.NoError(t, err)
	_, err = c.Read(ctx, idle)
	require.NoError(t, err)
	before := atomic.LoadInt32(&calls)

	c.Invalidate(watched)
	c.Invalidate(idle)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == before+1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before+1, atomic.LoadInt32(&calls))
}

func TestSetDataReturnsPreviousAndWinsOverInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	var n int32
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		if atomic.AddInt32(&n, 1) > 1 {
			<-release
			return "server", nil
		}
		return "v1", nil
	}, Options{})
	defer c.Close()

	key := ParseKey("/api/plans")
	_, err := c.Read(context.Background(), key)
	require.NoError(t, err)

	c.Invalidate(key)
	c.Get(key)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 2 }, time.Second, time.Millisecond)

	prev, ok := c.SetData(key, "optimistic")
	assert.True(t, ok)
	assert.Equal(t, "v1", prev)
	close(release)

	time.Sleep(20 * time.Millisecond)
	st := c.Get(key)
	assert.Equal(t, "optimistic", st.Data)
	assert.False(t, st.IsStale)
}

func TestReadError(t *testing.T) {
	boom := errors.New("boom")
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		return nil, boom
	}, Options{})
	defer c.Close()

	key := ParseKey("/api/reports/summary")
	_, err := c.Read(context.Background(), key)
	assert.ErrorIs(t, err, boom)

	st := c.Get(key)
	assert.ErrorIs(t, st.Err, boom)
	assert.False(t, st.HasData())
}

func TestStaleTime(t *testing.T) {
	var calls int32
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		return atomic.AddInt32(&calls, 1), nil
	}, Options{StaleTime: time.Minute})
	defer c.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := ParseKey("/api/wifi-users")
	v, err := c.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	now = now.Add(30 * time.Second)
	v, _ = c.Read(context.Background(), key)
	assert.Equal(t, int32(1), v)

	now = now.Add(time.Minute)
	v, _ = c.Read(context.Background(), key)
	assert.Equal(t, int32(2), v)
}

func TestMaxEntriesEvictsOldestUnwatched(t *testing.T) {
	c := New(func(ctx context.Context, key Key) (interface{}, error) {
		return key.String(), nil
	}, Options{MaxEntries: 2})
	defer c.Close()

	ctx := context.Background()
	a, b, d := ParseKey("/a"), ParseKey("/b"), ParseKey("/d")
	unsubscribe := c.Subscribe(a, func(State) {})
	defer unsubscribe()
	_, _ = c.Read(ctx, a)
	_, _ = c.Read(ctx, b)
	_, _ = c.Read(ctx, d)

	assert.Equal(t, []string{"/a", "/d"}, c.Keys())
}

func TestDecode(t *testing.T) {
	type plan struct {
		ID int64 `json:"id"`
	}
	p, err := Decode[plan](json.RawMessage(`{"id":7}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)

	_, err = Decode[plan](12)
	assert.Error(t, err)
}
