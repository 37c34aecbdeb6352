// Package querycache holds the dashboard's remote data. Entries are keyed by
// request path and filter params, fetched once per generation, and refetched
// after invalidation while anyone is subscribed.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mnetifi-service/internal/dashboard/client"
)

// maxReadAttempts bounds Read when invalidations keep racing its fetch.
const maxReadAttempts = 3

// Fetcher loads the current server value for key.
type Fetcher func(ctx context.Context, key Key) (interface{}, error)

type Options struct {
	// StaleTime is how long fetched data stays fresh. Zero keeps data fresh
	// until it is invalidated.
	StaleTime time.Duration
	// MaxEntries caps entries without subscribers, evicted oldest first.
	MaxEntries   int
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// State is a point-in-time view of one entry.
type State struct {
	Data      interface{}
	Err       error
	IsLoading bool
	IsStale   bool
	UpdatedAt time.Time
}

// HasData reports whether a value was ever stored for the entry.
func (s State) HasData() bool { return !s.UpdatedAt.IsZero() }

type entry struct {
	key         Key
	data        interface{}
	err         error
	fetchedAt   time.Time
	invalidated bool
	loading     bool
	// gen changes on every invalidation or direct write. A fetch result is
	// only stored when the generation it started under is still current.
	gen    uint64
	subs   map[int]func(State)
	nextID int
}

type Cache struct {
	mu    sync.Mutex
	items map[string]*entry
	order []string
	sf    singleflight.Group
	fetch Fetcher
	opts  Options
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(fetch Fetcher, opts Options) *Cache {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		items:  make(map[string]*entry),
		order:  make([]string, 0, 64),
		fetch:  fetch,
		opts:   opts,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ClientFetcher fetches keys from the API and keeps the envelope data raw.
func ClientFetcher(c *client.Client) Fetcher {
	return func(ctx context.Context, key Key) (interface{}, error) {
		var raw json.RawMessage
		if err := c.Get(ctx, key.String(), &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
}

// Close stops background fetches and waits for them to return.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Get returns the entry's state without blocking. A missing or stale entry
// gets a background fetch and reports IsLoading.
func (c *Cache) Get(key Key) State {
	c.mu.Lock()
	e := c.entryLocked(key)
	start := c.needsFetchLocked(e)
	if start {
		e.loading = true
	}
	st, gen := c.stateLocked(e), e.gen
	c.mu.Unlock()

	if start {
		c.background(e.key, gen)
	}
	return st
}

// Read blocks until the entry holds fresh data or the fetch fails.
// Concurrent reads of one key share a single request.
func (c *Cache) Read(ctx context.Context, key Key) (interface{}, error) {
	id := key.String()
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		e := c.entryLocked(key)
		if !c.staleLocked(e) && e.err == nil {
			data := e.data
			c.mu.Unlock()
			return data, nil
		}
		gen := e.gen
		c.mu.Unlock()

		ch := c.sf.DoChan(flightKey(id, gen), func() (interface{}, error) {
			return nil, c.load(key, gen)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}

		if attempt+1 >= maxReadAttempts {
			c.mu.Lock()
			data, err := e.data, e.err
			c.mu.Unlock()
			return data, err
		}
	}
}

// Invalidate marks the entry stale. Subscribed entries refetch at once.
func (c *Cache) Invalidate(key Key) {
	c.invalidate(func(k Key) bool { return k.String() == key.String() })
}

// InvalidateFamily invalidates every entry whose key has prefix as prefix.
func (c *Cache) InvalidateFamily(prefix Key) {
	c.invalidate(func(k Key) bool { return k.HasPrefix(prefix) })
}

// InvalidatePath is InvalidateFamily for a request path.
func (c *Cache) InvalidatePath(path string) {
	c.InvalidateFamily(ParseKey(path))
}

func (c *Cache) invalidate(match func(Key) bool) {
	type change struct {
		key   Key
		gen   uint64
		st    State
		subs  []func(State)
		fetch bool
	}
	var changes []change

	c.mu.Lock()
	for _, id := range c.order {
		e := c.items[id]
		if !match(e.key) {
			continue
		}
		e.invalidated = true
		e.gen++
		ch := change{key: e.key, gen: e.gen, subs: subscribers(e)}
		if len(e.subs) > 0 && !e.loading {
			e.loading = true
			ch.fetch = true
		}
		ch.st = c.stateLocked(e)
		changes = append(changes, ch)
	}
	c.mu.Unlock()

	for _, ch := range changes {
		if ch.fetch {
			c.background(ch.key, ch.gen)
		}
		deliver(ch.subs, ch.st)
	}
}

// Subscribe calls fn with every state change of key until the returned
// function is called. A missing or stale entry is fetched.
func (c *Cache) Subscribe(key Key, fn func(State)) func() {
	c.mu.Lock()
	e := c.entryLocked(key)
	id := e.nextID
	e.nextID++
	if e.subs == nil {
		e.subs = make(map[int]func(State))
	}
	e.subs[id] = fn
	start := c.needsFetchLocked(e)
	if start {
		e.loading = true
	}
	gen := e.gen
	c.mu.Unlock()

	if start {
		c.background(e.key, gen)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.subs, id)
			c.evictLocked("")
			c.mu.Unlock()
		})
	}
}

// SetData stores v as the entry's fresh value and returns what it replaced.
// An in-flight fetch for the key will not overwrite it.
func (c *Cache) SetData(key Key, v interface{}) (prev interface{}, hadPrev bool) {
	c.mu.Lock()
	e := c.entryLocked(key)
	prev, hadPrev = e.data, !e.fetchedAt.IsZero()
	e.data = v
	e.err = nil
	e.fetchedAt = c.now()
	e.invalidated = false
	e.gen++
	st := c.stateLocked(e)
	subs := subscribers(e)
	c.mu.Unlock()

	deliver(subs, st)
	return prev, hadPrev
}

// Remove drops an entry that has no subscribers.
func (c *Cache) Remove(key Key) {
	id := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[id]; ok && len(e.subs) == 0 {
		delete(c.items, id)
		c.removeFromOrder(id)
	}
}

// Keys lists the cached keys in insertion order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func (c *Cache) background(key Key, gen uint64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _, _ = c.sf.Do(flightKey(key.String(), gen), func() (interface{}, error) {
			return nil, c.load(key, gen)
		})
	}()
}

// load fetches key and stores the result if gen is still current. A result
// that lost the race stays unstored and subscribed entries fetch again.
func (c *Cache) load(key Key, gen uint64) error {
	id := key.String()

	c.mu.Lock()
	if e, ok := c.items[id]; ok && !e.loading {
		e.loading = true
		st, subs := c.stateLocked(e), subscribers(e)
		c.mu.Unlock()
		deliver(subs, st)
	} else {
		c.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	data, err := c.fetch(ctx, key)
	cancel()
	if err != nil && errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		return err
	}

	c.mu.Lock()
	e, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return err
	}
	if e.gen != gen {
		refetch := e.invalidated && len(e.subs) > 0
		e.loading = refetch
		st, subs, current := c.stateLocked(e), subscribers(e), e.gen
		c.mu.Unlock()
		c.opts.Logger.Debug("discarded fetch result after invalidation", zap.String("key", id))
		if refetch {
			c.background(key, current)
		}
		deliver(subs, st)
		return nil
	}

	e.loading = false
	if err != nil {
		e.err = err
	} else {
		e.data = data
		e.err = nil
		e.fetchedAt = c.now()
		e.invalidated = false
	}
	st, subs := c.stateLocked(e), subscribers(e)
	c.mu.Unlock()

	if err != nil {
		c.opts.Logger.Debug("fetch failed", zap.String("key", id), zap.Error(err))
	}
	deliver(subs, st)
	return err
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	if e, ok := c.items[id]; ok {
		return e
	}
	e := &entry{key: key}
	c.items[id] = e
	c.order = append(c.order, id)
	c.evictLocked(id)
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if e.fetchedAt.IsZero() || e.invalidated {
		return true
	}
	return c.opts.StaleTime > 0 && c.now().Sub(e.fetchedAt) >= c.opts.StaleTime
}

func (c *Cache) needsFetchLocked(e *entry) bool {
	if e.loading {
		return false
	}
	return c.staleLocked(e)
}

func (c *Cache) stateLocked(e *entry) State {
	return State{
		Data:      e.data,
		Err:       e.err,
		IsLoading: e.loading,
		IsStale:   c.staleLocked(e),
		UpdatedAt: e.fetchedAt,
	}
}

// evictLocked drops the oldest entries that nobody watches or loads,
// never the one named by keep.
func (c *Cache) evictLocked(keep string) {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	excess := len(c.items) - c.opts.MaxEntries
	kept := c.order[:0]
	for _, id := range c.order {
		e := c.items[id]
		if excess > 0 && id != keep && len(e.subs) == 0 && !e.loading {
			delete(c.items, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
}

func (c *Cache) removeFromOrder(id string) {
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func subscribers(e *entry) []func(State) {
	out := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func deliver(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}

func flightKey(id string, gen uint64) string {
	return id + "#" + strconv.FormatUint(gen, 10)
}

// Decode unmarshals raw JSON data held by the cache into T.
func Decode[T any](data interface{}) (T, error) {
	var out T
	switch v := data.(type) {
	case T:
		return v, nil
	case json.RawMessage:
		err := json.Unmarshal(v, &out)
		return out, err
	case []byte:
		err := json.Unmarshal(v, &out)
		return out, err
	case nil:
		return out, nil
	default:
		return out, errors.New("querycache: unexpected data type")
	}
}
