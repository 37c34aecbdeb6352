// Package poller periodically marks cache families stale so watched views
// refetch them.
package poller

import (
	"context"
	"time"

	"mnetifi-service/internal/dashboard/querycache"
)

// DefaultInterval is how often the transaction list refreshes.
const DefaultInterval = 30 * time.Second

type Invalidator interface {
	InvalidateFamily(prefix querycache.Key)
}

type Poller struct {
	cache    Invalidator
	interval time.Duration
	families []querycache.Key
	tick     func()
}

// New polls the transactions family when no paths are given.
func New(cache Invalidator, interval time.Duration, paths ...string) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if len(paths) == 0 {
		paths = []string{"/api/transactions"}
	}
	p := &Poller{cache: cache, interval: interval}
	for _, path := range paths {
		p.families = append(p.families, querycache.ParseKey(path))
	}
	return p
}

// OnTick registers fn to run after each round of invalidation.
func (p *Poller) OnTick(fn func()) { p.tick = fn }

// Run invalidates on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, f := range p.families {
				p.cache.InvalidateFamily(f)
			}
			if p.tick != nil {
				p.tick()
			}
		}
	}
}
