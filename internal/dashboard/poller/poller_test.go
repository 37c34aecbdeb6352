package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mnetifi-service/internal/dashboard/querycache"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) InvalidateFamily(k querycache.Key) {
	r.mu.Lock()
	r.keys = append(r.keys, k.String())
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func TestPollsTransactionsByDefault(t *testing.T) {
	rec := &recorder{}
	p := New(rec, 5*time.Millisecond)
	assert.Equal(t, DefaultInterval, New(rec, 0).interval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, k := range rec.keys {
		assert.Equal(t, "/api/transactions", k)
	}
}

func TestPollsEveryFamily(t *testing.T) {
	rec := &recorder{}
	ticks := make(chan struct{}, 1)
	p := New(rec, 5*time.Millisecond, "/api/transactions", "/api/reports/summary")
	p.OnTick(func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	<-ticks
	rec.mu.Lock()
	assert.Equal(t, []string{"/api/transactions", "/api/reports/summary"}, rec.keys[:2])
	rec.mu.Unlock()
}
