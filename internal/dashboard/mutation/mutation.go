// Package mutation runs dashboard writes: one request with a fresh
// Idempotency-Key, an optional optimistic cache update that is rolled back
// on failure, and cache invalidation driven by the resource table.
package mutation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/resource"
)

// Doer sends one API request.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out interface{}, idempotencyKey string) error
}

// Cache is the part of querycache.Cache a mutation touches.
type Cache interface {
	Get(key querycache.Key) querycache.State
	SetData(key querycache.Key, v interface{}) (interface{}, bool)
	Remove(key querycache.Key)
	Invalidate(key querycache.Key)
	InvalidateFamily(prefix querycache.Key)
}

// Optimistic rewrites one cached value before the request is sent.
type Optimistic struct {
	Key    querycache.Key
	Update func(current interface{}) interface{}
}

type Request struct {
	Method string
	Path   string
	Body   interface{}
	// Out receives the response data when set.
	Out interface{}
	// Entities written by the request; their dependent families are
	// invalidated on success.
	Entities []resource.Entity
	// Keys are extra entries to invalidate on success.
	Keys       []querycache.Key
	Optimistic *Optimistic
	// SuccessTitle is notified on success; empty means silent.
	SuccessTitle       string
	SuccessDescription string
	// ErrorTitle heads the failure notification.
	ErrorTitle string
}

type Executor struct {
	api      Doer
	cache    Cache
	notifier notify.Notifier
	logger   *zap.Logger
	newKey   func() string
}

func NewExecutor(api Doer, cache Cache, notifier notify.Notifier, logger *zap.Logger) *Executor {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		api:      api,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		newKey:   uuid.NewString,
	}
}

// Execute sends req and reports the outcome through the notifier. The
// returned error is the client's APIError or NetworkError.
func (e *Executor) Execute(ctx context.Context, req Request) error {
	rollback := e.applyOptimistic(req.Optimistic)

	key := e.newKey()
	err := e.api.Do(ctx, req.Method, req.Path, req.Body, req.Out, key)
	if err != nil {
		rollback()
		title := req.ErrorTitle
		if title == "" {
			title = "Request failed"
		}
		e.logger.Debug("mutation failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("idempotency_key", key),
			zap.Error(err))
		e.notifier.Notify(notify.FromError(title, err))
		return err
	}

	e.invalidate(req)
	if req.SuccessTitle != "" {
		e.notifier.Notify(notify.Notification{
			Level:       notify.Success,
			Title:       req.SuccessTitle,
			Description: req.SuccessDescription,
		})
	}
	return nil
}

func (e *Executor) applyOptimistic(o *Optimistic) func() {
	if o == nil || o.Update == nil {
		return func() {}
	}
	current := e.cache.Get(o.Key)
	prev, hadPrev := e.cache.SetData(o.Key, o.Update(current.Data))
	return func() {
		if !hadPrev {
			e.cache.Remove(o.Key)
			return
		}
		// SetData marks the value fresh; a restored stale value stays stale.
		e.cache.SetData(o.Key, prev)
		if current.IsStale {
			e.cache.Invalidate(o.Key)
		}
	}
}

func (e *Executor) invalidate(req Request) {
	for _, f := range resource.Families(req.Entities...) {
		e.cache.InvalidateFamily(querycache.Key{Segments: []string(f)})
	}
	for _, k := range req.Keys {
		e.cache.Invalidate(k)
	}
	if req.Optimistic != nil {
		e.cache.Invalidate(req.Optimistic.Key)
	}
}

// Create, Update and Delete build the common request shapes.
func Create(path string, body interface{}, entity resource.Entity, title string) Request {
	return Request{Method: "POST", Path: path, Body: body, Entities: []resource.Entity{entity},
		SuccessTitle: title, ErrorTitle: fmt.Sprintf("Failed to create %s", label(entity))}
}

func Update(path string, body interface{}, entity resource.Entity, title string) Request {
	return Request{Method: "PUT", Path: path, Body: body, Entities: []resource.Entity{entity},
		SuccessTitle: title, ErrorTitle: fmt.Sprintf("Failed to update %s", label(entity))}
}

func Delete(path string, entity resource.Entity, title string) Request {
	return Request{Method: "DELETE", Path: path, Entities: []resource.Entity{entity},
		SuccessTitle: title, ErrorTitle: fmt.Sprintf("Failed to delete %s", label(entity))}
}

func label(e resource.Entity) string {
	out := []byte(e)
	for i, b := range out {
		if b == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
