package httpexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test")
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	ex := New(cfg)

	resp, err := ex.Do(context.Background(), func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test")
	cfg.Breaker = false
	cfg.BaseDelay = time.Millisecond
	ex := New(cfg)

	resp, err := ex.Do(context.Background(), func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, ex.BreakerOpen())
}

func TestRetryPredicates(t *testing.T) {
	assert.True(t, RetryOnServerError(nil, assert.AnError))
	assert.True(t, RetryOnServerError(&http.Response{StatusCode: 429}, nil))
	assert.False(t, RetryOnServerError(&http.Response{StatusCode: 404}, nil))
	assert.False(t, RetryOnNetworkError(&http.Response{StatusCode: 500}, nil))
	assert.True(t, RetryOnNetworkError(nil, assert.AnError))
}
