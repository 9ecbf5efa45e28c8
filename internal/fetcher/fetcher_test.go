package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/http-ingest-connector/internal/auth"
	"github.com/r3e-network/http-ingest-connector/internal/config"
	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
	"github.com/r3e-network/http-ingest-connector/internal/logging"
)

func TestFetcher_SuccessNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{Enabled: true, MaxAttempts: 3}, auth.None{})
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.Nil(t, res.FinalErr)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetcher_RetriesServerTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{
		Enabled: true, MaxAttempts: 5, BackoffMs: 1, MaxBackoffMs: 5, BackoffMultiplier: 1,
	}, auth.None{})
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.Nil(t, res.FinalErr)
	assert.Equal(t, 3, res.Attempts)
}

func TestFetcher_LogsEachRetryAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{
		Enabled: true, MaxAttempts: 5, BackoffMs: 1, MaxBackoffMs: 5, BackoffMultiplier: 1,
	}, auth.None{})
	f.SetLogger(logging.New("test", "debug", "json"))

	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.Nil(t, res.FinalErr)
	assert.Equal(t, 3, res.Attempts)
}

func TestFetcher_ClientPermanentDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{Enabled: true, MaxAttempts: 5}, auth.None{})
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.NotNil(t, res.FinalErr)
	assert.Equal(t, cerrors.KindClientPermanent, res.FinalErr.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetcher_ThrottledHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{
		Enabled: true, MaxAttempts: 3, BackoffMs: 1, MaxBackoffMs: 5, BackoffMultiplier: 1,
	}, auth.None{})
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.Nil(t, res.FinalErr)
	assert.Equal(t, 2, res.Attempts)
}

func TestFetcher_ExhaustsRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{
		Enabled: true, MaxAttempts: 2, BackoffMs: 1, MaxBackoffMs: 2, BackoffMultiplier: 1,
	}, auth.None{})
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.NotNil(t, res.FinalErr)
	assert.Equal(t, cerrors.KindServerTransient, res.FinalErr.Kind)
	assert.Equal(t, 2, res.Attempts)
}

type refreshingAuth struct {
	refreshed int32
}

func (a *refreshingAuth) Authenticate(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer token")
	return nil
}

func (a *refreshingAuth) Refresh(req *http.Request) error {
	atomic.AddInt32(&a.refreshed, 1)
	return nil
}

func TestFetcher_RefreshesAuthOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := &refreshingAuth{}
	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{Enabled: true, MaxAttempts: 1}, a)
	res := f.Do(context.Background(), Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.NotNil(t, res.FinalErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.refreshed))
}

func TestFetcher_ContextCancelMidBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(config.EndpointConfig{}, config.ErrorRetryConfig{
		Enabled: true, MaxAttempts: 5, BackoffMs: 500, MaxBackoffMs: 1000, BackoffMultiplier: 1,
	}, auth.None{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := f.Do(ctx, Request{EndpointID: "ep", Method: "GET", URL: srv.URL})

	require.NotNil(t, res.FinalErr)
	assert.Equal(t, cerrors.KindTransport, res.FinalErr.Kind)
}
