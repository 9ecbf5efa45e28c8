// Package fetcher performs a single HTTP request: it applies an
// Authenticator, issues the request under configured connect/read
// timeouts, classifies the outcome, and retries classified-retryable
// failures with exponential backoff, specialized to classify HTTP
// status codes rather than treat every error alike.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/auth"
	"github.com/r3e-network/http-ingest-connector/internal/config"
	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
	"github.com/r3e-network/http-ingest-connector/internal/logging"
)

// Request describes one outbound HTTP call.
type Request struct {
	EndpointID string
	Method     string
	URL        string
	Headers    map[string]string
	Body       string
}

// Result is the outcome of a (possibly retried) fetch.
type Result struct {
	Status      int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	Attempts    int
	RetryAfter  time.Duration
	FinalErr    *cerrors.FetchError
}

// Fetcher issues requests for one endpoint and applies its retry policy.
type Fetcher struct {
	client *http.Client
	retry  config.ErrorRetryConfig
	auth   auth.Authenticator
	logger *logging.Logger
}

// SetLogger attaches a logger used to record retry attempts. A Fetcher
// with no logger set (the default) simply skips retry logging.
func (f *Fetcher) SetLogger(logger *logging.Logger) {
	f.logger = logger
}

// New builds a Fetcher using connect/read timeouts from ep and the
// retry policy passed in; there is no per-endpoint retry override.
func New(ep config.EndpointConfig, retry config.ErrorRetryConfig, authenticator auth.Authenticator) *Fetcher {
	if authenticator == nil {
		authenticator = auth.None{}
	}
	timeout := time.Duration(ep.RequestTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connTimeout := time.Duration(ep.ConnectionTimeoutMs) * time.Millisecond
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connTimeout}).DialContext,
	}

	return &Fetcher{
		client: &http.Client{Timeout: timeout, Transport: transport},
		retry:  retry,
		auth:   authenticator,
	}
}

// Do issues req, retrying classified-retryable failures up to
// retry.MaxAttempts with exponential backoff capped at retry.MaxBackoffMs,
// optionally jittered. It returns once a non-retryable outcome is
// reached, the retry budget is exhausted, or ctx is done.
func (f *Fetcher) Do(ctx context.Context, req Request) Result {
	start := time.Now()
	maxAttempts := f.retry.MaxAttempts
	if !f.retry.Enabled || maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res := f.attempt(ctx, req, attempt)
		res.Attempts = attempt
		res.Duration = time.Since(start)
		last = res

		if res.FinalErr == nil {
			return res
		}
		if !res.FinalErr.Kind.Retryable() {
			return res
		}
		if attempt == maxAttempts {
			return res
		}

		wait := f.backoff(attempt)
		if res.RetryAfter > wait {
			wait = res.RetryAfter
		}
		if f.logger != nil {
			f.logger.LogRetry(ctx, req.EndpointID, attempt, maxAttempts, wait, res.FinalErr)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			last.FinalErr = cerrors.New(req.EndpointID, cerrors.KindTransport, 0, ctx.Err()).WithAttempts(attempt)
			last.Duration = time.Since(start)
			return last
		case <-timer.C:
		}
	}
	return last
}

// attempt performs exactly one HTTP round trip, applying auth and
// classifying the outcome. It never retries by itself.
func (f *Fetcher) attempt(ctx context.Context, req Request, attemptNum int) Result {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader(req.Body))
	if err != nil {
		return Result{FinalErr: cerrors.New(req.EndpointID, cerrors.KindConfig, 0, err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if err := f.auth.Authenticate(httpReq); err != nil {
		return Result{FinalErr: cerrors.New(req.EndpointID, cerrors.KindConfig, 0, err)}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Result{FinalErr: cerrors.New(req.EndpointID, cerrors.KindTransport, 0, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_ = f.auth.Refresh(httpReq)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{Status: resp.StatusCode, Headers: resp.Header, FinalErr: cerrors.New(req.EndpointID, cerrors.KindParse, resp.StatusCode, err)}
	}

	res := Result{Status: resp.StatusCode, Headers: resp.Header, Body: body}

	if resp.StatusCode == http.StatusTooManyRequests {
		res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		res.FinalErr = cerrors.New(req.EndpointID, cerrors.KindThrottled, resp.StatusCode, nil)
		return res
	}
	if resp.StatusCode >= 500 || f.isConfiguredRetryable(resp.StatusCode) {
		res.FinalErr = cerrors.New(req.EndpointID, cerrors.KindServerTransient, resp.StatusCode, nil)
		return res
	}
	if resp.StatusCode >= 400 {
		res.FinalErr = cerrors.New(req.EndpointID, cerrors.KindClientPermanent, resp.StatusCode, nil)
		return res
	}
	return res
}

func (f *Fetcher) isConfiguredRetryable(status int) bool {
	for _, c := range f.retry.RetryableCodes {
		if c == status {
			return true
		}
	}
	return false
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	base := f.retry.BackoffMs
	if base <= 0 {
		base = 500
	}
	mult := f.retry.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	max := float64(f.retry.MaxBackoffMs)
	if max <= 0 {
		max = 30000
	}
	if d > max {
		d = max
	}
	if f.retry.Jitter {
		d = d * (0.5 + rand.Float64()*0.5)
	}
	return time.Duration(d) * time.Millisecond
}

func bodyReader(body string) io.Reader {
	if body == "" {
		return nil
	}
	return bytes.NewReader([]byte(body))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}
	return 0
}
