// Package orchestrator composes the scheduler, offset state machine,
// chaining engine, response cache, rate limiter, circuit breaker, and
// HTTP fetcher into the single poll() entry point. It is the only
// component that mutates any other component's state: the
// cache/breaker/limiter expose atomic mutators called only from here,
// within poll()'s single critical section per endpoint.
package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/auth"
	"github.com/r3e-network/http-ingest-connector/internal/cache"
	"github.com/r3e-network/http-ingest-connector/internal/chaining"
	"github.com/r3e-network/http-ingest-connector/internal/config"
	"github.com/r3e-network/http-ingest-connector/internal/dlq"
	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
	"github.com/r3e-network/http-ingest-connector/internal/fetcher"
	"github.com/r3e-network/http-ingest-connector/internal/logging"
	"github.com/r3e-network/http-ingest-connector/internal/metrics"
	"github.com/r3e-network/http-ingest-connector/internal/offsetstate"
	"github.com/r3e-network/http-ingest-connector/internal/ratelimit"
	"github.com/r3e-network/http-ingest-connector/internal/record"
	"github.com/r3e-network/http-ingest-connector/internal/resilience"
	"github.com/r3e-network/http-ingest-connector/internal/scheduler"
)

// endpointRuntime bundles everything the orchestrator needs per
// configured endpoint, built once at Start and held for the worker's
// lifetime.
type endpointRuntime struct {
	cfg            config.EndpointConfig
	state          *offsetstate.State
	cache          *cache.Cache
	limiter        ratelimit.Limiter
	fetch          *fetcher.Fetcher
	breakerEnabled bool
}

// Engine is the worker-scoped orchestrator. One Engine instance backs
// one host connector task, created at start and torn down at stop, so
// its state stays worker-scoped rather than process-global.
type Engine struct {
	cfg     *config.WorkerConfig
	baseURL string
	vars    offsetstate.TemplateVars

	endpoints     map[string]*endpointRuntime
	sched         *scheduler.Scheduler
	chain         *chaining.Engine
	breakers      *resilience.Registry
	globalLimiter ratelimit.Limiter

	logger  *logging.Logger
	metrics *metrics.Sink
	dlqR    *dlq.Router
	house   *housekeeper
}

// Options carries the collaborators the host wires in at Start: the
// base URL every path_template is relative to, the Authenticator
// registry (auth providers themselves are supplied by the host, not
// this engine), and a sink that receives published DLQ events.
type Options struct {
	BaseURL    string
	AuthReg    *auth.Registry
	DLQSink    func(dlq.Event)
	Logger     *logging.Logger
	Metrics    *metrics.Sink
	Restored   map[string]*offsetstate.State // keyed by endpoint id, from the host's persisted offsets
}

// Start constructs an Engine from a validated WorkerConfig, restoring
// per-endpoint offset state from Options.Restored where present and
// seeding fresh state for endpoints the host has no prior offset for.
func Start(cfg *config.WorkerConfig, opts Options) (*Engine, error) {
	if ce := cfg.Validate(); ce.HasErrors() {
		return nil, ce
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewFromEnv("http-ingest-connector")
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.New()
	}
	authReg := opts.AuthReg
	if authReg == nil {
		authReg = auth.NewRegistry()
	}

	e := &Engine{
		cfg:      cfg,
		baseURL:  opts.BaseURL,
		vars:     offsetstate.VarsFromConfig(cfg),
		endpoints: make(map[string]*endpointRuntime),
		sched:    scheduler.New(),
		chain:    chaining.New(cfg.Chaining),
		breakers: resilience.NewRegistry(breakerConfigFromWorker(cfg.CircuitBreaker)),
		logger:   logger,
		metrics:  sink,
	}
	if cfg.RateLimit.Enabled {
		e.globalLimiter = ratelimit.New(cfg.RateLimit)
	}
	e.dlqR = dlq.New(cfg.DLQ.TopicName, cfg.DLQ.Enabled, metricsDLQRecorder{sink}, opts.DLQSink)

	for _, ep := range cfg.Endpoints {
		var st *offsetstate.State
		if opts.Restored != nil {
			if restored, ok := opts.Restored[ep.ID]; ok {
				st = restored
			}
		}
		if st == nil {
			st = offsetstate.New(ep)
		}

		cacheCfg := cfg.Cache
		if ep.Cache != nil {
			cacheCfg = *ep.Cache
		}
		var c *cache.Cache
		if cacheCfg.Enabled && cacheCfg.MaxSize != 0 {
			c = cache.New(ep.ID, cacheCfg, metricsCacheRecorder{sink})
		}

		rlCfg := cfg.RateLimit
		if ep.RateLimit != nil {
			rlCfg = *ep.RateLimit
		}
		var limiter ratelimit.Limiter
		if rlCfg.Enabled {
			limiter = ratelimit.New(rlCfg)
		}

		retryCfg := cfg.ErrorRetry
		f := fetcher.New(ep, retryCfg, authReg.Resolve(ep.AuthRef))
		f.SetLogger(logger)

		breakerCfg := cfg.CircuitBreaker
		if ep.CircuitBreaker != nil {
			breakerCfg = *ep.CircuitBreaker
		}

		e.endpoints[ep.ID] = &endpointRuntime{
			cfg: ep, state: st, cache: c, limiter: limiter, fetch: f,
			breakerEnabled: breakerCfg.Enabled,
		}

		kind := scheduler.KindRoot
		if _, isChild := cfg.IsChainChild(ep.ID); isChild {
			kind = scheduler.KindChild
		}
		e.sched.Register(ep.ID, kind, time.Duration(ep.RequestIntervalMs)*time.Millisecond)
	}

	e.house = newHousekeeper(logger)
	if sw, ok := e.globalLimiter.(sweeper); ok {
		e.house.register(sw)
	}
	for _, rt := range e.endpoints {
		if rt.cache != nil {
			cache := rt.cache
			e.house.register(cacheSweeper{endpointID: rt.cfg.ID, sweep: cache.Sweep, logger: logger})
		}
		if sw, ok := rt.limiter.(sweeper); ok {
			e.house.register(sw)
		}
	}
	if err := e.house.Start(time.Minute); err != nil {
		return nil, err
	}

	return e, nil
}

// Stop halts the background housekeeping cron. All other engine state
// is in-process and needs no release; Stop is the symmetric bookend to
// Start in the host lifecycle contract.
func (e *Engine) Stop() {
	if e.house != nil {
		e.house.Stop()
	}
}

// Poll implements the host-facing poll() contract: it selects due
// endpoints in fairness order, steps each one, accumulates records up
// to MaxRecordsPerPoll or until MaxPollDurationMs elapses, and returns.
// Deadline cancellation discards in-flight results without mutating
// offsets.
func (e *Engine) Poll(ctx context.Context) (*record.PollBatch, error) {
	traceID := logging.NewTraceID()
	ctx = logging.WithTraceID(ctx, traceID)

	maxRecords := e.cfg.MaxRecordsPerPoll
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	maxDuration := time.Duration(e.cfg.MaxPollDurationMs) * time.Millisecond
	if maxDuration <= 0 {
		maxDuration = 2 * time.Second
	}

	deadline := time.Now().Add(maxDuration)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timer := prometheusTimer(e.metrics)
	defer timer()

	batch := &record.PollBatch{Offsets: make(map[string]interface{})}

	now := time.Now()
	due := e.sched.Due(now)

	for _, id := range due {
		if len(batch.Records) >= maxRecords {
			break
		}
		if time.Now().After(deadline) {
			break
		}

		rt := e.endpoints[id]
		if rt == nil {
			continue
		}

		recs, offset, err := e.step(pollCtx, rt)
		if err != nil {
			// step already logged/metriced/DLQ'd the failure; the
			// endpoint's offset is left untouched per the
			// offset-unchanged-on-failure invariant.
			e.sched.CompleteFailure(id, time.Now())
			continue
		}

		batch.Records = append(batch.Records, recs...)
		if offset != nil {
			batch.Offsets[id] = offset
		}
	}

	return batch, nil
}

// step performs one endpoint's fetch-or-cache-hit, advances its offset
// state on success, expands chaining children, and extracts records.
// It returns a non-nil error only for a terminal failure; the caller
// must not advance the endpoint's offset or mutate the scheduler's
// success path when err != nil.
func (e *Engine) step(ctx context.Context, rt *endpointRuntime) ([]record.Record, map[string]interface{}, error) {
	ep := rt.cfg
	ctx = logging.WithEndpointID(ctx, ep.ID)

	if ep.OffsetMode == config.OffsetModeChaining {
		if _, isChild := e.cfg.IsChainChild(ep.ID); isChild {
			if rt.state.Chaining == nil || len(rt.state.Chaining.ParentValues) == 0 {
				return nil, nil, nil
			}
		}
	}

	prep, err := offsetstate.Prepare(ep, e.baseURL, rt.state, e.vars)
	if err != nil {
		return nil, nil, err
	}

	headers := make(map[string]string, len(ep.Headers))
	for k, v := range ep.Headers {
		headers[k] = offsetstate.Substitute(v, rt.state, e.vars)
	}
	body := offsetstate.Substitute(ep.Body, rt.state, e.vars)

	cacheKey := ""
	if rt.cache != nil {
		cacheKey = cache.Key(ep.Method, prep.URL, headers, []string{"Accept", "Authorization"})
		if entry, ok := rt.cache.Get(cacheKey); ok {
			return e.onFetchSuccess(ctx, rt, prep, entry.StatusCode, entry.Body)
		}
		if cond := rt.cache.ConditionalHeaders(cacheKey); cond != nil {
			for k, v := range cond {
				headers[k] = v
			}
		}
	}

	if e.globalLimiter != nil {
		if err := e.globalLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	if rt.limiter != nil {
		if err := rt.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	var res fetcher.Result
	doFetch := func() error {
		res = rt.fetch.Do(ctx, fetcher.Request{
			EndpointID: ep.ID, Method: ep.Method, URL: prep.URL, Headers: headers, Body: body,
		})
		if al, ok := rt.limiter.(adaptiveLimiter); ok {
			if res.FinalErr != nil && res.FinalErr.Kind == cerrors.KindThrottled {
				al.Notify429()
			} else {
				al.NotifyResult(res.FinalErr == nil)
			}
		}
		if res.FinalErr != nil {
			return res.FinalErr
		}
		return nil
	}

	var breaker *resilience.Breaker
	var breakerErr error
	if rt.breakerEnabled {
		breaker = e.breakerFor(ep)
		breakerErr = breaker.Execute(ctx, doFetch)
	} else {
		breakerErr = doFetch()
	}

	if breakerErr == resilience.ErrCircuitOpen || breakerErr == resilience.ErrTooManyRequests {
		e.logger.WithContext(ctx).WithField("endpoint_id", ep.ID).Debug("breaker open, skipping fetch")
		return nil, nil, breakerErr
	}
	if breaker != nil && res.FinalErr != nil && !res.FinalErr.Kind.Retryable() {
		breaker.Trip()
	}

	e.metrics.FetchDuration.WithLabelValues(ep.ID).Observe(res.Duration.Seconds())

	if res.FinalErr != nil {
		e.metrics.FetchAttempts.WithLabelValues(ep.ID, string(res.FinalErr.Kind)).Inc()
		e.logger.LogFetch(ctx, ep.ID, res.Status, string(res.FinalErr.Kind), res.Attempts, res.Duration, res.FinalErr)
		if rt.cache != nil && cacheKey != "" {
			rt.cache.InvalidateOnStatus(cacheKey, res.Status)
		}
		e.routeFailure(ep, prep, rt.state, res)
		return nil, nil, res.FinalErr
	}

	e.metrics.FetchAttempts.WithLabelValues(ep.ID, "success").Inc()

	if res.Status == http.StatusNotModified && rt.cache != nil && cacheKey != "" {
		rt.cache.Refresh(cacheKey)
		if cached, ok := rt.cache.StoredBody(cacheKey); ok {
			return e.onFetchSuccess(ctx, rt, prep, http.StatusOK, cached)
		}
	}

	if rt.cache != nil && cacheKey != "" && isCacheable(res.Status) {
		rt.cache.Set(cacheKey, res.Body, res.Status, headerResponse(res.Headers))
	}

	return e.onFetchSuccess(ctx, rt, prep, res.Status, res.Body)
}

// onFetchSuccess advances offset state, expands chaining, extracts
// records, and updates the scheduler for a successful (or cache-hit)
// response. Per the offset-advance invariant, this is the only path
// that ever calls offsetstate.Advance.
func (e *Engine) onFetchSuccess(ctx context.Context, rt *endpointRuntime, prep offsetstate.PrepareResult, status int, body []byte) ([]record.Record, map[string]interface{}, error) {
	ep := rt.cfg

	adv, err := offsetstate.Advance(ep, rt.state, body)
	if err != nil {
		e.logger.WithContext(ctx).WithField("endpoint_id", ep.ID).WithError(err).Warn("pagination indicator parse failure")
		return nil, nil, err
	}

	recs := record.Extract(body, ep.Topic, ep.ID, ep.RecordPointer, offsetstate.ToOffsetMap(rt.state))
	e.metrics.RecordsEmitted.WithLabelValues(ep.ID).Add(float64(len(recs)))

	if children := e.chain.Children(ep.ID); len(children) > 0 && ep.ChainingPointer != "" {
		childStates := make(map[string]*offsetstate.State, len(children))
		for _, childID := range children {
			if childRT, ok := e.endpoints[childID]; ok {
				childStates[childID] = childRT.state
			}
		}
		events, overflowing := e.chain.Expand(ep.ID, body, ep.RecordPointer, ep.ChainingPointer, childStates)
		if e.cfg.Chaining.MetadataTopic != "" {
			for _, ev := range events {
				recs = append(recs, ev.ToRecord(e.cfg.Chaining.MetadataTopic))
			}
		}
		for childID := range childStates {
			e.metrics.ChainQueueDepth.WithLabelValues(childID).Set(float64(chaining.QueueDepth(childStates[childID])))
			e.sched.MarkChildPending(childID, len(childStates[childID].Chaining.ParentValues) > 0 && !overflowing[childID])
		}
	}

	now := time.Now()
	if interval := odataInterval(ep, rt.state); interval > 0 {
		e.sched.CompleteSuccessWithInterval(ep.ID, now, interval)
	} else {
		e.sched.CompleteSuccess(ep.ID, now)
	}

	if ep.OffsetMode == config.OffsetModeChaining {
		if parentID, isChild := e.cfg.IsChainChild(ep.ID); isChild {
			if rt.state.Chaining != nil {
				e.sched.MarkChildPending(ep.ID, len(rt.state.Chaining.ParentValues) > 0)
			}
			_ = parentID
		}
	}

	_ = adv // SweepDone is exposed via rt.state for metrics/diagnostics callers; no further action required here.
	_ = status

	return recs, offsetstate.ToOffsetMap(rt.state), nil
}

// routeFailure emits a DLQ event once an endpoint's retry budget is
// exhausted, attaching chaining lineage when the endpoint is a
// declared child.
func (e *Engine) routeFailure(ep config.EndpointConfig, prep offsetstate.PrepareResult, st *offsetstate.State, res fetcher.Result) {
	if res.FinalErr.Kind.Retryable() && res.Attempts < maxAttemptsOf(e.cfg.ErrorRetry) {
		return
	}
	e.logger.LogDLQ(context.Background(), ep.ID, e.cfg.DLQ.TopicName, string(res.FinalErr.Kind), res.Attempts)
	if parentID, isChild := e.cfg.IsChainChild(ep.ID); isChild {
		e.dlqR.RouteChainFailure(parentID, prep.ParentValue, ep.ID, res.FinalErr)
		return
	}
	e.dlqR.Route(ep.ID, prep.URL, offsetstate.ToOffsetMap(st), res.Status, res.Body, res.FinalErr)
}

func maxAttemptsOf(cfg config.ErrorRetryConfig) int {
	if !cfg.Enabled || cfg.MaxAttempts <= 0 {
		return 1
	}
	return cfg.MaxAttempts
}

// breakerFor resolves the breaker that guards ep's fetch, scoping it to
// a bulkhead group when configured.
func (e *Engine) breakerFor(ep config.EndpointConfig) *resilience.Breaker {
	if ep.BulkheadGroup != "" {
		return e.breakers.Group(ep.BulkheadGroup)
	}
	var override *resilience.Config
	if ep.CircuitBreaker != nil {
		c := breakerConfigFromEndpoint(*ep.CircuitBreaker)
		override = &c
	}
	return e.breakers.Endpoint(ep.ID, override)
}

func breakerConfigFromWorker(cfg config.CircuitBreakerConfig) resilience.Config {
	return resilience.Config{
		MaxFailures:       cfg.FailureThreshold,
		Timeout:           time.Duration(cfg.ResetTimeoutMs) * time.Millisecond,
		HalfOpenMax:       cfg.HalfOpenMaxCalls,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxTimeout:        time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
	}
}

func breakerConfigFromEndpoint(cfg config.CircuitBreakerConfig) resilience.Config {
	return breakerConfigFromWorker(cfg)
}

// odataInterval returns the scheduler override interval for an OData
// endpoint's current phase, or 0 when ep is not in OData mode (meaning
// "use the endpoint's ordinary interval").
func odataInterval(ep config.EndpointConfig, st *offsetstate.State) time.Duration {
	if ep.OffsetMode != config.OffsetModeODataPagination || st.ODataLink == nil {
		return 0
	}
	if st.ODataLink.Phase == offsetstate.ODataPhaseDeltaLink {
		return time.Duration(ep.ODataDeltaLinkPollIntervalMs) * time.Millisecond
	}
	return time.Duration(ep.ODataNextLinkPollIntervalMs) * time.Millisecond
}

func isCacheable(status int) bool {
	return status >= 200 && status < 300
}

func headerResponse(h http.Header) *http.Response {
	if h == nil {
		return nil
	}
	return &http.Response{Header: h}
}

func prometheusTimer(sink *metrics.Sink) func() {
	start := time.Now()
	return func() {
		sink.PollDuration.WithLabelValues("worker").Observe(time.Since(start).Seconds())
	}
}

// metricsCacheRecorder adapts metrics.Sink to cache.Recorder.
type metricsCacheRecorder struct{ sink *metrics.Sink }

func (m metricsCacheRecorder) Hit(endpoint string)  { m.sink.CacheHits.WithLabelValues(endpoint).Inc() }
func (m metricsCacheRecorder) Miss(endpoint string) { m.sink.CacheMisses.WithLabelValues(endpoint).Inc() }
func (m metricsCacheRecorder) Eviction(endpoint, reason string) {
	m.sink.CacheEvictions.WithLabelValues(endpoint, reason).Inc()
}

// metricsDLQRecorder adapts metrics.Sink to dlq.Recorder.
type metricsDLQRecorder struct{ sink *metrics.Sink }

func (m metricsDLQRecorder) DLQEvent(endpoint, reason string) {
	m.sink.DLQEvents.WithLabelValues(endpoint, reason).Inc()
}

// adaptiveLimiter is satisfied by *ratelimit.Adaptive; kept as a narrow
// local interface so only limiters actually configured for ADAPTIVE
// mode receive 429/result notifications.
type adaptiveLimiter interface {
	Notify429()
	NotifyResult(success bool)
}
