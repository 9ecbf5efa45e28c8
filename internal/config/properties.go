package config

import (
	"strconv"
	"strings"
)

// FromProperties parses the host connector's flat key/value configuration
// surface into a WorkerConfig. Keys not recognized are ignored, matching
// a connector framework's tolerant property parsing.
func FromProperties(props map[string]string) (*WorkerConfig, error) {
	cfg := Default()

	numAPIs := 0
	if v, ok := props["apis.num"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			numAPIs = n
		}
	}

	for i := 1; i <= numAPIs; i++ {
		ep := defaultEndpoint()
		prefix := "api" + strconv.Itoa(i) + "."

		ep.ID = getOr(props, prefix+"id", "api"+strconv.Itoa(i))
		ep.PathTemplate = props[prefix+"http.api.path"]
		ep.Method = getOr(props, prefix+"http.request.method", "GET")
		ep.Headers = parseKV(props[prefix+"http.request.headers"])
		ep.Body = props[prefix+"http.request.body"]
		ep.Parameters = parseKV(props[prefix+"http.request.parameters"])
		ep.Topic = props[prefix+"topics"]
		ep.OffsetMode = OffsetMode(props[prefix+"http.offset.mode"])
		ep.InitialOffset = props[prefix+"http.initial.offset"]
		ep.RecordPointer = props[prefix+"http.response.data.json.pointer"]
		ep.NextPagePointer = props[prefix+"http.next.page.json.pointer"]
		ep.ChainingPointer = props[prefix+"http.chaining.json.pointer"]
		ep.TimestampPointer = props[prefix+"http.timestamp.json.pointer"]
		ep.ODataNextLinkField = getOr(props, prefix+"odata.nextlink.field", "@odata.nextLink")
		ep.ODataDeltaLinkField = getOr(props, prefix+"odata.deltalink.field", "@odata.deltaLink")
		if v, ok := props[prefix+"odata.token.mode"]; ok {
			ep.ODataTokenMode = ODataTokenMode(v)
		}
		ep.ODataNextLinkPollIntervalMs = getInt64(props, prefix+"odata.nextlink.poll.interval.ms", 0)
		ep.ODataDeltaLinkPollIntervalMs = getInt64(props, prefix+"odata.deltalink.poll.interval.ms", 0)
		ep.RequestIntervalMs = getInt64(props, prefix+"request.interval.ms", 0)
		ep.ConnectionTimeoutMs = getInt64(props, prefix+"connection.timeout.ms", ep.ConnectionTimeoutMs)
		ep.RequestTimeoutMs = getInt64(props, prefix+"request.timeout.ms", ep.RequestTimeoutMs)
		ep.AuthRef = props[prefix+"auth.ref"]
		ep.BulkheadGroup = props[prefix+"bulkhead.group"]
		if v, ok := props[prefix+"increment"]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				ep.Increment = n
			}
		}

		cfg.Endpoints = append(cfg.Endpoints, ep)
	}

	if v, ok := props["api.chaining.parent.child.relationship"]; ok {
		cfg.Chaining.Relationships = v
	}
	if v, ok := props["api.chaining.metadata.topic"]; ok {
		cfg.Chaining.MetadataTopic = v
	}
	if v, ok := props["api.chaining.continue.on.parent.error"]; ok {
		cfg.Chaining.ContinueOnParentError = parseBool(v, cfg.Chaining.ContinueOnParentError)
	}
	if v, ok := props["api.chaining.parallel.processing.enabled"]; ok {
		cfg.Chaining.ParallelProcessingEnabled = parseBool(v, false)
	}

	applyCircuitBreaker(props, "circuit.breaker.", &cfg.CircuitBreaker)
	applyCache(props, "response.caching.", &cfg.Cache)
	applyRateLimit(props, "rate.limiting.", &cfg.RateLimit)

	if v, ok := props["error.retry.enabled"]; ok {
		cfg.ErrorRetry.Enabled = parseBool(v, cfg.ErrorRetry.Enabled)
	}
	if v, ok := props["error.retry.max.attempts"]; ok {
		cfg.ErrorRetry.MaxAttempts = int(getInt64FromStr(v, int64(cfg.ErrorRetry.MaxAttempts)))
	}
	if v, ok := props["error.retry.backoff.ms"]; ok {
		cfg.ErrorRetry.BackoffMs = getInt64FromStr(v, cfg.ErrorRetry.BackoffMs)
	}
	if v, ok := props["error.retry.policy"]; ok {
		cfg.ErrorRetry.Policy = v
	}
	if v, ok := props["error.retryable.codes"]; ok {
		cfg.ErrorRetry.RetryableCodes = parseIntList(v)
	}
	if v, ok := props["error.non.retryable.codes"]; ok {
		cfg.ErrorRetry.NonRetryableCodes = parseIntList(v)
	}

	if v, ok := props["dlq.enabled"]; ok {
		cfg.DLQ.Enabled = parseBool(v, cfg.DLQ.Enabled)
	}
	if v, ok := props["dlq.topic.name"]; ok {
		cfg.DLQ.TopicName = v
	}
	if v, ok := props["dlq.max.retries"]; ok {
		cfg.DLQ.MaxRetries = int(getInt64FromStr(v, int64(cfg.DLQ.MaxRetries)))
	}

	templateVars := map[string]string{}
	for k, v := range props {
		if strings.HasPrefix(k, "template.variables.") {
			name := strings.TrimPrefix(k, "template.variables.")
			templateVars[name] = v
		}
	}
	if len(templateVars) > 0 {
		cfg.TemplateVariables = templateVars
	}
	if v, ok := props["template.env.enabled"]; ok {
		cfg.TemplateEnvEnabled = parseBool(v, false)
	}
	if v, ok := props["template.date.format"]; ok {
		cfg.TemplateDateFormat = v
	}
	if v, ok := props["template.time.format"]; ok {
		cfg.TemplateTimeFormat = v
	}

	if v, ok := props["max.records.per.poll"]; ok {
		cfg.MaxRecordsPerPoll = int(getInt64FromStr(v, int64(cfg.MaxRecordsPerPoll)))
	}
	if v, ok := props["max.poll.duration.ms"]; ok {
		cfg.MaxPollDurationMs = getInt64FromStr(v, cfg.MaxPollDurationMs)
	}

	return cfg, cfg.Validate().ErrOrNil()
}

func applyCircuitBreaker(props map[string]string, prefix string, cb *CircuitBreakerConfig) {
	if v, ok := props[prefix+"enabled"]; ok {
		cb.Enabled = parseBool(v, cb.Enabled)
	}
	if v, ok := props[prefix+"failure.threshold"]; ok {
		cb.FailureThreshold = int(getInt64FromStr(v, int64(cb.FailureThreshold)))
	}
	if v, ok := props[prefix+"reset.timeout.ms"]; ok {
		cb.ResetTimeoutMs = getInt64FromStr(v, cb.ResetTimeoutMs)
	}
	if v, ok := props[prefix+"half.open.max.calls"]; ok {
		cb.HalfOpenMaxCalls = int(getInt64FromStr(v, int64(cb.HalfOpenMaxCalls)))
	}
	if v, ok := props[prefix+"recovery.strategy"]; ok {
		cb.RecoveryStrategy = v
	}
	if v, ok := props[prefix+"backoff.multiplier"]; ok {
		cb.BackoffMultiplier = parseFloat(v, cb.BackoffMultiplier)
	}
	if v, ok := props[prefix+"max.backoff.ms"]; ok {
		cb.MaxBackoffMs = getInt64FromStr(v, cb.MaxBackoffMs)
	}
}

func applyCache(props map[string]string, prefix string, c *CacheConfig) {
	if v, ok := props[prefix+"enabled"]; ok {
		c.Enabled = parseBool(v, c.Enabled)
	}
	if v, ok := props[prefix+"ttl.seconds"]; ok {
		c.TTLSeconds = getInt64FromStr(v, c.TTLSeconds)
	}
	if v, ok := props[prefix+"max.size"]; ok {
		c.MaxSize = int(getInt64FromStr(v, int64(c.MaxSize)))
	}
	if v, ok := props[prefix+"max.memory.mb"]; ok {
		c.MaxMemoryMB = int(getInt64FromStr(v, int64(c.MaxMemoryMB)))
	}
	if v, ok := props[prefix+"eviction.policy"]; ok {
		c.EvictionPolicy = EvictionPolicy(v)
	}
	if v, ok := props[prefix+"conditional.enabled"]; ok {
		c.ConditionalEnabled = parseBool(v, c.ConditionalEnabled)
	}
	if v, ok := props[prefix+"etag.enabled"]; ok {
		c.ETagEnabled = parseBool(v, c.ETagEnabled)
	}
	if v, ok := props[prefix+"last.modified.enabled"]; ok {
		c.LastModifiedEnabled = parseBool(v, c.LastModifiedEnabled)
	}
	if v, ok := props[prefix+"invalidation.enabled"]; ok {
		c.InvalidationEnabled = parseBool(v, c.InvalidationEnabled)
	}
	if v, ok := props[prefix+"invalidation.trigger"]; ok {
		c.InvalidationTrigger = v
	}
	if v, ok := props[prefix+"invalidation.error.codes"]; ok {
		c.InvalidationErrorCodes = parseIntList(v)
	}
}

func applyRateLimit(props map[string]string, prefix string, r *RateLimitConfig) {
	if v, ok := props[prefix+"enabled"]; ok {
		r.Enabled = parseBool(v, r.Enabled)
	}
	if v, ok := props[prefix+"algorithm"]; ok {
		r.Algorithm = RateLimitAlgorithm(v)
	}
	if v, ok := props[prefix+"requests.per.second"]; ok {
		r.RequestsPerSecond = parseFloat(v, r.RequestsPerSecond)
	}
	if v, ok := props[prefix+"bucket.capacity"]; ok {
		r.BucketCapacity = int(getInt64FromStr(v, int64(r.BucketCapacity)))
	}
	if v, ok := props[prefix+"window.size.ms"]; ok {
		r.WindowSizeMs = getInt64FromStr(v, r.WindowSizeMs)
	}
	if v, ok := props[prefix+"leak.rate"]; ok {
		r.LeakRate = parseFloat(v, r.LeakRate)
	}
	if v, ok := props[prefix+"overflow.strategy"]; ok {
		r.OverflowStrategy = OverflowStrategy(v)
	}
	if v, ok := props[prefix+"429.handling.enabled"]; ok {
		r.Handling429Enabled = parseBool(v, r.Handling429Enabled)
	}
	if v, ok := props[prefix+"429.backoff.strategy"]; ok {
		r.Backoff429Strategy = v
	}
	if v, ok := props[prefix+"429.initial.delay.ms"]; ok {
		r.InitialDelay429Ms = getInt64FromStr(v, r.InitialDelay429Ms)
	}
	if v, ok := props[prefix+"429.max.delay.ms"]; ok {
		r.MaxDelay429Ms = getInt64FromStr(v, r.MaxDelay429Ms)
	}
}

func getOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}

func getInt64(m map[string]string, key string, fallback int64) int64 {
	v, ok := m[key]
	if !ok {
		return fallback
	}
	return getInt64FromStr(v, fallback)
}

func getInt64FromStr(v string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func parseIntList(v string) []int {
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// parseKV parses "k1=v1;k2=v2" style values used for header/parameter maps.
func parseKV(v string) map[string]string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// ChildParentPairs parses "child:parent, child:parent" into an ordered
// list of (child, parent) pairs, preserving declaration order.
func ChildParentPairs(relationships string) [][2]string {
	if strings.TrimSpace(relationships) == "" {
		return nil
	}
	var pairs [][2]string
	for _, raw := range strings.Split(relationships, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 {
			continue
		}
		pairs = append(pairs, [2]string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])})
	}
	return pairs
}
