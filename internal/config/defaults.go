package config

// Default returns a WorkerConfig populated with the documented
// out-of-the-box defaults.
func Default() *WorkerConfig {
	return &WorkerConfig{
		Chaining: ChainingConfig{
			ContinueOnParentError: true,
			MaxQueueLen:           10000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:           true,
			FailureThreshold:  5,
			ResetTimeoutMs:    30000,
			HalfOpenMaxCalls:  3,
			BackoffMultiplier: 2.0,
			MaxBackoffMs:      60000,
		},
		Cache: CacheConfig{
			Enabled:             true,
			TTLSeconds:          60,
			MaxSize:             1000,
			MaxMemoryMB:         64,
			EvictionPolicy:      EvictionLRU,
			ConditionalEnabled:  true,
			ETagEnabled:         true,
			LastModifiedEnabled: true,
			InvalidationEnabled: true,
			InvalidationTrigger: "5xx",
		},
		RateLimit: RateLimitConfig{
			Enabled:                 true,
			Algorithm:               AlgorithmTokenBucket,
			RequestsPerSecond:       10,
			BucketCapacity:          20,
			WindowSizeMs:            1000,
			LeakRate:                10,
			OverflowStrategy:        OverflowDrop,
			Handling429Enabled:      true,
			InitialDelay429Ms:       1000,
			MaxDelay429Ms:           60000,
			MinRate:                 1,
			AdaptationWindowSeconds: 30,
			SuccessThreshold:        0.9,
			AdaptationFactor:        2,
		},
		ErrorRetry: ErrorRetryConfig{
			Enabled:           true,
			MaxAttempts:       3,
			BackoffMs:         500,
			MaxBackoffMs:      30000,
			BackoffMultiplier: 2.0,
			Jitter:            true,
			RetryableCodes:    []int{429, 500, 502, 503, 504},
			NonRetryableCodes: []int{400, 401, 403, 404},
		},
		DLQ: DLQConfig{
			MaxRetries: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		TemplateDateFormat: "2006-01-02",
		TemplateTimeFormat: "15:04:05",
		MaxRecordsPerPoll:  1000,
		MaxPollDurationMs:  2000,
	}
}

func defaultEndpoint() EndpointConfig {
	return EndpointConfig{
		Method:              "GET",
		Increment:           1,
		TimestampParam:      "timestamp_param",
		TimestampFormat:     "2006-01-02T15:04:05Z07:00",
		ODataTokenMode:      ODataTokenModeFullURL,
		ConnectionTimeoutMs: 10000,
		RequestTimeoutMs:    30000,
	}
}
