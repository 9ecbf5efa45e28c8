// Package config binds the engine's configuration surface into typed
// structs, loadable from a flat properties map (the host connector
// framework's native format), a YAML file, or environment variables.
package config

// OffsetMode names one of the six pagination state machine variants.
type OffsetMode string

const (
	OffsetModeSimpleIncrementing OffsetMode = "SIMPLE_INCREMENTING"
	OffsetModeCursorPagination   OffsetMode = "CURSOR_PAGINATION"
	OffsetModeODataPagination    OffsetMode = "ODATA_PAGINATION"
	OffsetModeTimestamp          OffsetMode = "TIMESTAMP_PAGINATION"
	OffsetModeChaining           OffsetMode = "CHAINING"
	OffsetModeSnapshotPagination OffsetMode = "SNAPSHOT_PAGINATION"
)

// ODataTokenMode names how a next/delta link is turned into the next
// request: verbatim, or by extracting its skiptoken/deltatoken query.
type ODataTokenMode string

const (
	ODataTokenModeFullURL   ODataTokenMode = "FULL_URL"
	ODataTokenModeTokenOnly ODataTokenMode = "TOKEN_ONLY"
)

// RateLimitAlgorithm names one of the supported limiter algorithms.
type RateLimitAlgorithm string

const (
	AlgorithmTokenBucket   RateLimitAlgorithm = "TOKEN_BUCKET"
	AlgorithmSlidingWindow RateLimitAlgorithm = "SLIDING_WINDOW"
	AlgorithmFixedWindow   RateLimitAlgorithm = "FIXED_WINDOW"
	AlgorithmLeakyBucket   RateLimitAlgorithm = "LEAKY_BUCKET"
	AlgorithmAdaptive      RateLimitAlgorithm = "ADAPTIVE"
)

// EvictionPolicy names one of the response cache's eviction strategies.
type EvictionPolicy string

const (
	EvictionLRU  EvictionPolicy = "LRU"
	EvictionLFU  EvictionPolicy = "LFU"
	EvictionFIFO EvictionPolicy = "FIFO"
)

// OverflowStrategy names what the leaky bucket does when it would spill.
type OverflowStrategy string

const (
	OverflowDrop  OverflowStrategy = "DROP"
	OverflowQueue OverflowStrategy = "QUEUE"
)

// LoggingConfig controls the engine's structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// CircuitBreakerConfig controls one circuit breaker instance (global
// default or per-endpoint override).
type CircuitBreakerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	FailureThreshold  int     `yaml:"failure_threshold"`
	ResetTimeoutMs    int64   `yaml:"reset_timeout_ms"`
	HalfOpenMaxCalls  int     `yaml:"half_open_max_calls"`
	RecoveryStrategy  string  `yaml:"recovery_strategy"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoffMs      int64   `yaml:"max_backoff_ms"`
}

// CacheConfig controls the response cache (global default or
// per-endpoint override).
type CacheConfig struct {
	Enabled                bool           `yaml:"enabled"`
	TTLSeconds             int64          `yaml:"ttl_seconds"`
	MaxSize                int            `yaml:"max_size"`
	MaxMemoryMB            int            `yaml:"max_memory_mb"`
	EvictionPolicy         EvictionPolicy `yaml:"eviction_policy"`
	ConditionalEnabled     bool           `yaml:"conditional_enabled"`
	ETagEnabled            bool           `yaml:"etag_enabled"`
	LastModifiedEnabled    bool           `yaml:"last_modified_enabled"`
	InvalidationEnabled    bool           `yaml:"invalidation_enabled"`
	InvalidationTrigger    string         `yaml:"invalidation_trigger"`
	InvalidationErrorCodes []int          `yaml:"invalidation_error_codes"`
}

// RateLimitConfig controls one rate limiter instance (global default or
// per-endpoint override).
type RateLimitConfig struct {
	Enabled                 bool               `yaml:"enabled"`
	Algorithm               RateLimitAlgorithm `yaml:"algorithm"`
	RequestsPerSecond       float64            `yaml:"requests_per_second"`
	BucketCapacity          int                `yaml:"bucket_capacity"`
	WindowSizeMs            int64              `yaml:"window_size_ms"`
	LeakRate                float64            `yaml:"leak_rate"`
	OverflowStrategy        OverflowStrategy   `yaml:"overflow_strategy"`
	Handling429Enabled      bool               `yaml:"handling_429_enabled"`
	Backoff429Strategy      string             `yaml:"backoff_429_strategy"`
	InitialDelay429Ms       int64              `yaml:"initial_delay_429_ms"`
	MaxDelay429Ms           int64              `yaml:"max_delay_429_ms"`
	MinRate                 float64            `yaml:"min_rate"`
	AdaptationWindowSeconds int64              `yaml:"adaptation_window_seconds"`
	SuccessThreshold        float64            `yaml:"success_threshold"`
	AdaptationFactor        float64            `yaml:"adaptation_factor"`
}

// ErrorRetryConfig controls the fetcher's retry/backoff behavior.
type ErrorRetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffMs         int64   `yaml:"backoff_ms"`
	MaxBackoffMs      int64   `yaml:"max_backoff_ms"`
	Policy            string  `yaml:"policy"`
	Jitter            bool    `yaml:"jitter"`
	RetryableCodes    []int   `yaml:"retryable_codes"`
	NonRetryableCodes []int   `yaml:"non_retryable_codes"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// DLQConfig controls dead-letter routing for terminal failures.
type DLQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TopicName  string `yaml:"topic_name"`
	MaxRetries int    `yaml:"max_retries"`
}

// ChainingConfig controls the API chaining engine.
type ChainingConfig struct {
	Relationships             string `yaml:"parent_child_relationship"`
	MetadataTopic             string `yaml:"metadata_topic"`
	ContinueOnParentError     bool   `yaml:"continue_on_parent_error"`
	ParallelProcessingEnabled bool   `yaml:"parallel_processing_enabled"`
	MaxQueueLen               int    `yaml:"max_queue_len"`
	FailureThreshold          int    `yaml:"failure_threshold"`
}

// EndpointConfig is one configured HTTP endpoint ("apiN.*" in the
// host connector's properties format).
type EndpointConfig struct {
	ID                string            `yaml:"id"`
	PathTemplate      string            `yaml:"path_template"`
	Method            string            `yaml:"method"`
	Headers           map[string]string `yaml:"headers"`
	Body              string            `yaml:"body"`
	Parameters        map[string]string `yaml:"parameters"`
	Topic             string            `yaml:"topic"`
	OffsetMode        OffsetMode        `yaml:"offset_mode"`
	InitialOffset     string            `yaml:"initial_offset"`
	Increment         int64             `yaml:"increment"`
	RecordPointer     string            `yaml:"record_pointer"`
	NextPagePointer   string            `yaml:"next_page_pointer"`
	ChainingPointer   string            `yaml:"chaining_pointer"`
	TimestampPointer  string            `yaml:"timestamp_pointer"`
	TimestampParam    string            `yaml:"timestamp_param"`
	TimestampFormat   string            `yaml:"timestamp_format"`
	TotalPagesPointer string            `yaml:"total_pages_pointer"`

	ODataNextLinkField           string         `yaml:"odata_nextlink_field"`
	ODataDeltaLinkField          string         `yaml:"odata_deltalink_field"`
	ODataTokenMode               ODataTokenMode `yaml:"odata_token_mode"`
	ODataNextLinkPollIntervalMs  int64          `yaml:"odata_nextlink_poll_interval_ms"`
	ODataDeltaLinkPollIntervalMs int64          `yaml:"odata_deltalink_poll_interval_ms"`

	RequestIntervalMs   int64 `yaml:"request_interval_ms"`
	ConnectionTimeoutMs int64 `yaml:"connection_timeout_ms"`
	RequestTimeoutMs    int64 `yaml:"request_timeout_ms"`

	AuthRef       string `yaml:"auth_ref"`
	BulkheadGroup string `yaml:"bulkhead_group"`

	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
	Cache          *CacheConfig          `yaml:"cache"`
	RateLimit      *RateLimitConfig      `yaml:"rate_limit"`
}

// WorkerConfig is the engine's complete, frozen-at-start configuration.
type WorkerConfig struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`

	Chaining       ChainingConfig       `yaml:"chaining"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Cache          CacheConfig          `yaml:"cache"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ErrorRetry     ErrorRetryConfig     `yaml:"error_retry"`
	DLQ            DLQConfig            `yaml:"dlq"`
	Logging        LoggingConfig        `yaml:"logging" env:"-"`

	TemplateVariables  map[string]string `yaml:"template_variables"`
	TemplateEnvEnabled bool              `yaml:"template_env_enabled"`
	TemplateDateFormat string            `yaml:"template_date_format"`
	TemplateTimeFormat string            `yaml:"template_time_format"`

	MaxRecordsPerPoll int   `yaml:"max_records_per_poll"`
	MaxPollDurationMs int64 `yaml:"max_poll_duration_ms"`
}

// EnvOverrides captures the subset of top-level settings that may be
// overridden from the process environment, layered on top of
// file-based defaults.
type EnvOverrides struct {
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}
