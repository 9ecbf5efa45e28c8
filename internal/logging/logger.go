// Package logging provides structured logging for the ingestion engine,
// wrapping logrus the way the rest of this codebase's ancestry does.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context-carried logging metadata.
type ContextKey string

const (
	// TraceIDKey identifies the trace ID of the enclosing poll() call.
	TraceIDKey ContextKey = "trace_id"
	// EndpointIDKey identifies which configured endpoint a log line concerns.
	EndpointIDKey ContextKey = "endpoint_id"
)

// Logger wraps logrus.Logger with engine-specific field conventions.
type Logger struct {
	*logrus.Logger
	worker string
}

// New creates a Logger for the given worker name.
func New(worker, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, worker: worker}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(worker string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(worker, level, format)
}

// WithContext returns a logrus.Entry carrying trace/endpoint fields found
// on ctx, plus the worker name.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("worker", l.worker)
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if endpointID, ok := ctx.Value(EndpointIDKey).(string); ok && endpointID != "" {
		entry = entry.WithField("endpoint_id", endpointID)
	}
	return entry
}

// NewTraceID mints a trace ID for a single poll() invocation.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithEndpointID attaches an endpoint ID to ctx.
func WithEndpointID(ctx context.Context, endpointID string) context.Context {
	return context.WithValue(ctx, EndpointIDKey, endpointID)
}

// LogFetch logs the outcome of one HTTP fetch attempt.
func (l *Logger) LogFetch(ctx context.Context, endpointID string, status int, kind string, attempt int, dur time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"endpoint_id": endpointID,
		"status":      status,
		"kind":        kind,
		"attempt":     attempt,
		"duration_ms": dur.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("fetch failed")
		return
	}
	entry.Debug("fetch succeeded")
}

// LogRetry logs that a fetch attempt failed and will be retried after wait.
func (l *Logger) LogRetry(ctx context.Context, endpointID string, attempt, maxAttempts int, wait time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"endpoint_id":  endpointID,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"wait_ms":      wait.Milliseconds(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("retrying fetch")
}

// LogBreakerTrip logs a circuit breaker state transition.
func (l *Logger) LogBreakerTrip(ctx context.Context, endpointID, group string, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"endpoint_id": endpointID,
		"group":       group,
		"from":        from,
		"to":          to,
	}).Warn("circuit breaker state change")
}

// LogDLQ logs a record/request routed to the dead-letter topic.
func (l *Logger) LogDLQ(ctx context.Context, endpointID, topic string, classification string, attempts int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"endpoint_id":    endpointID,
		"dlq_topic":      topic,
		"classification": classification,
		"attempts":       attempts,
	}).Error("routed to dead-letter queue")
}
