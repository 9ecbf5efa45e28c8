// Package dlq routes terminally failed requests to a dead-letter topic:
// once an endpoint step exhausts its retry budget the router emits one
// structured event carrying enough context to diagnose and replay it,
// and the caller must not advance that endpoint's offset.
package dlq

import (
	"time"

	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
)

// Event is one dead-letter record.
type Event struct {
	EndpointID      string
	EffectiveURL    string
	OffsetSnapshot  map[string]interface{}
	Status          int
	BodyExcerpt     string
	Classification  cerrors.Kind
	Attempts        int
	LastError       string
	OccurredAt      time.Time

	// ParentID/ParentValue/ChildID are populated only for chaining child
	// failures.
	ParentID    string
	ParentValue string
	ChildID     string
}

const maxBodyExcerpt = 1024

// Recorder receives DLQ event counts for the metrics sink.
type Recorder interface {
	DLQEvent(endpoint, reason string)
}

type noopRecorder struct{}

func (noopRecorder) DLQEvent(string, string) {}

// Router builds Events from terminal FetchErrors and hands them to a
// configured sink (the topic named by dlq.topic.name, which this engine
// treats as an opaque destination supplied by the host).
type Router struct {
	topic    string
	enabled  bool
	rec      Recorder
	sink     func(Event)
}

// New builds a Router. sink receives every emitted Event; a host adapter
// is expected to publish it to topic.
func New(topic string, enabled bool, rec Recorder, sink func(Event)) *Router {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Router{topic: topic, enabled: enabled, rec: rec, sink: sink}
}

// Route emits a DLQ event for a terminal fetch failure. When the router
// is disabled the DLQ metric is still recorded but the sink is not
// called, so terminal failures are logged and metriced but not
// published anywhere.
func (r *Router) Route(endpointID, effectiveURL string, offset map[string]interface{}, status int, body []byte, fe *cerrors.FetchError) {
	excerpt := string(body)
	if len(excerpt) > maxBodyExcerpt {
		excerpt = excerpt[:maxBodyExcerpt]
	}

	lastErr := ""
	kind := cerrors.Kind("")
	attempts := 0
	if fe != nil {
		kind = fe.Kind
		attempts = fe.Attempts
		if fe.Err != nil {
			lastErr = fe.Err.Error()
		}
	}

	ev := Event{
		EndpointID:     endpointID,
		EffectiveURL:   effectiveURL,
		OffsetSnapshot: offset,
		Status:         status,
		BodyExcerpt:    excerpt,
		Classification: kind,
		Attempts:       attempts,
		LastError:      lastErr,
		OccurredAt:     time.Now(),
	}

	r.rec.DLQEvent(endpointID, string(kind))
	if r.enabled && r.sink != nil {
		r.sink(ev)
	}
}

// RouteChainFailure emits a DLQ event for a chaining child that
// exhausted its retry budget, carrying the parent lineage needed to
// trace it back (parent_id, parent_value, child_id, error_class).
func (r *Router) RouteChainFailure(parentID, parentValue, childID string, fe *cerrors.FetchError) {
	kind := cerrors.Kind("")
	attempts := 0
	lastErr := ""
	if fe != nil {
		kind = fe.Kind
		attempts = fe.Attempts
		if fe.Err != nil {
			lastErr = fe.Err.Error()
		}
	}
	ev := Event{
		EndpointID:     childID,
		ParentID:       parentID,
		ParentValue:    parentValue,
		ChildID:        childID,
		Classification: kind,
		Attempts:       attempts,
		LastError:      lastErr,
		OccurredAt:     time.Now(),
	}
	r.rec.DLQEvent(childID, string(kind))
	if r.enabled && r.sink != nil {
		r.sink(ev)
	}
}

// Topic returns the configured destination topic name.
func (r *Router) Topic() string { return r.topic }
