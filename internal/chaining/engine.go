// Package chaining implements the API-chaining engine: parent responses
// are expanded into child requests via a configured child:parent
// relation, multi-level and parallel fan-out are supported, and each
// expansion emits a ChainMetadata event. The DAG itself is parsed and
// validated for acyclicity in internal/config; this package owns the
// runtime queues and metadata events once that shape is established.
package chaining

import (
	"encoding/json"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
	"github.com/r3e-network/http-ingest-connector/internal/offsetstate"
	"github.com/r3e-network/http-ingest-connector/internal/record"
)

// Status names the outcome of one parent-value expansion.
type Status string

const (
	StatusEnqueued Status = "ENQUEUED"
	StatusOverflow Status = "OVERFLOW"
)

// Metadata is one ChainMetadata event.
type Metadata struct {
	ParentID    string
	ChildID     string
	ParentValue string
	EmittedAt   time.Time
	Status      Status
}

// ToRecord converts a Metadata event into a record.Record on topic, the
// same way an ordinary extracted record carries its endpoint's topic,
// so the caller can append it to a PollBatch alongside regular records.
func (m Metadata) ToRecord(topic string) record.Record {
	value, _ := json.Marshal(struct {
		Parent string `json:"parent"`
		Child  string `json:"child"`
		Value  string `json:"value"`
		Status string `json:"status"`
	}{Parent: m.ParentID, Child: m.ChildID, Value: m.ParentValue, Status: string(m.Status)})
	return record.Record{
		Topic:        topic,
		Value:        value,
		PartitionKey: m.ParentID,
	}
}

// Engine tracks the parent→children relation and each child's queue
// depth limit.
type Engine struct {
	childrenOf map[string][]string
	parentOf   map[string]string
	maxQueue   int
}

// New builds an Engine from the worker's chaining configuration.
func New(cfg config.ChainingConfig) *Engine {
	maxQueue := cfg.MaxQueueLen
	if maxQueue <= 0 {
		maxQueue = 10000
	}
	e := &Engine{
		childrenOf: make(map[string][]string),
		parentOf:   make(map[string]string),
		maxQueue:   maxQueue,
	}
	for _, pair := range config.ChildParentPairs(cfg.Relationships) {
		child, parent := pair[0], pair[1]
		e.parentOf[child] = parent
		e.childrenOf[parent] = append(e.childrenOf[parent], child)
	}
	return e
}

// Children returns the child endpoint IDs declared for parentID, in
// declaration order, for parallel round-robin scheduling.
func (e *Engine) Children(parentID string) []string {
	return e.childrenOf[parentID]
}

// ParentOf returns the parent endpoint ID of childID, if childID is a
// chaining child.
func (e *Engine) ParentOf(childID string) (string, bool) {
	p, ok := e.parentOf[childID]
	return p, ok
}

// IsChild reports whether id is declared as anyone's chaining child.
func (e *Engine) IsChild(id string) bool {
	_, ok := e.parentOf[id]
	return ok
}

// Expand extracts chainingValuePointer from each element of the parent
// response body's record array and enqueues one (child, value) pair
// per declared child per value, onto each child's own offsetstate
// queue. It returns a Metadata event per successful enqueue, a
// StatusOverflow event per value rejected by a full queue, and a set
// of child IDs whose queue is at or above capacity, so the caller can
// back-pressure the parent's scheduler slot until those queues drain.
func (e *Engine) Expand(
	parentID string,
	body []byte,
	recordPointer, chainingValuePointer string,
	childStates map[string]*offsetstate.State,
) ([]Metadata, map[string]bool) {
	children := e.childrenOf[parentID]
	if len(children) == 0 {
		return nil, nil
	}

	values := record.ExtractValues(body, recordPointer, chainingValuePointer)
	if len(values) == 0 {
		return nil, nil
	}

	var events []Metadata
	overflowing := make(map[string]bool)
	now := time.Now()

	for _, childID := range children {
		st, ok := childStates[childID]
		if !ok || st.Chaining == nil {
			continue
		}
		for _, v := range values {
			if len(st.Chaining.ParentValues) >= e.maxQueue {
				overflowing[childID] = true
				events = append(events, Metadata{
					ParentID: parentID, ChildID: childID, ParentValue: v,
					EmittedAt: now, Status: StatusOverflow,
				})
				continue
			}
			if st.Chaining.EmittedValues != nil && st.Chaining.EmittedValues[v] {
				continue
			}
			offsetstate.EnqueueChainValues(st, []string{v})
			events = append(events, Metadata{
				ParentID: parentID, ChildID: childID, ParentValue: v,
				EmittedAt: now, Status: StatusEnqueued,
			})
		}
	}
	return events, overflowing
}

// QueueDepth returns the pending parent-value count for a child's
// current state, for metrics reporting.
func QueueDepth(s *offsetstate.State) int {
	if s == nil || s.Chaining == nil {
		return 0
	}
	return len(s.Chaining.ParentValues)
}
