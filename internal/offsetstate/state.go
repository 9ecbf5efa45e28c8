// Package offsetstate implements the six-mode offset/pagination state
// machine: each endpoint owns exactly one tagged variant, fixed at
// configuration time, that computes the next request URL and is
// updated from each response. State is persisted per resource: restore
// at start, mutate in place, serialize for the host to persist.
package offsetstate

import (
	"strconv"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

// ODataPhase names which OData link the state machine is currently
// following.
type ODataPhase string

const (
	ODataPhaseNextLink ODataPhase = "NEXT_LINK"
	ODataPhaseDeltaLink ODataPhase = "DELTA_LINK"
)

// SimpleCounterState is a monotonically advancing integer offset.
type SimpleCounterState struct {
	Value int64 `json:"value"`
}

// CursorState follows an opaque server-issued continuation token.
type CursorState struct {
	Token     string `json:"token"`
	Exhausted bool   `json:"exhausted"`
}

// ODataLinkState follows Microsoft Graph / OData-style next/delta links.
type ODataLinkState struct {
	CurrentLink string     `json:"current_link"`
	Phase       ODataPhase `json:"phase"`
	DeltaToken  string     `json:"delta_token"`
}

// TimestampState tracks a high-watermark, monotone non-decreasing.
type TimestampState struct {
	Watermark time.Time `json:"watermark"`
}

// ChainingState holds the queue of parent-extracted values awaiting a
// child request, plus the set already emitted (for dedup on restart).
type ChainingState struct {
	ParentValues  []string        `json:"parent_values"`
	EmittedValues map[string]bool `json:"emitted_values"`
}

// SnapshotState pages through a resource by 1-indexed page number.
type SnapshotState struct {
	Page        int    `json:"page"`
	TotalPages  int    `json:"total_pages"`
	TotalKnown  bool   `json:"total_known"`
	SnapshotID  string `json:"snapshot_id"`
}

// State is the tagged union of offset variants. Exactly one of the
// pointer fields matching Mode is populated; the others are nil. The
// tag never changes after construction.
type State struct {
	Mode config.OffsetMode `json:"mode"`

	SimpleCounter *SimpleCounterState `json:"simple_counter,omitempty"`
	Cursor        *CursorState        `json:"cursor,omitempty"`
	ODataLink     *ODataLinkState     `json:"odata_link,omitempty"`
	Timestamp     *TimestampState     `json:"timestamp,omitempty"`
	Chaining      *ChainingState      `json:"chaining,omitempty"`
	Snapshot      *SnapshotState      `json:"snapshot,omitempty"`
}

// New constructs the initial State for an endpoint from its configured
// mode and initial_offset seed, the way a freshly started worker would
// before any offset has been restored from the host.
func New(ep config.EndpointConfig) *State {
	s := &State{Mode: ep.OffsetMode}
	switch ep.OffsetMode {
	case config.OffsetModeSimpleIncrementing:
		var v int64
		if ep.InitialOffset != "" {
			v, _ = strconv.ParseInt(ep.InitialOffset, 10, 64)
		}
		s.SimpleCounter = &SimpleCounterState{Value: v}
	case config.OffsetModeCursorPagination:
		s.Cursor = &CursorState{Token: cursorSeed(ep)}
	case config.OffsetModeODataPagination:
		s.ODataLink = &ODataLinkState{Phase: ODataPhaseNextLink}
	case config.OffsetModeTimestamp:
		s.Timestamp = &TimestampState{}
	case config.OffsetModeChaining:
		s.Chaining = &ChainingState{EmittedValues: make(map[string]bool)}
	case config.OffsetModeSnapshotPagination:
		s.Snapshot = &SnapshotState{Page: 1}
	}
	return s
}
