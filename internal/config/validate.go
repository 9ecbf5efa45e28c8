package config

import (
	"strings"

	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
)

var validOffsetModes = map[OffsetMode]bool{
	OffsetModeSimpleIncrementing: true,
	OffsetModeCursorPagination:   true,
	OffsetModeODataPagination:    true,
	OffsetModeTimestamp:          true,
	OffsetModeChaining:           true,
	OffsetModeSnapshotPagination: true,
}

var validEvictionPolicies = map[EvictionPolicy]bool{
	EvictionLRU: true, EvictionLFU: true, EvictionFIFO: true,
}

var validAlgorithms = map[RateLimitAlgorithm]bool{
	AlgorithmTokenBucket: true, AlgorithmSlidingWindow: true,
	AlgorithmFixedWindow: true, AlgorithmLeakyBucket: true, AlgorithmAdaptive: true,
}

// Validate checks the configuration's required fields and cross-field
// invariants (offset-mode-specific pointers, chaining DAG acyclicity,
// enum values). Invalid config must fail at startup, not at runtime, so
// Validate accumulates every violation rather than stopping at the first.
func (c *WorkerConfig) Validate() *cerrors.ConfigError {
	ce := &cerrors.ConfigError{}

	if len(c.Endpoints) < 1 || len(c.Endpoints) > 15 {
		ce.Add("apis.num must be between 1 and 15, got %d", len(c.Endpoints))
	}

	seen := map[string]bool{}
	for i, ep := range c.Endpoints {
		label := ep.ID
		if label == "" {
			label = "<unnamed>"
		}
		if ep.ID == "" {
			ce.Add("endpoint[%d]: id is required", i)
		} else if seen[ep.ID] {
			ce.Add("endpoint %s: duplicate id", label)
		}
		seen[ep.ID] = true

		if ep.PathTemplate == "" {
			ce.Add("endpoint %s: http.api.path is required", label)
		}
		if ep.Topic == "" {
			ce.Add("endpoint %s: topics is required", label)
		}
		if ep.RecordPointer == "" {
			ce.Add("endpoint %s: http.response.data.json.pointer is required", label)
		}
		if !validOffsetModes[ep.OffsetMode] {
			ce.Add("endpoint %s: invalid http.offset.mode %q", label, ep.OffsetMode)
		}
		if ep.OffsetMode == OffsetModeCursorPagination && ep.NextPagePointer == "" {
			ce.Add("endpoint %s: http.next.page.json.pointer is required for CURSOR_PAGINATION", label)
		}
		if ep.OffsetMode == OffsetModeTimestamp && ep.TimestampPointer == "" {
			ce.Add("endpoint %s: http.timestamp.json.pointer is required for TIMESTAMP_PAGINATION", label)
		}
		if ep.OffsetMode == OffsetModeChaining && ep.ChainingPointer == "" {
			ce.Add("endpoint %s: http.chaining.json.pointer is required for CHAINING", label)
		}
		if ep.CircuitBreaker != nil && ep.CircuitBreaker.FailureThreshold < 0 {
			ce.Add("endpoint %s: circuit breaker failure threshold must be >= 0", label)
		}
	}

	if c.Cache.EvictionPolicy != "" && !validEvictionPolicies[c.Cache.EvictionPolicy] {
		ce.Add("response.caching.eviction.policy: invalid value %q", c.Cache.EvictionPolicy)
	}
	if c.RateLimit.Algorithm != "" && !validAlgorithms[c.RateLimit.Algorithm] {
		ce.Add("rate.limiting.algorithm: invalid value %q", c.RateLimit.Algorithm)
	}

	if pairs := ChildParentPairs(c.Chaining.Relationships); len(pairs) > 0 {
		if cycle := findChainCycle(pairs); cycle != "" {
			ce.Add("api.chaining.parent.child.relationship: cycle detected involving %s", cycle)
		}
		parentOf := map[string]string{}
		for _, pair := range pairs {
			child, parent := pair[0], pair[1]
			if existing, ok := parentOf[child]; ok && existing != parent {
				ce.Add("chaining: child %s declares more than one parent (%s, %s)", child, existing, parent)
			}
			parentOf[child] = parent
		}
	}

	return ce
}

// findChainCycle reports the first node found to participate in a cycle,
// or "" if the child:parent relation is acyclic.
func findChainCycle(pairs [][2]string) string {
	children := map[string][]string{}
	for _, pair := range pairs {
		child, parent := pair[0], pair[1]
		children[parent] = append(children[parent], child)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}

	var visit func(node string) string
	visit = func(node string) string {
		switch state[node] {
		case visiting:
			return node
		case done:
			return ""
		}
		state[node] = visiting
		for _, child := range children[node] {
			if cyc := visit(child); cyc != "" {
				return cyc
			}
		}
		state[node] = done
		return ""
	}

	roots := map[string]bool{}
	for _, pair := range pairs {
		roots[pair[0]] = true
		roots[pair[1]] = true
	}
	for node := range roots {
		if state[node] == unvisited {
			if cyc := visit(node); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// EndpointByID returns the configured endpoint with the given ID.
func (c *WorkerConfig) EndpointByID(id string) *EndpointConfig {
	for i := range c.Endpoints {
		if c.Endpoints[i].ID == id {
			return &c.Endpoints[i]
		}
	}
	return nil
}

// IsChainChild reports whether id is declared as a chaining child and
// returns its parent ID.
func (c *WorkerConfig) IsChainChild(id string) (parent string, ok bool) {
	for _, pair := range ChildParentPairs(c.Chaining.Relationships) {
		if strings.EqualFold(pair[0], id) {
			return pair[1], true
		}
	}
	return "", false
}

// ChainChildren returns the IDs of every endpoint declared as a chaining
// child of parent, in declaration order.
func (c *WorkerConfig) ChainChildren(parent string) []string {
	var out []string
	for _, pair := range ChildParentPairs(c.Chaining.Relationships) {
		if strings.EqualFold(pair[1], parent) {
			out = append(out, pair[0])
		}
	}
	return out
}
