package chaining

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/http-ingest-connector/internal/config"
	"github.com/r3e-network/http-ingest-connector/internal/offsetstate"
)

func newChildState() *offsetstate.State {
	return offsetstate.New(config.EndpointConfig{OffsetMode: config.OffsetModeChaining})
}

func TestEngine_MultiLevelFanOut(t *testing.T) {
	e := New(config.ChainingConfig{Relationships: "api2:api1, api3:api2"})

	assert.Equal(t, []string{"api2"}, e.Children("api1"))
	assert.Equal(t, []string{"api3"}, e.Children("api2"))
	parent, ok := e.ParentOf("api2")
	require.True(t, ok)
	assert.Equal(t, "api1", parent)
	assert.True(t, e.IsChild("api3"))
	assert.False(t, e.IsChild("api1"))
}

func TestEngine_ExpandEnqueuesOneChildValuePerElement(t *testing.T) {
	e := New(config.ChainingConfig{Relationships: "api2:api1"})
	states := map[string]*offsetstate.State{"api2": newChildState()}

	body := []byte(`{"data":[{"id":"org1"},{"id":"org2"}]}`)
	events, overflow := e.Expand("api1", body, "/data", "/id", states)

	require.Len(t, events, 2)
	assert.Empty(t, overflow)
	assert.Equal(t, []string{"org1", "org2"}, states["api2"].Chaining.ParentValues)
}

func TestEngine_ParallelFanOutToMultipleChildren(t *testing.T) {
	e := New(config.ChainingConfig{Relationships: "api2:api1, api3:api1"})
	states := map[string]*offsetstate.State{
		"api2": newChildState(),
		"api3": newChildState(),
	}

	body := []byte(`{"data":[{"id":"x"}]}`)
	events, _ := e.Expand("api1", body, "/data", "/id", states)

	require.Len(t, events, 2)
	assert.Equal(t, []string{"x"}, states["api2"].Chaining.ParentValues)
	assert.Equal(t, []string{"x"}, states["api3"].Chaining.ParentValues)
}

func TestEngine_OverflowMarksChildBackPressured(t *testing.T) {
	e := New(config.ChainingConfig{Relationships: "api2:api1", MaxQueueLen: 1})
	child := newChildState()
	child.Chaining.ParentValues = []string{"already-queued"}
	states := map[string]*offsetstate.State{"api2": child}

	body := []byte(`{"data":[{"id":"new-value"}]}`)
	events, overflow := e.Expand("api1", body, "/data", "/id", states)

	require.Len(t, events, 1)
	assert.Equal(t, StatusOverflow, events[0].Status)
	assert.True(t, overflow["api2"])
}

func TestEngine_SkipsAlreadyEmittedValues(t *testing.T) {
	e := New(config.ChainingConfig{Relationships: "api2:api1"})
	child := newChildState()
	child.Chaining.EmittedValues["org1"] = true
	states := map[string]*offsetstate.State{"api2": child}

	body := []byte(`{"data":[{"id":"org1"},{"id":"org2"}]}`)
	events, _ := e.Expand("api1", body, "/data", "/id", states)

	require.Len(t, events, 1)
	assert.Equal(t, "org2", events[0].ParentValue)
}

func TestQueueDepth(t *testing.T) {
	s := newChildState()
	s.Chaining.ParentValues = []string{"a", "b"}
	assert.Equal(t, 2, QueueDepth(s))
	assert.Equal(t, 0, QueueDepth(nil))
}
