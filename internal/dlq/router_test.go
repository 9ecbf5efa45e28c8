package dlq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/r3e-network/http-ingest-connector/internal/errors"
)

type countingRecorder struct {
	events map[string]int
}

func (c *countingRecorder) DLQEvent(endpoint, reason string) {
	if c.events == nil {
		c.events = map[string]int{}
	}
	c.events[endpoint+":"+reason]++
}

func TestRouter_RouteEmitsEventWhenEnabled(t *testing.T) {
	var got Event
	rec := &countingRecorder{}
	r := New("dlq-topic", true, rec, func(ev Event) { got = ev })

	fe := cerrors.New("ep1", cerrors.KindClientPermanent, 404, nil).WithAttempts(2)
	r.Route("ep1", "https://api.example.com/items", map[string]interface{}{"cursor": "abc"}, 404, []byte(`{"error":"not found"}`), fe)

	assert.Equal(t, "ep1", got.EndpointID)
	assert.Equal(t, 404, got.Status)
	assert.Equal(t, cerrors.KindClientPermanent, got.Classification)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, rec.events["ep1:client_permanent"])
}

func TestRouter_DisabledSkipsSink(t *testing.T) {
	called := false
	r := New("dlq-topic", false, nil, func(ev Event) { called = true })

	fe := cerrors.New("ep1", cerrors.KindServerTransient, 503, nil)
	r.Route("ep1", "https://api.example.com/items", nil, 503, nil, fe)

	assert.False(t, called)
}

func TestRouter_BodyExcerptTruncated(t *testing.T) {
	var got Event
	r := New("dlq-topic", true, nil, func(ev Event) { got = ev })

	body := make([]byte, maxBodyExcerpt+500)
	for i := range body {
		body[i] = 'a'
	}
	fe := cerrors.New("ep1", cerrors.KindParse, 200, nil)
	r.Route("ep1", "https://api.example.com/items", nil, 200, body, fe)

	assert.Len(t, got.BodyExcerpt, maxBodyExcerpt)
}

func TestRouter_RouteChainFailureCarriesLineage(t *testing.T) {
	var got Event
	r := New("dlq-topic", true, nil, func(ev Event) { got = ev })

	fe := cerrors.New("child1", cerrors.KindServerTransient, 500, nil).WithAttempts(4)
	r.RouteChainFailure("parent1", "42", "child1", fe)

	require.Equal(t, "parent1", got.ParentID)
	assert.Equal(t, "42", got.ParentValue)
	assert.Equal(t, "child1", got.ChildID)
	assert.Equal(t, 4, got.Attempts)
}

func TestRouter_Topic(t *testing.T) {
	r := New("my-dlq", true, nil, nil)
	assert.Equal(t, "my-dlq", r.Topic())
}
