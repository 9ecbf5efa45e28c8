package offsetstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

func TestNew_SeedsEachModeCorrectly(t *testing.T) {
	s := New(config.EndpointConfig{OffsetMode: config.OffsetModeCursorPagination})
	require.NotNil(t, s.Cursor)
	assert.Equal(t, "start", s.Cursor.Token)

	s2 := New(config.EndpointConfig{OffsetMode: config.OffsetModeSimpleIncrementing, InitialOffset: "42"})
	require.NotNil(t, s2.SimpleCounter)
	assert.Equal(t, int64(42), s2.SimpleCounter.Value)
}

func TestCursorPagination_TwoPageScenario(t *testing.T) {
	ep := config.EndpointConfig{
		OffsetMode:      config.OffsetModeCursorPagination,
		PathTemplate:    "/items?cursor=${cursor}",
		NextPagePointer: "/next_cursor",
		InitialOffset:   "start",
	}
	s := New(ep)
	vars := TemplateVars{DateFormat: "2006-01-02", TimeFormat: "15:04:05"}

	prep, err := Prepare(ep, "http://api.example.com", s, vars)
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "cursor=start")

	res, err := Advance(ep, s, []byte(`{"data":[{"id":1}],"next_cursor":"c1"}`))
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.False(t, res.SweepDone)
	assert.Equal(t, "c1", s.Cursor.Token)

	prep2, err := Prepare(ep, "http://api.example.com", s, vars)
	require.NoError(t, err)
	assert.Contains(t, prep2.URL, "cursor=c1")

	res2, err := Advance(ep, s, []byte(`{"data":[{"id":2}],"next_cursor":null}`))
	require.NoError(t, err)
	assert.True(t, res2.SweepDone)
	assert.True(t, s.Cursor.Exhausted, "exhausted is observable until the next sweep's first page lands")
	assert.Equal(t, "start", s.Cursor.Token)

	prep3, err := Prepare(ep, "http://api.example.com", s, vars)
	require.NoError(t, err)
	assert.Contains(t, prep3.URL, "cursor=start")

	res3, err := Advance(ep, s, []byte(`{"data":[{"id":3}],"next_cursor":"c2"}`))
	require.NoError(t, err)
	assert.False(t, res3.SweepDone)
	assert.False(t, s.Cursor.Exhausted, "exhausted clears once the restarted sweep's first page lands")
}

func TestCursor_MissingPointerIsParseFailure(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeCursorPagination, NextPagePointer: "/next_cursor"}
	s := New(ep)

	_, err := Advance(ep, s, []byte(`{"data":[]}`))
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestSimpleCounter_AdvancesByIncrement(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeSimpleIncrementing, Increment: 5}
	s := New(ep)

	res, err := Advance(ep, s, nil)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, int64(5), s.SimpleCounter.Value)
}

func TestODataLink_NextThenDeltaSwitch(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeODataPagination}
	s := New(ep)

	res, err := Advance(ep, s, []byte(`{"@odata.nextLink":"http://x/page2"}`))
	require.NoError(t, err)
	assert.False(t, res.SweepDone)
	assert.Equal(t, ODataPhaseNextLink, s.ODataLink.Phase)

	res2, err := Advance(ep, s, []byte(`{"@odata.deltaLink":"http://x/delta?$deltatoken=abc"}`))
	require.NoError(t, err)
	assert.True(t, res2.SweepDone)
	assert.Equal(t, ODataPhaseDeltaLink, s.ODataLink.Phase)
	assert.Equal(t, "abc", s.ODataLink.DeltaToken)
}

func TestTimestamp_WatermarkNeverMovesBackward(t *testing.T) {
	ep := config.EndpointConfig{
		OffsetMode:       config.OffsetModeTimestamp,
		RecordPointer:    "/data",
		TimestampPointer: "/ts",
		TimestampFormat:  "2006-01-02T15:04:05Z07:00",
	}
	s := New(ep)

	_, err := Advance(ep, s, []byte(`{"data":[{"ts":"2026-01-01T00:00:00Z"}]}`))
	require.NoError(t, err)
	first := s.Timestamp.Watermark

	_, err = Advance(ep, s, []byte(`{"data":[{"ts":"2025-01-01T00:00:00Z"}]}`))
	require.NoError(t, err)
	assert.Equal(t, first, s.Timestamp.Watermark, "watermark must not move backward")
}

func TestTimestamp_PrepareAppendsFormattedWatermark(t *testing.T) {
	ep := config.EndpointConfig{
		OffsetMode:       config.OffsetModeTimestamp,
		PathTemplate:     "/events",
		RecordPointer:    "/data",
		TimestampPointer: "/ts",
		TimestampParam:   "updated_since",
		TimestampFormat:  "2006-01-02T15:04:05Z07:00",
	}
	s := New(ep)
	vars := TemplateVars{}

	_, err := Advance(ep, s, []byte(`{"data":[{"ts":"2026-01-01T00:00:00Z"}]}`))
	require.NoError(t, err)

	prep, err := Prepare(ep, "http://api.example.com", s, vars)
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "updated_since=2026-01-01T00%3A00%3A00Z")
}

func TestTimestamp_PrepareDefaultsParamName(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeTimestamp, PathTemplate: "/events"}
	s := New(ep)

	prep, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "timestamp_param=")
}

func TestPrepare_AppliesRequestParameters(t *testing.T) {
	ep := config.EndpointConfig{
		OffsetMode:   config.OffsetModeSimpleIncrementing,
		PathTemplate: "/items",
		Parameters:   map[string]string{"region": "us-east", "format": "json"},
	}
	s := New(ep)

	prep, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "?format=json&region=us-east")
}

func TestPrepare_AppliesRequestParametersAfterExistingQuery(t *testing.T) {
	ep := config.EndpointConfig{
		OffsetMode:   config.OffsetModeODataPagination,
		PathTemplate: "/items",
		InitialOffset: "$top=10",
		Parameters:   map[string]string{"region": "us-east"},
	}
	s := New(ep)

	prep, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "?$top=10&region=us-east")
}

func TestODataLink_TokenOnlyUsesSkiptokenThenDeltatoken(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeODataPagination, ODataTokenMode: config.ODataTokenModeTokenOnly}
	s := New(ep)

	_, err := Advance(ep, s, []byte(`{"@odata.nextLink":"http://x/page2?$skiptoken=tok1"}`))
	require.NoError(t, err)

	prep, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "$skiptoken=tok1")
	assert.NotContains(t, prep.URL, "$deltatoken")

	_, err = Advance(ep, s, []byte(`{"@odata.deltaLink":"http://x/delta?$deltatoken=tok2"}`))
	require.NoError(t, err)

	prep2, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep2.URL, "$deltatoken=tok2")
	assert.NotContains(t, prep2.URL, "$skiptoken")
}

func TestChaining_DequeuesInOrder(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeChaining, PathTemplate: "/child/${parent_value}"}
	s := New(ep)
	EnqueueChainValues(s, []string{"a", "b"})

	prep, err := Prepare(ep, "http://api.example.com", s, TemplateVars{})
	require.NoError(t, err)
	assert.Contains(t, prep.URL, "/child/a")
	assert.Equal(t, "a", prep.ParentValue)

	res, err := Advance(ep, s, nil)
	require.NoError(t, err)
	assert.False(t, res.SweepDone)

	res2, err := Advance(ep, s, nil)
	require.NoError(t, err)
	assert.True(t, res2.SweepDone)
}

func TestEnqueueChainValues_SkipsAlreadyEmitted(t *testing.T) {
	s := New(config.EndpointConfig{OffsetMode: config.OffsetModeChaining})
	EnqueueChainValues(s, []string{"a"})
	Advance(config.EndpointConfig{OffsetMode: config.OffsetModeChaining}, s, nil)
	EnqueueChainValues(s, []string{"a", "b"})

	assert.Equal(t, []string{"b"}, s.Chaining.ParentValues)
}

func TestSnapshot_CompletesWhenPageExceedsTotal(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeSnapshotPagination, TotalPagesPointer: "/total_pages"}
	s := New(ep)

	res, err := Advance(ep, s, []byte(`{"total_pages":2}`))
	require.NoError(t, err)
	assert.False(t, res.SweepDone)
	assert.Equal(t, 2, s.Snapshot.Page)

	res2, err := Advance(ep, s, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res2.SweepDone)
	assert.Equal(t, 3, s.Snapshot.Page)
}

func TestSerializeRoundTrip(t *testing.T) {
	ep := config.EndpointConfig{OffsetMode: config.OffsetModeCursorPagination, InitialOffset: "start"}
	s := New(ep)
	s.Cursor.Token = "c42"

	data, err := Serialize(s)
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, s, restored)
}
