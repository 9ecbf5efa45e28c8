package config

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromProperties_SingleEndpoint(t *testing.T) {
	props := map[string]string{
		"apis.num":                                "1",
		"api1.http.api.path":                      "/orders",
		"api1.http.request.method":                 "GET",
		"api1.topics":                              "orders-topic",
		"api1.http.offset.mode":                    "CURSOR_PAGINATION",
		"api1.http.initial.offset":                 "start",
		"api1.http.response.data.json.pointer":     "/data",
		"api1.http.next.page.json.pointer":         "/next_cursor",
	}

	cfg, err := FromProperties(props)
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 1)

	ep := cfg.Endpoints[0]
	assert.Equal(t, "api1", ep.ID)
	assert.Equal(t, "/orders", ep.PathTemplate)
	assert.Equal(t, "GET", ep.Method)
	assert.Equal(t, "orders-topic", ep.Topic)
	assert.Equal(t, OffsetModeCursorPagination, ep.OffsetMode)
	assert.Equal(t, "start", ep.InitialOffset)
	assert.Equal(t, "/data", ep.RecordPointer)
	assert.Equal(t, "/next_cursor", ep.NextPagePointer)
}

func TestFromProperties_RespectsApisNumBoundary(t *testing.T) {
	_, err := FromProperties(map[string]string{"apis.num": "0"})
	assert.Error(t, err)

	props := map[string]string{"apis.num": "16"}
	for i := 1; i <= 16; i++ {
		prefix := "api" + strconv.Itoa(i) + "."
		props[prefix+"http.api.path"] = "/x"
		props[prefix+"topics"] = "t"
		props[prefix+"http.offset.mode"] = "SIMPLE_INCREMENTING"
		props[prefix+"http.response.data.json.pointer"] = "/data"
	}
	_, err = FromProperties(props)
	assert.Error(t, err, "apis.num=16 exceeds the 1..15 bound")
}

func TestFromProperties_ApisNumOneMatchesSingleEndpointConfig(t *testing.T) {
	props := map[string]string{
		"apis.num":                            "1",
		"api1.http.api.path":                  "/users",
		"api1.topics":                         "users",
		"api1.http.offset.mode":                "SIMPLE_INCREMENTING",
		"api1.http.response.data.json.pointer": "/data",
	}
	cfg, err := FromProperties(props)
	require.NoError(t, err)
	assert.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, "GET", cfg.Endpoints[0].Method, "default method applies when unset")
}

func TestFromProperties_HeadersAndParametersParsed(t *testing.T) {
	props := map[string]string{
		"apis.num":                            "1",
		"api1.http.api.path":                  "/data",
		"api1.topics":                         "t",
		"api1.http.offset.mode":                "SIMPLE_INCREMENTING",
		"api1.http.response.data.json.pointer": "/items",
		"api1.http.request.headers":            "Accept=application/json;X-Custom=v1",
	}
	cfg, err := FromProperties(props)
	require.NoError(t, err)
	assert.Equal(t, "application/json", cfg.Endpoints[0].Headers["Accept"])
	assert.Equal(t, "v1", cfg.Endpoints[0].Headers["X-Custom"])
}

func TestFromProperties_ChainingRelationshipParsed(t *testing.T) {
	props := map[string]string{
		"apis.num":                            "2",
		"api1.http.api.path":                  "/organizations",
		"api1.topics":                         "orgs",
		"api1.http.offset.mode":                "SIMPLE_INCREMENTING",
		"api1.http.response.data.json.pointer": "/data",
		"api1.http.chaining.json.pointer":      "/id",
		"api2.http.api.path":                  "/organizations/${parent_value}/departments",
		"api2.topics":                         "departments",
		"api2.http.offset.mode":                "CHAINING",
		"api2.http.response.data.json.pointer": "/data",
		"api2.http.chaining.json.pointer":      "/id",
		"api.chaining.parent.child.relationship": "api2:api1",
	}
	cfg, err := FromProperties(props)
	require.NoError(t, err)

	parent, ok := cfg.IsChainChild("api2")
	require.True(t, ok)
	assert.Equal(t, "api1", parent)
	assert.Equal(t, []string{"api2"}, cfg.ChainChildren("api1"))
}

func TestValidate_RejectsCyclicChaining(t *testing.T) {
	cfg := Default()
	cfg.Endpoints = []EndpointConfig{
		{ID: "a", PathTemplate: "/a", Topic: "t", OffsetMode: OffsetModeChaining, ChainingPointer: "/id", RecordPointer: "/data"},
		{ID: "b", PathTemplate: "/b", Topic: "t", OffsetMode: OffsetModeChaining, ChainingPointer: "/id", RecordPointer: "/data"},
	}
	cfg.Chaining.Relationships = "a:b, b:a"

	ce := cfg.Validate()
	assert.True(t, ce.HasErrors())
}

func TestValidate_RequiresModeSpecificPointers(t *testing.T) {
	cfg := Default()
	cfg.Endpoints = []EndpointConfig{
		{ID: "a", PathTemplate: "/a", Topic: "t", OffsetMode: OffsetModeCursorPagination, RecordPointer: "/data"},
	}
	ce := cfg.Validate()
	require.True(t, ce.HasErrors())
	assert.Contains(t, ce.Error(), "next.page.json.pointer")
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Default()
	cfg.Endpoints = []EndpointConfig{
		{ID: "a", PathTemplate: "/a", Topic: "t", OffsetMode: OffsetModeSimpleIncrementing, RecordPointer: "/data"},
	}
	ce := cfg.Validate()
	assert.False(t, ce.HasErrors())
}
