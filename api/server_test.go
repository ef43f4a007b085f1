package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-graph/internal/discovery"
	graph "resource-graph/pkg/api"
)

type staticAdapter struct {
	provider string
	result   *graph.DiscoveryResult
	healthy  bool
}

func (a *staticAdapter) Provider() string { return a.provider }
func (a *staticAdapter) Discover(context.Context, graph.DiscoveryOptions) (*graph.DiscoveryResult, error) {
	return a.result, nil
}
func (a *staticAdapter) HealthCheck(context.Context) bool { return a.healthy }
func (a *staticAdapter) SupportedResourceTypes() []graph.ResourceType {
	return []graph.ResourceType{graph.ResourceComputeInstance}
}
func (a *staticAdapter) SupportsIncrementalSync() bool { return false }

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleParseState(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)

	doc := map[string]any{
		"version": 4,
		"resources": []any{
			map[string]any{
				"mode":     "managed",
				"type":     "aws_vpc",
				"name":     "main",
				"provider": `provider["registry.terraform.io/hashicorp/aws"]`,
				"instances": []any{
					map[string]any{"attributes": map[string]any{"id": "vpc-1"}},
				},
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	rec := postJSON(t, s.handleParseState, ParseStateRequest{Document: raw})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiscoverResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.Nodes, 1)
	assert.Equal(t, "vpc-1", resp.Result.Nodes[0].NativeID)
}

func TestHandleParseStateRejectsBrokenDocument(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)
	rec := postJSON(t, s.handleParseState, ParseStateRequest{
		Document: json.RawMessage(`{"something": "else"}`),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleCorrelate(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)
	rec := postJSON(t, s.handleCorrelate, CorrelateRequest{
		Results: []*graph.DiscoveryResult{
			{Source: "aws", Nodes: []graph.GraphNodeInput{{ID: "a", NativeID: "i-1"}}},
			{Source: "iac-state", Nodes: []graph.GraphNodeInput{{ID: "b", NativeID: "i-1"}}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CorrelateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, 1.0, resp.Matches[0].Confidence)
}

func TestHandleCorrelateClampsThreshold(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)
	over := 3.5
	rec := postJSON(t, s.handleCorrelate, CorrelateRequest{
		Results: []*graph.DiscoveryResult{
			{Source: "aws", Nodes: []graph.GraphNodeInput{{ID: "a", NativeID: "i-1"}}},
			{Source: "iac-state", Nodes: []graph.GraphNodeInput{{ID: "b", NativeID: "i-1"}}},
		},
		Threshold: &over,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CorrelateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1.0, resp.Threshold)
}

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("GRAPHSCAN_PORT", "9191")
	t.Setenv("GRAPHSCAN_REQUIRE_AUTH", "true")

	cfg := DefaultConfig()
	assert.Equal(t, 9191, cfg.Port)
	assert.True(t, cfg.RequireAuth)
}

func TestHandleCorrelateNeedsTwoSets(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)
	rec := postJSON(t, s.handleCorrelate, CorrelateRequest{
		Results: []*graph.DiscoveryResult{{Source: "aws"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDiscoverUnknownSource(t *testing.T) {
	s := NewServer(nil, nil, nil, nil)
	rec := postJSON(t, s.handleDiscover, DiscoverRequest{Source: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSources(t *testing.T) {
	s := NewServer(map[string]discovery.Adapter{
		"aws": &staticAdapter{provider: "aws", healthy: true},
	}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	rec := httptest.NewRecorder()
	s.handleListSources(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []SourceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "aws", resp[0].Name)
	assert.True(t, resp[0].Healthy)
	assert.False(t, resp[0].SupportsIncrementalSync)
}

func TestHandleDiscoverRunsAdapter(t *testing.T) {
	s := NewServer(map[string]discovery.Adapter{
		"aws": &staticAdapter{
			provider: "aws",
			healthy:  true,
			result: &graph.DiscoveryResult{
				Source:   "aws",
				Provider: "aws",
				Nodes:    []graph.GraphNodeInput{{ID: "n1", NativeID: "i-1"}},
			},
		},
	}, nil, nil, nil)

	rec := postJSON(t, s.handleDiscover, DiscoverRequest{Source: "aws"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiscoverResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.Nodes, 1)
	assert.Empty(t, resp.SnapshotID)
}
