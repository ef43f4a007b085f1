package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-graph/internal/batch"
	"resource-graph/pkg/api"
)

func seedBatch() *batch.Batch {
	b := batch.New()
	b.AddNode(api.GraphNodeInput{
		ID:       "node-fn",
		NativeID: "orders-handler",
		Name:     "orders-handler",
		Provider: "aws",
		Tags:     map[string]string{"env": "prod"},
		Metadata: map[string]any{},
	})
	b.AddNode(api.GraphNodeInput{
		ID:       "node-queue",
		NativeID: "orders-queue",
		Name:     "orders-queue",
		Provider: "aws",
		Metadata: map[string]any{},
	})
	b.AddNode(api.GraphNodeInput{
		ID:       "node-lb",
		NativeID: "web-lb",
		Name:     "web-lb",
		Provider: "aws",
		Metadata: map[string]any{"dns_name": "web.example.com"},
	})
	return b
}

type fakeTags struct {
	byID map[string]map[string]string
	errs map[string]error
}

func (f *fakeTags) Tags(_ context.Context, nativeID string) (map[string]string, error) {
	if err := f.errs[nativeID]; err != nil {
		return nil, err
	}
	return f.byID[nativeID], nil
}

func TestTagBackfillFillsAbsentAndDerivesOwner(t *testing.T) {
	b := seedBatch()
	pass := &TagBackfill{Service: &fakeTags{byID: map[string]map[string]string{
		"orders-handler": {"env": "staging", "Team": "payments"},
	}}}
	require.NoError(t, pass.Run(context.Background(), b))

	n, ok := b.NodeByID("node-fn")
	require.True(t, ok)
	assert.Equal(t, "prod", n.Tags["env"], "existing tag value wins")
	assert.Equal(t, "payments", n.Tags["Team"])
	require.NotNil(t, n.Owner)
	assert.Equal(t, "payments", *n.Owner)
}

func TestTagBackfillOwnerKeyOrder(t *testing.T) {
	b := seedBatch()
	pass := &TagBackfill{Service: &fakeTags{byID: map[string]map[string]string{
		"orders-queue": {"Team": "infra", "Owner": "alice"},
	}}}
	require.NoError(t, pass.Run(context.Background(), b))

	n, _ := b.NodeByID("node-queue")
	require.NotNil(t, n.Owner)
	assert.Equal(t, "alice", *n.Owner, "Owner outranks Team")
}

func TestTagBackfillOneFailureDoesNotAbortOthers(t *testing.T) {
	b := seedBatch()
	pass := &TagBackfill{Service: &fakeTags{
		byID: map[string]map[string]string{"orders-queue": {"Owner": "bob"}},
		errs: map[string]error{"orders-handler": errors.New("throttled")},
	}}
	require.NoError(t, pass.Run(context.Background(), b))

	n, _ := b.NodeByID("node-queue")
	require.NotNil(t, n.Owner)
	assert.Equal(t, "bob", *n.Owner)
}

type fakeEvents struct {
	bindings []EventBinding
	err      error
}

func (f *fakeEvents) Bindings(context.Context) ([]EventBinding, error) {
	return f.bindings, f.err
}

func TestEventWiringAddsEdges(t *testing.T) {
	b := seedBatch()
	pass := &EventWiring{Source: &fakeEvents{bindings: []EventBinding{
		{SourceRef: "orders-queue", TargetRef: "orders-handler", Kind: api.RelTriggers},
		{SourceRef: "orders-queue", TargetRef: "no-such-thing"},
	}}}
	require.NoError(t, pass.Run(context.Background(), b))

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, api.RelTriggers, edges[0].RelationshipType)
	assert.Equal(t, api.ViaEventStream, edges[0].DiscoveredVia)
	assert.Equal(t, "node-queue", edges[0].SourceNodeID)
	assert.Equal(t, "node-fn", edges[0].TargetNodeID)
}

type fakeObservability struct {
	routes []Route
	alarms []Alarm
	err    error
}

func (f *fakeObservability) Routes(context.Context) ([]Route, error) { return f.routes, f.err }
func (f *fakeObservability) Alarms(context.Context) ([]Alarm, error) { return f.alarms, nil }

func TestObservabilityOverlay(t *testing.T) {
	b := seedBatch()
	pass := &ObservabilityOverlay{Service: &fakeObservability{
		routes: []Route{{CallerRef: "web-lb", CalleeRef: "orders-handler"}},
		alarms: []Alarm{
			{Name: "high-errors", TargetRef: "orders-handler"},
			{Name: "orphan-alarm", TargetRef: "nothing-matches"},
		},
	}}
	require.NoError(t, pass.Run(context.Background(), b))

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, api.RelRoutesTo, edges[0].RelationshipType)
	assert.Equal(t, api.ViaRuntimeTrace, edges[0].DiscoveredVia)

	n, _ := b.NodeByID("node-fn")
	assert.Equal(t, []string{"high-errors"}, n.Metadata["alarms"])
}

type fakeDetails struct {
	details map[string]map[string]any
	records []DNSRecord
}

func (f *fakeDetails) Details(_ context.Context, nativeID string) (map[string]any, error) {
	return f.details[nativeID], nil
}
func (f *fakeDetails) DNSRecords(context.Context) ([]DNSRecord, error) {
	return f.records, nil
}

func TestServiceDetailMergesFlagsAndWiresDNS(t *testing.T) {
	b := seedBatch()
	b.MutateNode("node-queue", func(n *api.GraphNodeInput) {
		n.Metadata["encryption_enabled"] = false
	})
	pass := &ServiceDetail{Service: &fakeDetails{
		details: map[string]map[string]any{
			"orders-queue": {"encryption_enabled": true, "retention_days": 14},
		},
		records: []DNSRecord{{Name: "web.example.com", Target: "orders-handler"}},
	}}
	require.NoError(t, pass.Run(context.Background(), b))

	n, _ := b.NodeByID("node-queue")
	assert.Equal(t, false, n.Metadata["encryption_enabled"], "observed value wins")
	assert.Equal(t, 14, n.Metadata["retention_days"])

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, api.RelResolvesTo, edges[0].RelationshipType)
	assert.Equal(t, "node-lb", edges[0].SourceNodeID)
	assert.Equal(t, "node-fn", edges[0].TargetNodeID)
}

type fakeCompliance struct {
	byID map[string][]Violation
}

func (f *fakeCompliance) Evaluations(_ context.Context, nativeID string) ([]Violation, error) {
	return f.byID[nativeID], nil
}

func TestComplianceOverlayAccumulates(t *testing.T) {
	b := seedBatch()
	pass := &ComplianceOverlay{Service: &fakeCompliance{byID: map[string][]Violation{
		"orders-queue": {{Rule: "no-public-queues", Severity: "high"}},
	}}}

	require.NoError(t, pass.Run(context.Background(), b))
	require.NoError(t, pass.Run(context.Background(), b))

	n, _ := b.NodeByID("node-queue")
	assert.Equal(t, 2, n.Metadata["violation_count"])
	assert.Equal(t, []string{"no-public-queues", "no-public-queues"}, n.Metadata["violations"])
}

func TestPipelineUnavailableCollaboratorIsInBand(t *testing.T) {
	b := seedBatch()
	p := NewPipeline(nil,
		&EventWiring{Source: &fakeEvents{err: errors.New("connection refused")}},
		&TagBackfill{Service: &fakeTags{byID: map[string]map[string]string{
			"orders-queue": {"Owner": "carol"},
		}}},
	)
	p.Enrich(context.Background(), b)

	errs := b.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "COLLABORATOR_UNAVAILABLE", errs[0].Code)

	// The later pass still ran.
	n, _ := b.NodeByID("node-queue")
	require.NotNil(t, n.Owner)
	assert.Equal(t, "carol", *n.Owner)
}

func TestFindByReferenceAmbiguitySkips(t *testing.T) {
	b := batch.New()
	b.AddNode(api.GraphNodeInput{ID: "a", NativeID: "svc-orders"})
	b.AddNode(api.GraphNodeInput{ID: "b", NativeID: "svc-orders-v2"})

	// "orders" is a substring of both native ids: ambiguous, no match.
	_, ok := findByReference(b, "orders")
	assert.False(t, ok)

	// Exact native id still wins despite the substring overlap.
	n, ok := findByReference(b, "svc-orders")
	require.True(t, ok)
	assert.Equal(t, "a", n.ID)
}
