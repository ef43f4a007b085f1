package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
)

func result(source string, nodes ...api.GraphNodeInput) *api.DiscoveryResult {
	return &api.DiscoveryResult{Source: source, Provider: source, Nodes: nodes}
}

func TestNativeIDMatchAcrossSources(t *testing.T) {
	cloud := result("aws",
		api.GraphNodeInput{ID: "c1", NativeID: "i-0abc123"},
	)
	iac := result("iac-state",
		api.GraphNodeInput{ID: "s1", NativeID: "i-0abc123"},
		api.GraphNodeInput{ID: "s2", NativeID: "i-0other"},
	)

	matches := Correlate(cloud, iac)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleNativeID, matches[0].Rule)
	assert.Equal(t, confidence.Exact, matches[0].Confidence)
	assert.Equal(t, "c1", matches[0].LeftNodeID)
	assert.Equal(t, "s1", matches[0].RightNodeID)
}

func TestARNAndBareIDNormalizeToSameResource(t *testing.T) {
	cloud := result("aws", api.GraphNodeInput{
		ID:       "c1",
		NativeID: "arn:aws:ec2:us-east-1:123456789012:instance/i-0abc123",
	})
	iac := result("iac-state", api.GraphNodeInput{ID: "s1", NativeID: "i-0abc123"})

	matches := Correlate(cloud, iac)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleNativeID, matches[0].Rule)
}

func TestSameSourcePairsNeverMatch(t *testing.T) {
	one := result("aws",
		api.GraphNodeInput{ID: "a", NativeID: "i-1"},
		api.GraphNodeInput{ID: "b", NativeID: "i-1"},
	)
	assert.Empty(t, Correlate(one))
}

func TestDerivedAttributeTiers(t *testing.T) {
	cloud := result("aws",
		api.GraphNodeInput{ID: "lb", NativeID: "web-lb",
			Metadata: map[string]any{"dns_name": "web.example.com"}},
		api.GraphNodeInput{ID: "db", NativeID: "orders-db",
			Metadata: map[string]any{"endpoint": "orders.cluster.local:5432"}},
		api.GraphNodeInput{ID: "vm", NativeID: "i-9",
			Metadata: map[string]any{"public_ip": "203.0.113.9"}},
	)
	kube := result("kubernetes",
		api.GraphNodeInput{ID: "svc", NativeID: "web",
			Metadata: map[string]any{"dns_name": "web.example.com"}},
		api.GraphNodeInput{ID: "cfg", NativeID: "orders-cfg",
			Metadata: map[string]any{"endpoint": "orders.cluster.local:5432"}},
		api.GraphNodeInput{ID: "ext", NativeID: "ext-9",
			Metadata: map[string]any{"public_ip": "203.0.113.9"}},
	)

	matches := Correlate(cloud, kube)
	require.Len(t, matches, 3)
	assert.Equal(t, RuleDNSName, matches[0].Rule)
	assert.Equal(t, confidence.DNSMatch, matches[0].Confidence)
	assert.Equal(t, RuleEndpoint, matches[1].Rule)
	assert.Equal(t, RuleSharedIP, matches[2].Rule)
}

func TestTagOverlapNeedsTwoPairs(t *testing.T) {
	cloud := result("aws",
		api.GraphNodeInput{ID: "a", NativeID: "i-1",
			Tags: map[string]string{"app": "orders", "env": "prod"}},
		api.GraphNodeInput{ID: "b", NativeID: "i-2",
			Tags: map[string]string{"app": "orders"}},
	)
	iac := result("iac-state",
		api.GraphNodeInput{ID: "x", NativeID: "vm-1",
			Tags: map[string]string{"app": "orders", "env": "prod"}},
	)

	matches := Correlate(cloud, iac)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleTagOverlap, matches[0].Rule)
	assert.Equal(t, "a", matches[0].LeftNodeID)
	assert.Less(t, matches[0].Confidence, DefaultThreshold)
}

func TestConfidenceNonIncreasingAndBelowThresholdKept(t *testing.T) {
	cloud := result("aws",
		api.GraphNodeInput{ID: "a", NativeID: "i-1",
			Tags: map[string]string{"app": "orders", "env": "prod"}},
		api.GraphNodeInput{ID: "b", NativeID: "vol-7"},
		api.GraphNodeInput{ID: "c", NativeID: "lb-1",
			Metadata: map[string]any{"dns_name": "web.example.com"}},
	)
	iac := result("iac-state",
		api.GraphNodeInput{ID: "x", NativeID: "vol-7"},
		api.GraphNodeInput{ID: "y", NativeID: "svc-web",
			Metadata: map[string]any{"dns_name": "web.example.com"}},
		api.GraphNodeInput{ID: "z", NativeID: "vm-2",
			Tags: map[string]string{"app": "orders", "env": "prod"}},
	)

	matches := Correlate(cloud, iac)
	require.Len(t, matches, 3)

	scores := make([]float64, len(matches))
	for i, m := range matches {
		scores[i] = m.Confidence
	}
	assert.True(t, confidence.NonIncreasing(scores))

	// The tag-overlap match sits below the default threshold but is
	// returned anyway; Filter is there for callers wanting the cut.
	assert.Equal(t, RuleTagOverlap, matches[2].Rule)
	filtered := Filter(matches, DefaultThreshold)
	assert.Len(t, filtered, 2)
}

func TestResourceGroupMatch(t *testing.T) {
	azure := result("azure", api.GraphNodeInput{ID: "a", NativeID: "vm1",
		Metadata: map[string]any{"resource_group": "prod-rg"}})
	iac := result("iac-state", api.GraphNodeInput{ID: "b", NativeID: "vmx",
		Metadata: map[string]any{"resource_group": "prod-rg"}})

	matches := Correlate(azure, iac)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleResourceGroup, matches[0].Rule)
	assert.Equal(t, confidence.TagOverlap, matches[0].Confidence)
}
