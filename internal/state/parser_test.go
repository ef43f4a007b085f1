package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-graph/pkg/api"
)

func mustDoc(t *testing.T, doc Document) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func managedResource(declaredType, name string, attrs map[string]any, deps ...string) ResourceState {
	return ResourceState{
		Mode:      modeManaged,
		Type:      declaredType,
		Name:      name,
		Provider:  `provider["registry.terraform.io/hashicorp/aws"]`,
		Instances: []ResourceInstance{{Attributes: attrs, Dependencies: deps}},
	}
}

func vpcSubnetDoc() Document {
	return Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_vpc", "main", map[string]any{
				"id":   "vpc-1234",
				"tags": map[string]any{"Name": "main-vpc"},
			}),
			managedResource("aws_subnet", "a", map[string]any{
				"id":                "subnet-1",
				"vpc_id":            "vpc-1234",
				"availability_zone": "us-east-1a",
			}),
		},
	}
}

func TestParseVpcSubnetScenario(t *testing.T) {
	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, vpcSubnetDoc()), api.DiscoveryOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 2)
	require.Len(t, result.Edges, 1)
	assert.Empty(t, result.Errors)

	edge := result.Edges[0]
	assert.Equal(t, api.RelRunsIn, edge.RelationshipType)

	byType := map[api.ResourceType]api.GraphNodeInput{}
	for _, n := range result.Nodes {
		byType[n.ResourceType] = n
	}
	assert.Equal(t, edge.SourceNodeID, byType[api.ResourceSubnet].ID)
	assert.Equal(t, edge.TargetNodeID, byType[api.ResourceNetwork].ID)
	assert.Equal(t, "main-vpc", byType[api.ResourceNetwork].Name)
}

func TestParseRemoteStatePlaceholderScenario(t *testing.T) {
	doc := vpcSubnetDoc()
	doc.Resources = append(doc.Resources, ResourceState{
		Mode: modeData,
		Type: remoteStateType,
		Name: "network",
		Instances: []ResourceInstance{{
			Attributes: map[string]any{
				"outputs": map[string]any{
					"peer_vpc_id": "vpc-peer-999",
				},
			},
		}},
	})

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)

	require.Len(t, result.Nodes, 3)
	var placeholder *api.GraphNodeInput
	for i := range result.Nodes {
		if result.Nodes[i].IsPlaceholder() {
			placeholder = &result.Nodes[i]
		}
	}
	require.NotNil(t, placeholder)
	assert.Equal(t, "vpc-peer-999", placeholder.NativeID)
	assert.Equal(t, api.ResourceNetwork, placeholder.ResourceType)

	var stitched *api.GraphEdgeInput
	for i := range result.Edges {
		if result.Edges[i].Metadata["source"] == "remote-state" {
			stitched = &result.Edges[i]
		}
	}
	require.NotNil(t, stitched)
	assert.Equal(t, api.RelDependsOn, stitched.RelationshipType)
	assert.Equal(t, placeholder.ID, stitched.TargetNodeID)
}

func TestRemoteStateConsumerKeptAcrossOutputs(t *testing.T) {
	// The consumer declares its dependency on the remote-state entry; one
	// output resolves to the consumer itself and must not redirect the
	// attribution of the remaining outputs.
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_instance", "bystander", map[string]any{"id": "i-000"}),
			managedResource("aws_instance", "web", map[string]any{"id": "i-111"},
				"data.terraform_remote_state.network"),
			{
				Mode: modeData,
				Type: remoteStateType,
				Name: "network",
				Instances: []ResourceInstance{{
					Attributes: map[string]any{
						"outputs": map[string]any{
							"self_id":   "i-111",
							"vpc_id":    "vpc-aaa",
							"sg_id":     "sg-bbb",
							"subnet_id": "subnet-ccc",
						},
					},
				}},
			},
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)

	var webID, bystanderID string
	for _, n := range result.Nodes {
		switch n.NativeID {
		case "i-111":
			webID = n.ID
		case "i-000":
			bystanderID = n.ID
		}
	}
	require.NotEmpty(t, webID)
	require.NotEmpty(t, bystanderID)

	stitched := 0
	for _, e := range result.Edges {
		if e.Metadata["source"] != "remote-state" {
			continue
		}
		stitched++
		if e.TargetNodeID == webID {
			// Self-resolving output falls back to the first managed resource.
			assert.Equal(t, bystanderID, e.SourceNodeID, "output %v", e.Metadata["output"])
			continue
		}
		assert.Equal(t, webID, e.SourceNodeID, "output %v", e.Metadata["output"])
	}
	assert.Equal(t, 4, stitched)
}

func TestPlaceholderIDMatchesLaterRealDiscovery(t *testing.T) {
	// Document A references the vpc through remote state only.
	docA := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_instance", "web", map[string]any{"id": "i-1"}),
			{
				Mode: modeData,
				Type: remoteStateType,
				Name: "network",
				Instances: []ResourceInstance{{
					Attributes: map[string]any{
						"outputs": map[string]any{"vpc_id": "vpc-shared"},
					},
				}},
			},
		},
	}
	// Document B manages the vpc for real.
	docB := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_vpc", "shared", map[string]any{"id": "vpc-shared"}),
		},
	}

	p := NewParser(nil)
	resultA, err := p.ParseBytes(mustDoc(t, docA), api.DiscoveryOptions{})
	require.NoError(t, err)
	resultB, err := p.ParseBytes(mustDoc(t, docB), api.DiscoveryOptions{})
	require.NoError(t, err)

	var placeholderID string
	for _, n := range resultA.Nodes {
		if n.IsPlaceholder() {
			placeholderID = n.ID
		}
	}
	require.NotEmpty(t, placeholderID)
	require.Len(t, resultB.Nodes, 1)
	assert.Equal(t, placeholderID, resultB.Nodes[0].ID)
}

func TestDataModeEntriesExcluded(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_vpc", "main", map[string]any{"id": "vpc-1"}),
			{
				Mode: modeData,
				Type: "aws_ami",
				Name: "ubuntu",
				Instances: []ResourceInstance{{
					Attributes: map[string]any{"id": "ami-123"},
				}},
			},
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Nodes, 1)
	assert.False(t, result.Nodes[0].IsPlaceholder())
	assert.Equal(t, "vpc-1", result.Nodes[0].NativeID)
}

func TestUnknownDeclaredTypeSurvives(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_fancy_new_thing", "x", map[string]any{"id": "fnt-1"}),
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, api.ResourceUnknown, result.Nodes[0].ResourceType)
	assert.Equal(t, "aws", result.Nodes[0].Provider)
	assert.Equal(t, "aws_fancy_new_thing", result.Nodes[0].Metadata["declared_type"])
}

func TestDeclaredDependenciesYieldDependsOnEdges(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_vpc", "main", map[string]any{"id": "vpc-1"}),
			managedResource("aws_instance", "web", map[string]any{"id": "i-1"},
				"aws_vpc.main"),
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, api.RelDependsOn, result.Edges[0].RelationshipType)
	assert.Equal(t, "aws_vpc.main", result.Edges[0].Metadata["declared"])
}

func TestAttributeAndDeclaredEdgesBothSurviveWhenTypesDiffer(t *testing.T) {
	// subnet -> vpc via both the vpc_id attribute rule (runs-in) and an
	// explicit dependency declaration (depends-on): both edges survive.
	doc := vpcSubnetDoc()
	doc.Resources[1].Instances[0].Dependencies = []string{"aws_vpc.main"}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)

	rels := map[api.RelationshipType]int{}
	for _, e := range result.Edges {
		rels[e.RelationshipType]++
	}
	assert.Equal(t, 1, rels[api.RelRunsIn])
	assert.Equal(t, 1, rels[api.RelDependsOn])
}

func TestSamePairSameTypeDedupKeepsFirst(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_vpc", "main", map[string]any{"id": "vpc-1"}),
			{
				Mode:      modeManaged,
				Type:      "aws_instance",
				Name:      "web",
				Provider:  `provider["registry.terraform.io/hashicorp/aws"]`,
				DependsOn: []string{"aws_vpc.main"},
				Instances: []ResourceInstance{{
					Attributes:   map[string]any{"id": "i-1"},
					Dependencies: []string{"aws_vpc.main"},
				}},
			},
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Edges, 1)
}

func TestMalformedDocumentIsFatal(t *testing.T) {
	p := NewParser(nil)

	_, err := p.ParseBytes([]byte("{not json"), api.DiscoveryOptions{})
	require.Error(t, err)

	_, err = p.ParseBytes([]byte(`{"something": "else"}`), api.DiscoveryOptions{})
	require.Error(t, err)
}

func TestCostMergedFromStaticTables(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_instance", "web", map[string]any{
				"id":            "i-1",
				"instance_type": "t3.medium",
			}),
			managedResource("aws_instance", "odd", map[string]any{
				"id":            "i-2",
				"instance_type": "never-heard-of-it",
			}),
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Nodes, 2)

	byNative := map[string]api.GraphNodeInput{}
	for _, n := range result.Nodes {
		byNative[n.NativeID] = n
	}
	require.NotNil(t, byNative["i-1"].CostMonthly)
	assert.Equal(t, "30.37", byNative["i-1"].CostMonthly.StringFixed(2))
	assert.Nil(t, byNative["i-2"].CostMonthly)
	assert.Empty(t, result.Errors)
}

func TestNamePrecedence(t *testing.T) {
	doc := Document{
		Version: 4,
		Resources: []ResourceState{
			managedResource("aws_s3_bucket", "tagged", map[string]any{
				"id":     "bucket-tagged",
				"bucket": "attr-name",
				"tags":   map[string]any{"Name": "tag-name"},
			}),
			managedResource("aws_s3_bucket", "attr", map[string]any{
				"id":     "bucket-attr",
				"bucket": "attr-name-2",
			}),
			managedResource("aws_s3_bucket", "bare", map[string]any{
				"id": "bucket-bare",
			}),
		},
	}

	p := NewParser(nil)
	result, err := p.ParseBytes(mustDoc(t, doc), api.DiscoveryOptions{})
	require.NoError(t, err)

	names := map[string]string{}
	for _, n := range result.Nodes {
		names[n.NativeID] = n.Name
	}
	assert.Equal(t, "tag-name", names["bucket-tagged"])
	assert.Equal(t, "attr-name-2", names["bucket-attr"])
	assert.Equal(t, "bucket-bare", names["bucket-bare"])
}

func TestParseDeterministicIDs(t *testing.T) {
	p := NewParser(nil)
	data := mustDoc(t, vpcSubnetDoc())

	first, err := p.ParseBytes(data, api.DiscoveryOptions{AccountScope: "acct"})
	require.NoError(t, err)
	second, err := p.ParseBytes(data, api.DiscoveryOptions{AccountScope: "acct"})
	require.NoError(t, err)

	require.Equal(t, len(first.Nodes), len(second.Nodes))
	for i := range first.Nodes {
		assert.Equal(t, first.Nodes[i].ID, second.Nodes[i].ID)
	}
}
