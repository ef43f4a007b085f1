package azurecloud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-graph/internal/discovery"
	"resource-graph/pkg/api"
)

const (
	vnetID   = "/subscriptions/sub-1/resourceGroups/prod/providers/Microsoft.Network/virtualNetworks/prod-vnet"
	subnetID = vnetID + "/subnets/prod-subnet"
)

type canned struct {
	byOperation map[string]map[string]any
}

func (c *canned) List(ctx context.Context, desc discovery.TypeDescriptor, token string) (*discovery.Page, error) {
	body, ok := c.byOperation[desc.Operation]
	if !ok {
		body = map[string]any{}
	}
	return &discovery.Page{Body: body}, nil
}

func TestAdapterBuildsSubscriptionTopology(t *testing.T) {
	lister := &canned{byOperation: map[string]map[string]any{
		"ListVirtualNetworks": {
			"value": []any{map[string]any{
				"name":       "prod-vnet",
				"id":         vnetID,
				"location":   "eastus",
				"properties": map[string]any{"provisioningState": "Succeeded"},
				"tags":       map[string]any{"env": "prod"},
			}},
		},
		"ListSubnets": {
			"value": []any{map[string]any{
				"name": "prod-subnet",
				"id":   subnetID,
				"properties": map[string]any{
					"provisioningState": "Succeeded",
					"virtualNetwork":    map[string]any{"id": vnetID},
				},
			}},
		},
		"ListVirtualMachines": {
			"value": []any{map[string]any{
				"name":     "web-vm",
				"id":       "/subscriptions/sub-1/resourceGroups/prod/providers/Microsoft.Compute/virtualMachines/web-vm",
				"location": "eastus",
				"properties": map[string]any{
					"vmId":            "vm-guid-1",
					"hardwareProfile": map[string]any{"vmSize": "Standard_B2s"},
					"networkProfile": map[string]any{
						"networkInterfaces": []any{map[string]any{
							"properties": map[string]any{
								"subnet": map[string]any{"id": subnetID},
							},
						}},
					},
				},
			}},
		},
	}}

	adapter := NewAdapter(lister, nil)
	result, err := adapter.Discover(context.Background(), api.DiscoveryOptions{
		AccountScope: "sub-1",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Nodes, 3)

	rels := map[api.RelationshipType]int{}
	for _, e := range result.Edges {
		rels[e.RelationshipType]++
	}
	// subnet runs-in vnet (+ reverse contains), vm runs-in subnet.
	assert.Equal(t, 2, rels[api.RelRunsIn])
	assert.Equal(t, 1, rels[api.RelContains])

	byType := map[api.ResourceType]api.GraphNodeInput{}
	for _, n := range result.Nodes {
		byType[n.ResourceType] = n
	}
	assert.Equal(t, "prod-vnet", byType[api.ResourceNetwork].NativeID)
	assert.Equal(t, "eastus", byType[api.ResourceNetwork].Region)
	assert.Equal(t, vnetID, byType[api.ResourceNetwork].Metadata["full_reference"])

	vm := byType[api.ResourceComputeInstance]
	cost := vm.CostMonthly
	require.NotNil(t, cost)
	assert.Equal(t, "30.37", cost.StringFixed(2))
}

func TestAdapterContract(t *testing.T) {
	adapter := NewAdapter(&canned{}, nil)

	assert.Equal(t, "azure", adapter.Provider())
	assert.True(t, adapter.SupportsIncrementalSync())
	assert.Contains(t, adapter.SupportedResourceTypes(), api.ResourceNetwork)
	assert.Contains(t, adapter.SupportedResourceTypes(), api.ResourceDatabase)
}
