// Package azurecloud instantiates the discovery adapter for Azure
// subscription inventories. Azure's Resource Manager speaks flat JSON with
// fully-qualified resource ids, so the tables lean on reference fields and
// the id normalizer rather than tag pairs.
package azurecloud

import (
	"log/slog"

	"resource-graph/internal/discovery"
	"resource-graph/pkg/api"
)

const Provider = "azure"

var Mappings = []discovery.ServiceMapping{
	{
		Type:        api.ResourceNetwork,
		Service:     "network",
		Operation:   "ListVirtualNetworks",
		ItemsField:  "value",
		IDField:     "name",
		NameField:   "name",
		RefField:    "id",
		RegionField: "location",
		StatusField: "properties.provisioningState",
		TagMapField: "tags",
	},
	{
		Type:        api.ResourceSubnet,
		Service:     "network",
		Operation:   "ListSubnets",
		ItemsField:  "value",
		IDField:     "name",
		NameField:   "name",
		RefField:    "id",
		StatusField: "properties.provisioningState",
	},
	{
		Type:        api.ResourceComputeInstance,
		Service:     "compute",
		Operation:   "ListVirtualMachines",
		ItemsField:  "value",
		IDField:     "properties.vmId",
		NameField:   "name",
		RefField:    "id",
		ShapeField:  "properties.hardwareProfile.vmSize",
		RegionField: "location",
		StatusField: "properties.provisioningState",
		TagMapField: "tags",
	},
	{
		Type:        api.ResourceDatabase,
		Service:     "sql",
		Operation:   "ListDatabases",
		ItemsField:  "value",
		IDField:     "name",
		NameField:   "name",
		RefField:    "id",
		ShapeField:  "sku.name",
		RegionField: "location",
		StatusField: "properties.status",
		TagMapField: "tags",
	},
	{
		Type:          api.ResourceStorageBucket,
		Service:       "storage",
		Operation:     "ListStorageAccounts",
		ItemsField:    "value",
		IDField:       "name",
		NameField:     "name",
		RefField:      "id",
		ShapeField:    "sku.name",
		RegionField:   "location",
		StatusField:   "properties.provisioningState",
		TagMapField:   "tags",
		EndpointField: "properties.primaryEndpoints.blob",
	},
	{
		Type:        api.ResourceLoadBalancer,
		Service:     "network",
		Operation:   "ListLoadBalancers",
		ItemsField:  "value",
		IDField:     "name",
		NameField:   "name",
		RefField:    "id",
		ShapeField:  "sku.name",
		RegionField: "location",
		TagMapField: "tags",
		IPField:     "properties.frontendIPConfigurations[].properties.publicIPAddress.id",
	},
}

var Rules = []api.RelationshipRule{
	{
		SourceType:    api.ResourceSubnet,
		Field:         "properties.virtualNetwork.id",
		TargetType:    api.ResourceNetwork,
		Relationship:  api.RelRunsIn,
		Bidirectional: true,
	},
	{
		SourceType:   api.ResourceComputeInstance,
		Field:        "properties.networkProfile.networkInterfaces[].properties.subnet.id",
		TargetType:   api.ResourceSubnet,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceLoadBalancer,
		Field:        "properties.backendAddressPools[].properties.backendIPConfigurations[].id",
		TargetType:   api.ResourceComputeInstance,
		Relationship: api.RelRoutesTo,
	},
	{
		SourceType:   api.ResourceDatabase,
		Field:        "properties.elasticPoolId",
		TargetType:   api.ResourceDatabase,
		Relationship: api.RelDependsOn,
	},
}

func NewAdapter(lister discovery.ResourceLister, logger *slog.Logger) *discovery.Scanner {
	return discovery.NewScanner(Provider, "azure-inventory", lister, Mappings, Rules, logger)
}
