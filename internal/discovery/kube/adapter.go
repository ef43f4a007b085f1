// Package kube instantiates the discovery adapter for container
// orchestration clusters. Records follow the usual object shape
// (metadata/spec/status); the lister collaborator owns API server access.
package kube

import (
	"log/slog"

	"resource-graph/internal/discovery"
	"resource-graph/pkg/api"
)

const Provider = "kubernetes"

var Mappings = []discovery.ServiceMapping{
	{
		Type:         api.ResourceNamespace,
		Service:      "core",
		Operation:    "ListNamespaces",
		ItemsField:   "items",
		IDField:      "metadata.name",
		NameField:    "metadata.name",
		RefField:     "metadata.uid",
		StatusField:  "status.phase",
		TagMapField:  "metadata.labels",
		CreatedField: "metadata.creationTimestamp",
	},
	{
		Type:         api.ResourceContainerWorkload,
		Service:      "apps",
		Operation:    "ListDeployments",
		ItemsField:   "items",
		IDField:      "metadata.name",
		NameField:    "metadata.name",
		RefField:     "metadata.uid",
		ShapeField:   "spec.template.spec.containers[].resources.requests.cpu",
		TagMapField:  "metadata.labels",
		CreatedField: "metadata.creationTimestamp",
	},
	{
		Type:         api.ResourceContainerService,
		Service:      "core",
		Operation:    "ListServices",
		ItemsField:   "items",
		IDField:      "metadata.name",
		NameField:    "metadata.name",
		RefField:     "metadata.uid",
		StatusField:  "spec.type",
		TagMapField:  "metadata.labels",
		CreatedField: "metadata.creationTimestamp",
		DNSField:     "status.loadBalancer.ingress[].hostname",
		IPField:      "status.loadBalancer.ingress[].ip",
	},
}

// Rules wire workloads and services into namespaces by name, and
// services onto the workloads their app selector names.
var Rules = []api.RelationshipRule{
	{
		SourceType:    api.ResourceContainerWorkload,
		Field:         "metadata.namespace",
		TargetType:    api.ResourceNamespace,
		Relationship:  api.RelRunsIn,
		Bidirectional: true,
	},
	{
		SourceType:   api.ResourceContainerService,
		Field:        "metadata.namespace",
		TargetType:   api.ResourceNamespace,
		Relationship: api.RelRunsIn,
	},
	{
		SourceType:   api.ResourceContainerService,
		Field:        "spec.selector.app",
		TargetType:   api.ResourceContainerWorkload,
		Relationship: api.RelRoutesTo,
	},
}

func NewAdapter(lister discovery.ResourceLister, logger *slog.Logger) *discovery.Scanner {
	return discovery.NewScanner(Provider, "kube-inventory", lister, Mappings, Rules, logger)
}
