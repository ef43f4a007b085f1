// Package api defines the unified resource-relationship graph model shared by
// all discovery sources and the downstream graph store.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceType is the closed set of normalized resource kinds.
type ResourceType string

const (
	ResourceComputeInstance    ResourceType = "compute-instance"
	ResourceServerlessFunction ResourceType = "serverless-function"
	ResourceStorageBucket      ResourceType = "storage-bucket"
	ResourceBlockVolume        ResourceType = "block-volume"
	ResourceDatabase           ResourceType = "database"
	ResourceCache              ResourceType = "cache"
	ResourceQueue              ResourceType = "queue"
	ResourceTopic              ResourceType = "topic"
	ResourceNetwork            ResourceType = "network"
	ResourceSubnet             ResourceType = "subnet"
	ResourceSecurityGroup      ResourceType = "security-group"
	ResourceLoadBalancer       ResourceType = "load-balancer"
	ResourceDNSRecord          ResourceType = "dns-record"
	ResourceAPIGateway         ResourceType = "api-gateway"
	ResourceIAMRole            ResourceType = "iam-role"
	ResourceContainerCluster   ResourceType = "container-cluster"
	ResourceContainerWorkload  ResourceType = "container-workload"
	ResourceContainerService   ResourceType = "container-service"
	ResourceNamespace          ResourceType = "namespace"
	ResourceUnknown            ResourceType = "unknown"
)

// RelationshipType is the closed set of directed edge kinds.
type RelationshipType string

const (
	RelRunsIn       RelationshipType = "runs-in"
	RelContains     RelationshipType = "contains"
	RelSecures      RelationshipType = "secures"
	RelSecuredBy    RelationshipType = "secured-by"
	RelTriggers     RelationshipType = "triggers"
	RelTriggeredBy  RelationshipType = "triggered-by"
	RelDependsOn    RelationshipType = "depends-on"
	RelPublishesTo  RelationshipType = "publishes-to"
	RelSubscribesTo RelationshipType = "subscribes-to"
	RelUses         RelationshipType = "uses"
	RelUsedBy       RelationshipType = "used-by"
	RelRoutesTo     RelationshipType = "routes-to"
	RelReceivesFrom RelationshipType = "receives-from"
	RelResolvesTo   RelationshipType = "resolves-to"
	RelPeersWith    RelationshipType = "peers-with"
)

// reverseRelationship maps each relationship to its mirror direction.
// Relationships absent from the table have no well-defined reverse and
// bidirectional rules using them only emit the forward edge.
var reverseRelationship = map[RelationshipType]RelationshipType{
	RelRunsIn:       RelContains,
	RelContains:     RelRunsIn,
	RelSecures:      RelSecuredBy,
	RelSecuredBy:    RelSecures,
	RelTriggers:     RelTriggeredBy,
	RelTriggeredBy:  RelTriggers,
	RelPublishesTo:  RelSubscribesTo,
	RelSubscribesTo: RelPublishesTo,
	RelUses:         RelUsedBy,
	RelUsedBy:       RelUses,
	RelRoutesTo:     RelReceivesFrom,
	RelReceivesFrom: RelRoutesTo,
	RelPeersWith:    RelPeersWith,
}

// Reverse returns the mirror relationship and whether one exists.
func (r RelationshipType) Reverse() (RelationshipType, bool) {
	rev, ok := reverseRelationship[r]
	return rev, ok
}

// DiscoveryMethod records how an edge was inferred.
type DiscoveryMethod string

const (
	ViaAPIField        DiscoveryMethod = "api-field"
	ViaEventStream     DiscoveryMethod = "event-stream"
	ViaRuntimeTrace    DiscoveryMethod = "runtime-trace"
	ViaConfigReference DiscoveryMethod = "config-reference"
	ViaTagMatch        DiscoveryMethod = "tag-match"
)

// GraphNodeInput represents a discovered infrastructure resource, normalized
// for upsert into the downstream graph store. ID is a deterministic function
// of (provider, account, region, resourceType, nativeId) so that repeat
// sightings of the same resource reconcile instead of duplicating.
type GraphNodeInput struct {
	ID           string            `json:"id"`
	Provider     string            `json:"provider"`
	ResourceType ResourceType      `json:"resource_type"`
	NativeID     string            `json:"native_id"`
	Name         string            `json:"name"`
	Region       string            `json:"region"`
	Account      string            `json:"account"`
	Status       string            `json:"status"`
	Tags         map[string]string `json:"tags"`
	Metadata     map[string]any    `json:"metadata"`
	CostMonthly  *decimal.Decimal  `json:"cost_monthly,omitempty"`
	Owner        *string           `json:"owner,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
}

// IsPlaceholder reports whether this node was synthesized to satisfy a
// reference whose target was not observed in the current batch.
func (n *GraphNodeInput) IsPlaceholder() bool {
	if n.Metadata == nil {
		return false
	}
	v, ok := n.Metadata["placeholder"].(bool)
	return ok && v
}

// GraphEdgeInput represents a directed, typed relationship between two nodes.
// ID is deterministic from (sourceNodeId, relationshipType, targetNodeId).
type GraphEdgeInput struct {
	ID               string           `json:"id"`
	SourceNodeID     string           `json:"source_node_id"`
	TargetNodeID     string           `json:"target_node_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       float64          `json:"confidence"`
	DiscoveredVia    DiscoveryMethod  `json:"discovered_via"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// RelationshipRule declares how a field of a raw record implies an edge.
// Rules are plain data so new source kinds stay additive.
type RelationshipRule struct {
	SourceType    ResourceType     `json:"source_type"`
	Field         string           `json:"field"`
	TargetType    ResourceType     `json:"target_type"`
	Relationship  RelationshipType `json:"relationship"`
	IsArray       bool             `json:"is_array"`
	Bidirectional bool             `json:"bidirectional"`
}
