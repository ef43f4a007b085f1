// Package discovery defines the shared adapter contract and the generic
// scan loop every cloud source kind instantiates. Service mappings and
// relationship rule tables are plain data, so adding a source kind is
// additive: a new package supplies tables and a lister, nothing here
// changes.
package discovery

import (
	"context"

	"resource-graph/pkg/api"
)

// Adapter is the single contract every source kind implements.
type Adapter interface {
	Provider() string
	Discover(ctx context.Context, opts api.DiscoveryOptions) (*api.DiscoveryResult, error)
	HealthCheck(ctx context.Context) bool
	SupportedResourceTypes() []api.ResourceType
	SupportsIncrementalSync() bool
}

// TypeDescriptor tells a lister which collection to enumerate.
type TypeDescriptor struct {
	Resource  api.ResourceType
	Service   string
	Operation string
	Region    string
}

// Page is one page of raw provider records. NextToken is opaque; an empty
// token signals completion.
type Page struct {
	Body      map[string]any
	NextToken string
}

// ResourceLister is the external collaborator that fetches raw records.
// Credential handling and client pooling live behind it.
type ResourceLister interface {
	List(ctx context.Context, desc TypeDescriptor, pageToken string) (*Page, error)
}

// Pinger is optionally implemented by listers that can cheaply verify the
// source is reachable at all.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceMapping declares, per supported resource type, which listing
// operation to invoke and which response fields carry the collection and
// the per-record identity fields. Paths use fieldpath grammar.
type ServiceMapping struct {
	Type          api.ResourceType
	Service       string
	Operation     string
	ItemsField    string // response field holding the collection
	IDField       string // native id
	NameField     string // name attribute
	NameTag       string // human-name tag pair, preferred over NameField
	RefField      string // full reference (ARN / self link / uid)
	ShapeField    string // size/class/engine, keys the cost tables
	StatusField   string
	RegionField   string
	CreatedField  string
	TagPairsField string // {Key,Value}-encoded tag array
	TagMapField   string // plain string-map tags
	EndpointField string // derived attributes surfaced for cross-source
	DNSField      string // correlation
	IPField       string
}
