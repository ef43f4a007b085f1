// Package enrich layers supplementary facts onto an already-discovered
// graph: tags, ownership, event wiring, runtime routing, service detail
// flags and compliance results. Every pass is best-effort; collaborators
// having no data for a resource is a normal outcome.
package enrich

import (
	"context"
	"log/slog"

	"resource-graph/internal/batch"
	"resource-graph/pkg/api"
	grapherrors "resource-graph/pkg/errors"
)

const defaultConcurrency = 8

// TagService answers tag lookups by native id.
type TagService interface {
	Tags(ctx context.Context, nativeID string) (map[string]string, error)
}

// EventBinding is one messaging hookup between two resources, referenced
// by native id, ARN or name.
type EventBinding struct {
	SourceRef string
	TargetRef string
	Kind      api.RelationshipType // triggers or publishes-to
}

// EventSource enumerates messaging configuration.
type EventSource interface {
	Bindings(ctx context.Context) ([]EventBinding, error)
}

// Route is one observed caller -> callee hop from a runtime service map.
type Route struct {
	CallerRef string
	CalleeRef string
}

// Alarm is a monitoring alarm bound to some resource.
type Alarm struct {
	Name      string
	Metric    string
	TargetRef string
}

// ObservabilityService exposes the runtime service map and alarm inventory.
type ObservabilityService interface {
	Routes(ctx context.Context) ([]Route, error)
	Alarms(ctx context.Context) ([]Alarm, error)
}

// DNSRecord maps a published name to whatever it points at.
type DNSRecord struct {
	Name   string
	Target string
}

// DetailService answers deep per-resource configuration lookups and the
// DNS/API-gateway record inventory.
type DetailService interface {
	Details(ctx context.Context, nativeID string) (map[string]any, error)
	DNSRecords(ctx context.Context) ([]DNSRecord, error)
}

// Violation is one failed rule evaluation for a resource.
type Violation struct {
	Rule     string
	Severity string
}

// ComplianceService answers rule-evaluation lookups by native id.
type ComplianceService interface {
	Evaluations(ctx context.Context, nativeID string) ([]Violation, error)
}

// Pass is one independent enrichment stage. Passes are order-insensitive;
// a returned error means the pass's collaborator was unavailable, not that
// any particular resource failed.
type Pass interface {
	Name() string
	Run(ctx context.Context, b *batch.Batch) error
}

// Pipeline runs its passes in sequence. A failing pass is recorded in-band
// on the batch and never prevents later passes from running.
type Pipeline struct {
	passes []Pass
	logger *slog.Logger
}

func NewPipeline(logger *slog.Logger, passes ...Pass) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{passes: passes, logger: logger}
}

// Apply runs the pipeline over an assembled discovery result, rewriting
// its nodes, edges and errors in place.
func (p *Pipeline) Apply(ctx context.Context, result *api.DiscoveryResult) {
	b := batch.New()
	for _, n := range result.Nodes {
		b.AddNode(n)
	}
	for _, e := range result.Edges {
		b.AddEdge(e)
	}
	for _, de := range result.Errors {
		b.AddError(de)
	}
	p.Enrich(ctx, b)
	result.Nodes = b.Nodes()
	result.Edges = b.Edges()
	result.Errors = b.Errors()
}

// Enrich applies every pass to the batch.
func (p *Pipeline) Enrich(ctx context.Context, b *batch.Batch) {
	for _, pass := range p.passes {
		if ctx.Err() != nil {
			return
		}
		if err := pass.Run(ctx, b); err != nil {
			collabErr := grapherrors.NewCollaboratorUnavailableError(pass.Name(), err)
			b.AddError(api.DiscoveryError{
				Code:    collabErr.Code,
				Message: collabErr.Message,
			})
			p.logger.Warn("enrichment pass degraded",
				"pass", pass.Name(), "error", err)
		}
	}
}
