package enrich

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"resource-graph/internal/batch"
	"resource-graph/internal/identity"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
)

// ownerTagKeys is the conventional tag vocabulary for ownership, most
// specific first.
var ownerTagKeys = []string{"Owner", "owner", "Team", "team", "CreatedBy", "created_by", "Contact"}

// findByReference resolves a free-form reference against the batch with
// the usual discipline: exact native id, then full reference, then
// substring either direction. Anything other than exactly one hit fails.
func findByReference(b *batch.Batch, ref string) (api.GraphNodeInput, bool) {
	if ref == "" {
		return api.GraphNodeInput{}, false
	}
	nativeID := identity.ExtractResourceID(ref)

	hits := b.Find(func(n *api.GraphNodeInput) bool {
		return n.NativeID == nativeID || n.NativeID == ref
	})
	if len(hits) == 0 {
		hits = b.Find(func(n *api.GraphNodeInput) bool {
			full, _ := n.Metadata["full_reference"].(string)
			return full != "" && full == ref
		})
	}
	if len(hits) == 0 {
		hits = b.Find(func(n *api.GraphNodeInput) bool {
			return strings.Contains(n.NativeID, nativeID) || strings.Contains(nativeID, n.NativeID)
		})
	}
	if len(hits) != 1 {
		return api.GraphNodeInput{}, false
	}
	return hits[0], true
}

// forEachNode visits every node currently in the batch with bounded
// concurrency. Visit errors are per-resource and never abort the walk.
func forEachNode(ctx context.Context, b *batch.Batch, limit int, visit func(ctx context.Context, n api.GraphNodeInput)) {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, n := range b.Nodes() {
		n := n
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			visit(gctx, n)
			return nil
		})
	}
	_ = g.Wait() // visit goroutines only ever return nil
}

// TagBackfill fills missing tags from the tagging service and derives the
// owner from conventional tag keys. Existing tag values always win.
type TagBackfill struct {
	Service TagService
	Limit   int
	Logger  *slog.Logger
}

func (p *TagBackfill) Name() string { return "tag-backfill" }

func (p *TagBackfill) Run(ctx context.Context, b *batch.Batch) error {
	forEachNode(ctx, b, p.Limit, func(ctx context.Context, n api.GraphNodeInput) {
		fetched, err := p.Service.Tags(ctx, n.NativeID)
		if err != nil {
			p.log().Debug("tag lookup failed", "native_id", n.NativeID, "error", err)
			return
		}
		b.MutateNode(n.ID, func(node *api.GraphNodeInput) {
			if node.Tags == nil {
				node.Tags = map[string]string{}
			}
			for k, v := range fetched {
				if _, present := node.Tags[k]; !present {
					node.Tags[k] = v
				}
			}
			if node.Owner == nil {
				for _, key := range ownerTagKeys {
					if v := node.Tags[key]; v != "" {
						owner := v
						node.Owner = &owner
						break
					}
				}
			}
		})
	})
	return nil
}

func (p *TagBackfill) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// EventWiring adds triggers/publishes-to edges from messaging
// configuration. Bindings whose ends cannot be pinned to exactly one node
// are skipped.
type EventWiring struct {
	Source EventSource
}

func (p *EventWiring) Name() string { return "event-wiring" }

func (p *EventWiring) Run(ctx context.Context, b *batch.Batch) error {
	bindings, err := p.Source.Bindings(ctx)
	if err != nil {
		return err
	}
	for _, binding := range bindings {
		src, ok := findByReference(b, binding.SourceRef)
		if !ok {
			continue
		}
		tgt, ok := findByReference(b, binding.TargetRef)
		if !ok || tgt.ID == src.ID {
			continue
		}
		kind := binding.Kind
		if kind != api.RelTriggers && kind != api.RelPublishesTo {
			kind = api.RelTriggers
		}
		b.AddEdge(api.GraphEdgeInput{
			ID:               identity.BuildEdgeID(src.ID, kind, tgt.ID),
			SourceNodeID:     src.ID,
			TargetNodeID:     tgt.ID,
			RelationshipType: kind,
			Confidence:       confidence.FieldMatch,
			DiscoveredVia:    api.ViaEventStream,
		})
	}
	return nil
}

// ObservabilityOverlay adds routes-to edges from the runtime service map
// and attaches alarm metadata by best-effort reference matching.
type ObservabilityOverlay struct {
	Service ObservabilityService
}

func (p *ObservabilityOverlay) Name() string { return "observability-overlay" }

func (p *ObservabilityOverlay) Run(ctx context.Context, b *batch.Batch) error {
	routes, err := p.Service.Routes(ctx)
	if err != nil {
		return err
	}
	for _, route := range routes {
		caller, ok := findByReference(b, route.CallerRef)
		if !ok {
			continue
		}
		callee, ok := findByReference(b, route.CalleeRef)
		if !ok || callee.ID == caller.ID {
			continue
		}
		b.AddEdge(api.GraphEdgeInput{
			ID:               identity.BuildEdgeID(caller.ID, api.RelRoutesTo, callee.ID),
			SourceNodeID:     caller.ID,
			TargetNodeID:     callee.ID,
			RelationshipType: api.RelRoutesTo,
			Confidence:       confidence.FieldMatch,
			DiscoveredVia:    api.ViaRuntimeTrace,
		})
	}

	alarms, err := p.Service.Alarms(ctx)
	if err != nil {
		return err
	}
	for _, alarm := range alarms {
		target, ok := findByReference(b, alarm.TargetRef)
		if !ok {
			continue
		}
		b.MutateNode(target.ID, func(node *api.GraphNodeInput) {
			if node.Metadata == nil {
				node.Metadata = map[string]any{}
			}
			names, _ := node.Metadata["alarms"].([]string)
			node.Metadata["alarms"] = append(names, alarm.Name)
		})
	}
	return nil
}

// ServiceDetail merges deep per-resource configuration (encryption,
// versioning and similar flags) into node metadata and wires resolves-to
// edges from published DNS/API records. Fetched values never overwrite
// what discovery already observed.
type ServiceDetail struct {
	Service DetailService
	Limit   int
	Logger  *slog.Logger
}

func (p *ServiceDetail) Name() string { return "service-detail" }

func (p *ServiceDetail) Run(ctx context.Context, b *batch.Batch) error {
	forEachNode(ctx, b, p.Limit, func(ctx context.Context, n api.GraphNodeInput) {
		details, err := p.Service.Details(ctx, n.NativeID)
		if err != nil {
			p.log().Debug("detail lookup failed", "native_id", n.NativeID, "error", err)
			return
		}
		if len(details) == 0 {
			return
		}
		b.MutateNode(n.ID, func(node *api.GraphNodeInput) {
			if node.Metadata == nil {
				node.Metadata = map[string]any{}
			}
			for k, v := range details {
				if _, present := node.Metadata[k]; !present {
					node.Metadata[k] = v
				}
			}
		})
	})

	records, err := p.Service.DNSRecords(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		owners := b.Find(func(n *api.GraphNodeInput) bool {
			dns, _ := n.Metadata["dns_name"].(string)
			return dns != "" && dns == record.Name
		})
		if len(owners) != 1 {
			continue
		}
		target, ok := findByReference(b, record.Target)
		if !ok || target.ID == owners[0].ID {
			continue
		}
		b.AddEdge(api.GraphEdgeInput{
			ID:               identity.BuildEdgeID(owners[0].ID, api.RelResolvesTo, target.ID),
			SourceNodeID:     owners[0].ID,
			TargetNodeID:     target.ID,
			RelationshipType: api.RelResolvesTo,
			Confidence:       confidence.DNSMatch,
			DiscoveredVia:    api.ViaAPIField,
			Metadata:         map[string]any{"record": record.Name},
		})
	}
	return nil
}

func (p *ServiceDetail) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ComplianceOverlay attaches rule-evaluation results. Violation counts
// accumulate across runs rather than overwriting.
type ComplianceOverlay struct {
	Service ComplianceService
	Limit   int
	Logger  *slog.Logger
}

func (p *ComplianceOverlay) Name() string { return "compliance-overlay" }

func (p *ComplianceOverlay) Run(ctx context.Context, b *batch.Batch) error {
	forEachNode(ctx, b, p.Limit, func(ctx context.Context, n api.GraphNodeInput) {
		violations, err := p.Service.Evaluations(ctx, n.NativeID)
		if err != nil {
			p.log().Debug("compliance lookup failed", "native_id", n.NativeID, "error", err)
			return
		}
		if len(violations) == 0 {
			return
		}
		rules := make([]string, 0, len(violations))
		for _, v := range violations {
			rules = append(rules, v.Rule)
		}
		b.MutateNode(n.ID, func(node *api.GraphNodeInput) {
			if node.Metadata == nil {
				node.Metadata = map[string]any{}
			}
			node.Metadata["violation_count"] = asInt(node.Metadata["violation_count"]) + len(violations)
			existing, _ := node.Metadata["violations"].([]string)
			node.Metadata["violations"] = append(existing, rules...)
		})
	})
	return nil
}

func (p *ComplianceOverlay) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// asInt tolerates counts that round-tripped through JSON as float64.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
