// Package rules infers relationship edges from raw record fields. The
// engine is stateless; the active node set used for matching is an explicit
// batch parameter, so independent passes can evaluate concurrently.
package rules

import (
	"strings"

	"resource-graph/internal/batch"
	"resource-graph/internal/fieldpath"
	"resource-graph/internal/identity"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
	grapherrors "resource-graph/pkg/errors"
)

type Engine struct {
	rules []api.RelationshipRule
}

func NewEngine(rules []api.RelationshipRule) *Engine {
	return &Engine{rules: rules}
}

// Apply evaluates every rule whose source type matches node against the
// nodes accumulated so far in b, appending matched edges to b under its
// dedup discipline. A reference matching zero candidates yields no edge
// silently; more than one candidate yields no edge and an in-band
// ambiguity record rather than a guess.
func (e *Engine) Apply(node api.GraphNodeInput, raw map[string]any, b *batch.Batch, via api.DiscoveryMethod) {
	for _, rule := range e.rules {
		if rule.SourceType != node.ResourceType {
			continue
		}

		field := rule.Field
		if rule.IsArray && !strings.HasSuffix(field, "[]") {
			field += "[]"
		}

		for _, value := range fieldpath.ResolveStrings(raw, field) {
			target, matchKind, ok := e.resolveTarget(node, rule, value, b)
			if !ok {
				continue
			}

			edge := api.GraphEdgeInput{
				ID:               identity.BuildEdgeID(node.ID, rule.Relationship, target.ID),
				SourceNodeID:     node.ID,
				TargetNodeID:     target.ID,
				RelationshipType: rule.Relationship,
				Confidence:       confidence.FieldMatch,
				DiscoveredVia:    via,
				Metadata: map[string]any{
					"field": rule.Field,
					"match": matchKind,
				},
			}
			b.AddEdge(edge)

			if rule.Bidirectional {
				if rev, hasRev := rule.Relationship.Reverse(); hasRev {
					b.AddEdge(api.GraphEdgeInput{
						ID:               identity.BuildEdgeID(target.ID, rev, node.ID),
						SourceNodeID:     target.ID,
						TargetNodeID:     node.ID,
						RelationshipType: rev,
						Confidence:       confidence.FieldMatch,
						DiscoveredVia:    via,
						Metadata: map[string]any{
							"field": rule.Field,
							"match": matchKind,
						},
					})
				}
			}
		}
	}
}

// resolveTarget searches the batch for the node a reference points at.
// Match order: exact native-id equality, exact full-reference equality,
// then substring containment either direction (ARNs embed shorter ids).
func (e *Engine) resolveTarget(source api.GraphNodeInput, rule api.RelationshipRule, value string, b *batch.Batch) (api.GraphNodeInput, string, bool) {
	nativeID := identity.ExtractResourceID(value)
	if nativeID == "" {
		return api.GraphNodeInput{}, "", false
	}

	candidates := b.Find(func(n *api.GraphNodeInput) bool {
		return n.ResourceType == rule.TargetType && n.ID != source.ID
	})
	if len(candidates) == 0 {
		return api.GraphNodeInput{}, "", false
	}

	tiers := []struct {
		kind  string
		match func(*api.GraphNodeInput) bool
	}{
		{"exact", func(n *api.GraphNodeInput) bool {
			return n.NativeID == nativeID
		}},
		{"reference", func(n *api.GraphNodeInput) bool {
			if n.NativeID == value {
				return true
			}
			ref, _ := n.Metadata["full_reference"].(string)
			return ref != "" && ref == value
		}},
		{"substring", func(n *api.GraphNodeInput) bool {
			return strings.Contains(n.NativeID, nativeID) || strings.Contains(nativeID, n.NativeID)
		}},
	}

	for _, tier := range tiers {
		var hits []api.GraphNodeInput
		for i := range candidates {
			if tier.match(&candidates[i]) {
				hits = append(hits, candidates[i])
			}
		}
		if len(hits) == 1 {
			return hits[0], tier.kind, true
		}
		if len(hits) > 1 {
			ambiguous := grapherrors.NewAmbiguousReferenceError(value, source.NativeID)
			b.AddError(api.DiscoveryError{
				Code:         ambiguous.Code,
				ResourceType: string(rule.TargetType),
				Message:      ambiguous.Message,
			})
			return api.GraphNodeInput{}, "", false
		}
	}
	return api.GraphNodeInput{}, "", false
}
