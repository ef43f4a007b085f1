package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"resource-graph/internal/batch"
	"resource-graph/internal/cost"
	"resource-graph/internal/fieldpath"
	"resource-graph/internal/identity"
	"resource-graph/internal/rules"
	"resource-graph/pkg/api"
	grapherrors "resource-graph/pkg/errors"
)

const defaultConcurrency = 4

// Scanner is the generic discovery loop: fan out one bounded-concurrency
// fetch per (region, resource type), map raw records to nodes, then run the
// relationship rule engine once the full node set for the pass is known.
type Scanner struct {
	provider string
	source   string
	lister   ResourceLister
	mappings []ServiceMapping
	engine   *rules.Engine
	costs    *cost.Table
	logger   *slog.Logger
}

func NewScanner(provider, source string, lister ResourceLister, mappings []ServiceMapping, ruleTable []api.RelationshipRule, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		provider: provider,
		source:   source,
		lister:   lister,
		mappings: mappings,
		engine:   rules.NewEngine(ruleTable),
		costs:    cost.Default(),
		logger:   logger,
	}
}

func (s *Scanner) Provider() string { return s.provider }

func (s *Scanner) SupportsIncrementalSync() bool { return true }

func (s *Scanner) SupportedResourceTypes() []api.ResourceType {
	types := make([]api.ResourceType, 0, len(s.mappings))
	for _, m := range s.mappings {
		types = append(types, m.Type)
	}
	return types
}

// HealthCheck reports whether the backing source is reachable. Listers
// without a Ping are assumed healthy; per-type failures are handled
// in-band during the pass anyway.
func (s *Scanner) HealthCheck(ctx context.Context) bool {
	return s.healthErr(ctx) == nil
}

func (s *Scanner) healthErr(ctx context.Context) error {
	if p, ok := s.lister.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

type rawNode struct {
	node api.GraphNodeInput
	raw  map[string]any
}

// Discover runs one pass. Per-resource-type failures are recorded as
// DiscoveryErrors and never abort the pass; only an unreachable source
// yields an empty result with errors populated.
func (s *Scanner) Discover(ctx context.Context, opts api.DiscoveryOptions) (*api.DiscoveryResult, error) {
	start := time.Now()
	b := batch.New()

	if err := s.healthErr(ctx); err != nil {
		fatal := grapherrors.NewCollaboratorUnavailableError(s.source, err)
		return &api.DiscoveryResult{
			Source:     s.source,
			Provider:   s.provider,
			Nodes:      []api.GraphNodeInput{},
			Edges:      []api.GraphEdgeInput{},
			Errors:     []api.DiscoveryError{{Code: fatal.Code, Message: fatal.Message}},
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	regions := opts.Regions
	if len(regions) == 0 {
		regions = []string{""}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var mu sync.Mutex
	collected := make([]rawNode, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, region := range regions {
		for _, mapping := range s.mappings {
			region, mapping := region, mapping
			g.Go(func() error {
				nodes := s.fetchType(gctx, region, mapping, opts, b)
				mu.Lock()
				collected = append(collected, nodes...)
				mu.Unlock()
				// Failures are already recorded in-band; never fail the group.
				return nil
			})
		}
	}
	_ = g.Wait() // fetch goroutines only ever return nil

	// Relationship inference runs against the complete node set, not
	// streamed, so late-listed targets still match.
	for _, rn := range collected {
		s.engine.Apply(rn.node, rn.raw, b, api.ViaAPIField)
	}

	return &api.DiscoveryResult{
		Source:     s.source,
		Provider:   s.provider,
		Nodes:      b.Nodes(),
		Edges:      b.Edges(),
		Errors:     b.Errors(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// fetchType pages through one resource-type collection, mapping each raw
// record into the batch. Returns the mapped records for later rule
// evaluation.
func (s *Scanner) fetchType(ctx context.Context, region string, mapping ServiceMapping, opts api.DiscoveryOptions, b *batch.Batch) []rawNode {
	desc := TypeDescriptor{
		Resource:  mapping.Type,
		Service:   mapping.Service,
		Operation: mapping.Operation,
		Region:    region,
	}

	var out []rawNode
	token := ""
	for {
		if ctx.Err() != nil {
			return out
		}

		page, err := s.lister.List(ctx, desc, token)
		if err != nil {
			collabErr := grapherrors.NewCollaboratorUnavailableError(mapping.Service, err)
			b.AddError(api.DiscoveryError{
				Code:         collabErr.Code,
				ResourceType: string(mapping.Type),
				Message:      collabErr.Message,
			})
			s.logger.Warn("resource type fetch failed",
				"provider", s.provider, "type", mapping.Type, "region", region, "error", err)
			return out
		}

		for _, item := range fieldpath.Resolve(page.Body, mapping.ItemsField) {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			node, ok := s.mapRecord(record, mapping, region, opts)
			if !ok {
				s.logger.Warn("skipping malformed record",
					"provider", s.provider, "type", mapping.Type, "region", region)
				continue
			}
			if b.AddNode(node) {
				out = append(out, rawNode{node: node, raw: record})
			}
		}

		if page.NextToken == "" {
			return out
		}
		token = page.NextToken
	}
}

// mapRecord converts one raw provider record to a GraphNodeInput. A record
// without an extractable id is rejected.
func (s *Scanner) mapRecord(record map[string]any, mapping ServiceMapping, region string, opts api.DiscoveryOptions) (api.GraphNodeInput, bool) {
	nativeID := firstString(record, mapping.IDField)
	if nativeID == "" {
		return api.GraphNodeInput{}, false
	}
	nativeID = identity.ExtractResourceID(nativeID)

	nodeRegion := firstString(record, mapping.RegionField)
	if nodeRegion == "" {
		nodeRegion = region
	}

	node := api.GraphNodeInput{
		ID:           identity.BuildNodeID(s.provider, opts.AccountScope, nodeRegion, mapping.Type, nativeID),
		Provider:     s.provider,
		ResourceType: mapping.Type,
		NativeID:     nativeID,
		Region:       nodeRegion,
		Account:      opts.AccountScope,
		Status:       firstString(record, mapping.StatusField),
		Tags:         extractTags(record, mapping),
		Metadata:     map[string]any{},
	}

	// Prefer a human-name tag, then the name attribute, then the id.
	node.Name = firstString(record, mapping.NameTag)
	if node.Name == "" {
		node.Name = firstString(record, mapping.NameField)
	}
	if node.Name == "" {
		node.Name = nativeID
	}

	if ref := firstString(record, mapping.RefField); ref != "" {
		node.Metadata["full_reference"] = ref
	}
	if endpoint := firstString(record, mapping.EndpointField); endpoint != "" {
		node.Metadata["endpoint"] = endpoint
	}
	if dns := firstString(record, mapping.DNSField); dns != "" {
		node.Metadata["dns_name"] = dns
	}
	if ip := firstString(record, mapping.IPField); ip != "" {
		node.Metadata["public_ip"] = ip
	}

	if created := firstString(record, mapping.CreatedField); created != "" {
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			node.CreatedAt = &ts
		}
	}

	shape := firstString(record, mapping.ShapeField)
	node.CostMonthly = s.costs.MonthlyEstimate(s.provider, mapping.Type, shape)

	return node, true
}

func firstString(record map[string]any, path string) string {
	if path == "" {
		return ""
	}
	values := fieldpath.ResolveStrings(record, path)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func extractTags(record map[string]any, mapping ServiceMapping) map[string]string {
	tags := map[string]string{}

	if mapping.TagPairsField != "" {
		for _, v := range fieldpath.Resolve(record, mapping.TagPairsField) {
			arr, ok := v.([]any)
			if !ok {
				// A single pair object rather than an array.
				arr = []any{v}
			}
			for _, item := range arr {
				pair, ok := item.(map[string]any)
				if !ok {
					continue
				}
				key, kok := tagPairString(pair, "Key", "key", "TagKey")
				val, vok := tagPairString(pair, "Value", "value", "TagValue")
				if kok && vok {
					tags[key] = val
				}
			}
		}
	}

	if mapping.TagMapField != "" {
		for _, v := range fieldpath.Resolve(record, mapping.TagMapField) {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for key, val := range m {
				if s, ok := val.(string); ok {
					tags[key] = s
				}
			}
		}
	}

	return tags
}

func tagPairString(pair map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := pair[k].(string); ok {
			return v, true
		}
	}
	return "", false
}
