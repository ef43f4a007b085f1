package state

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"resource-graph/internal/batch"
	"resource-graph/internal/cost"
	"resource-graph/internal/fieldpath"
	"resource-graph/internal/identity"
	"resource-graph/internal/rules"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
	grapherrors "resource-graph/pkg/errors"
)

const sourceTag = "iac-state"

// Parser turns one state document into a self-consistent node/edge batch.
type Parser struct {
	typeMap map[string]TypeMapping
	engine  *rules.Engine
	costs   *cost.Table
	logger  *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		typeMap: DefaultTypeMap,
		engine:  rules.NewEngine(AttributeRules),
		costs:   cost.Default(),
		logger:  logger,
	}
}

// parsedResource carries a mapped node together with its raw attributes and
// declarative addressing, for the two relationship passes.
type parsedResource struct {
	node    api.GraphNodeInput
	attrs   map[string]any
	address string
	deps    []string
}

// ParseFile parses a state document from disk.
func (p *Parser) ParseFile(path string, opts api.DiscoveryOptions) (*api.DiscoveryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, grapherrors.NewFatalParseFailure("failed to open state document", err)
	}
	defer f.Close()
	return p.Parse(f, opts)
}

// Parse parses a state document from a reader. A document that fails basic
// shape validation yields an error and zero nodes, never a partial graph.
func (p *Parser) Parse(r io.Reader, opts api.DiscoveryOptions) (*api.DiscoveryResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, grapherrors.NewFatalParseFailure("failed to read state document", err)
	}
	return p.ParseBytes(data, opts)
}

// ParseBytes parses a state document from bytes.
func (p *Parser) ParseBytes(data []byte, opts api.DiscoveryOptions) (*api.DiscoveryResult, error) {
	start := time.Now()

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, grapherrors.NewFatalParseFailure("failed to decode state document", err)
	}
	if doc.Version == 0 && doc.Resources == nil {
		return nil, grapherrors.NewFatalParseFailure("document has neither a version nor a resources array", nil)
	}

	b := batch.New()

	// Pass 0: nodes from managed instances. Data-mode entries are skipped
	// here; the remote-state kind is handled separately below.
	parsed := make([]parsedResource, 0, len(doc.Resources))
	addressIndex := make(map[string]string) // declarative address -> node id
	for _, res := range doc.Resources {
		if res.Mode != modeManaged {
			continue
		}
		mapping := p.mapType(res.Type, res.Provider)
		for _, inst := range res.Instances {
			pr, ok := p.buildNode(res, inst, mapping, opts)
			if !ok {
				p.logger.Warn("skipping instance without extractable id",
					"address", res.Address())
				continue
			}
			if b.AddNode(pr.node) {
				parsed = append(parsed, pr)
				addressIndex[pr.address] = pr.node.ID
				// Also index without an index suffix or module prefix for
				// loose dependency addressing.
				if short := shortAddress(pr.address); short != pr.address {
					addressIndex[short] = pr.node.ID
				}
			}
		}
	}

	// Pass A: attribute-level rules, same mechanism as live discovery.
	for _, pr := range parsed {
		p.engine.Apply(pr.node, pr.attrs, b, api.ViaConfigReference)
	}

	// Pass B: explicit declared dependency lists. The batch keeps the first
	// edge for a repeated (source, target, relationship) triple; a pair
	// already related under a different relationship keeps both edges.
	for _, pr := range parsed {
		for _, depAddr := range pr.deps {
			targetID, ok := lookupAddress(addressIndex, depAddr)
			if !ok || targetID == pr.node.ID {
				continue
			}
			b.AddEdge(api.GraphEdgeInput{
				ID:               identity.BuildEdgeID(pr.node.ID, api.RelDependsOn, targetID),
				SourceNodeID:     pr.node.ID,
				TargetNodeID:     targetID,
				RelationshipType: api.RelDependsOn,
				Confidence:       confidence.Exact,
				DiscoveredVia:    api.ViaConfigReference,
				Metadata:         map[string]any{"declared": depAddr},
			})
		}
	}

	// Cross-document stitching via captured remote-state outputs.
	for _, res := range doc.Resources {
		if res.Mode == modeData && res.Type == remoteStateType {
			p.stitchRemoteState(res, parsed, b, opts)
		}
	}

	return &api.DiscoveryResult{
		Source:     sourceTag,
		Provider:   sourceTag,
		Nodes:      b.Nodes(),
		Edges:      b.Edges(),
		Errors:     b.Errors(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// mapType resolves a declared type string. Unknown types still map, to the
// fallback resource type; they must never be silently dropped.
func (p *Parser) mapType(declared, providerAddr string) TypeMapping {
	if m, ok := p.typeMap[declared]; ok {
		return m
	}
	return TypeMapping{
		Resource: api.ResourceUnknown,
		Provider: providerFromAddress(providerAddr, declared),
	}
}

func (p *Parser) buildNode(res ResourceState, inst ResourceInstance, mapping TypeMapping, opts api.DiscoveryOptions) (parsedResource, bool) {
	attrs := inst.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	nativeID := stringAttr(attrs, "id")
	if nativeID == "" {
		nativeID = stringAttr(attrs, "arn")
	}
	if nativeID == "" {
		return parsedResource{}, false
	}
	nativeID = identity.ExtractResourceID(nativeID)

	region := p.resolveRegion(attrs, mapping.Provider)
	account := opts.AccountScope
	if account == "" {
		account = accountFromARN(stringAttr(attrs, "arn"))
	}

	node := api.GraphNodeInput{
		ID:           identity.BuildNodeID(mapping.Provider, account, region, mapping.Resource, nativeID),
		Provider:     mapping.Provider,
		ResourceType: mapping.Resource,
		NativeID:     nativeID,
		Region:       region,
		Account:      account,
		Tags:         tagMap(attrs),
		Metadata: map[string]any{
			"address":       res.Address(),
			"declared_type": res.Type,
		},
	}

	// Name precedence: Name tag, then the type-conventional attribute,
	// then the native id itself.
	node.Name = node.Tags["Name"]
	if node.Name == "" && mapping.NameAttr != "" {
		node.Name = stringAttr(attrs, mapping.NameAttr)
	}
	if node.Name == "" {
		for _, attr := range []string{"name", "bucket", "function_name", "identifier"} {
			if node.Name = stringAttr(attrs, attr); node.Name != "" {
				break
			}
		}
	}
	if node.Name == "" {
		node.Name = nativeID
	}

	if arn := stringAttr(attrs, "arn"); arn != "" {
		node.Metadata["full_reference"] = arn
	}
	if endpoint := stringAttr(attrs, "endpoint"); endpoint != "" {
		node.Metadata["endpoint"] = endpoint
	}

	shape := ""
	if mapping.ShapeAttr != "" {
		shape = stringAttr(attrs, mapping.ShapeAttr)
	}
	node.CostMonthly = p.costs.MonthlyEstimate(mapping.Provider, mapping.Resource, shape)

	deps := make([]string, 0, len(inst.Dependencies)+len(res.DependsOn))
	deps = append(deps, inst.Dependencies...)
	deps = append(deps, res.DependsOn...)

	return parsedResource{
		node:    node,
		attrs:   attrs,
		address: res.Address(),
		deps:    deps,
	}, true
}

// resolveRegion determines a resource's region from its attributes, falling
// back to the provider's conventional default.
func (p *Parser) resolveRegion(attrs map[string]any, provider string) string {
	if region := stringAttr(attrs, "region"); region != "" {
		return region
	}
	if az := stringAttr(attrs, "availability_zone"); len(az) > 1 {
		// Strip the trailing zone letter (us-east-1a -> us-east-1).
		return az[:len(az)-1]
	}
	if location := stringAttr(attrs, "location"); location != "" {
		return location
	}
	switch provider {
	case "aws":
		return "us-east-1"
	case "gcp", "google":
		return "us-central1"
	case "azure", "azurerm":
		return "eastus"
	}
	return ""
}

// stitchRemoteState walks one remote-state reference's captured output map.
// A string output resolving to a node in this document yields a depends-on
// edge; an unresolved one yields a placeholder node so the dependency is
// representable without parsing every linked document together.
func (p *Parser) stitchRemoteState(res ResourceState, parsed []parsedResource, b *batch.Batch, opts api.DiscoveryOptions) {
	consumerID := p.findConsumer(res.Address(), parsed)

	for _, inst := range res.Instances {
		outputs, ok := inst.Attributes["outputs"].(map[string]any)
		if !ok {
			continue
		}
		for key, raw := range outputs {
			value, ok := raw.(string)
			if !ok || value == "" {
				continue
			}
			nativeID := identity.ExtractResourceID(value)
			if nativeID == "" {
				continue
			}

			targetID := resolveLoose(parsed, nativeID, value)
			if targetID == "" {
				placeholder := p.placeholderNode(nativeID, value, opts)
				b.AddNode(placeholder)
				targetID = placeholder.ID
			}
			sourceID := consumerID
			if sourceID == "" || sourceID == targetID {
				// No identifiable consumer: attribute the dependency to the
				// first managed resource so the cross-document link is kept.
				if len(parsed) == 0 {
					continue
				}
				sourceID = parsed[0].node.ID
				if sourceID == targetID {
					continue
				}
			}

			b.AddEdge(api.GraphEdgeInput{
				ID:               identity.BuildEdgeID(sourceID, api.RelDependsOn, targetID),
				SourceNodeID:     sourceID,
				TargetNodeID:     targetID,
				RelationshipType: api.RelDependsOn,
				Confidence:       confidence.FieldMatch,
				DiscoveredVia:    api.ViaConfigReference,
				Metadata: map[string]any{
					"source": "remote-state",
					"output": key,
				},
			})
		}
	}
}

// findConsumer identifies the managed resource that declares a dependency
// on the remote-state entry, when there is one.
func (p *Parser) findConsumer(remoteAddr string, parsed []parsedResource) string {
	for _, pr := range parsed {
		for _, dep := range pr.deps {
			if dep == remoteAddr || shortAddress(dep) == shortAddress(remoteAddr) {
				return pr.node.ID
			}
		}
	}
	return ""
}

// placeholderNode synthesizes the node a remote-state output points at.
// It carries identity fields only; the real resource overwrites it (same
// id) the moment it is observed in its own document.
func (p *Parser) placeholderNode(nativeID, reference string, opts api.DiscoveryOptions) api.GraphNodeInput {
	provider := providerFromReference(reference)
	region := regionFromARN(reference)
	if region == "" {
		// Same provider-default region as managed resources, so the real
		// resource lands on the same id when its own document is parsed.
		region = p.resolveRegion(map[string]any{}, provider)
	}
	account := accountFromARN(reference)
	if account == "" {
		account = opts.AccountScope
	}
	rt := resourceTypeFromReference(reference, nativeID)

	return api.GraphNodeInput{
		ID:           identity.BuildNodeID(provider, account, region, rt, nativeID),
		Provider:     provider,
		ResourceType: rt,
		NativeID:     nativeID,
		Name:         nativeID,
		Region:       region,
		Account:      account,
		Metadata: map[string]any{
			"placeholder":    true,
			"full_reference": reference,
		},
	}
}

// resolveLoose applies the usual equality-or-substring discipline against
// the document's own nodes.
func resolveLoose(parsed []parsedResource, nativeID, value string) string {
	for _, pr := range parsed {
		if pr.node.NativeID == nativeID || pr.node.NativeID == value {
			return pr.node.ID
		}
	}
	for _, pr := range parsed {
		if strings.Contains(pr.node.NativeID, nativeID) || strings.Contains(nativeID, pr.node.NativeID) {
			return pr.node.ID
		}
	}
	return ""
}

func lookupAddress(index map[string]string, addr string) (string, bool) {
	if id, ok := index[addr]; ok {
		return id, true
	}
	if id, ok := index[shortAddress(addr)]; ok {
		return id, true
	}
	return "", false
}

// shortAddress strips module prefixes and index suffixes:
// module.net.aws_vpc.main[0] -> aws_vpc.main.
func shortAddress(addr string) string {
	if idx := strings.Index(addr, "["); idx >= 0 {
		addr = addr[:idx]
	}
	parts := strings.Split(addr, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return addr
}

func stringAttr(attrs map[string]any, path string) string {
	values := fieldpath.ResolveStrings(attrs, path)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func tagMap(attrs map[string]any) map[string]string {
	tags := map[string]string{}
	for _, field := range []string{"tags", "tags_all", "labels"} {
		if m, ok := attrs[field].(map[string]any); ok {
			for k, v := range m {
				if s, ok := v.(string); ok {
					tags[k] = s
				}
			}
		}
	}
	return tags
}

// providerFromAddress parses "registry.terraform.io/hashicorp/aws" or a
// declared type prefix into the provider tag.
func providerFromAddress(providerAddr, declaredType string) string {
	if providerAddr != "" {
		addr := strings.TrimPrefix(providerAddr, `provider["`)
		addr = strings.TrimSuffix(addr, `"]`)
		parts := strings.Split(addr, "/")
		return parts[len(parts)-1]
	}
	if idx := strings.Index(declaredType, "_"); idx > 0 {
		return declaredType[:idx]
	}
	return "unknown"
}

func providerFromReference(ref string) string {
	if strings.HasPrefix(ref, "arn:") {
		return "aws"
	}
	if strings.HasPrefix(ref, "/subscriptions/") {
		return "azure"
	}
	if strings.Contains(ref, "googleapis.com") || strings.HasPrefix(ref, "projects/") {
		return "gcp"
	}
	return "aws"
}

// resourceTypeFromReference guesses a normalized type from the native id
// prefix or the ARN service segment; anything unrecognizable stays unknown.
func resourceTypeFromReference(ref, nativeID string) api.ResourceType {
	switch {
	case strings.HasPrefix(nativeID, "vpc-"):
		return api.ResourceNetwork
	case strings.HasPrefix(nativeID, "subnet-"):
		return api.ResourceSubnet
	case strings.HasPrefix(nativeID, "sg-"):
		return api.ResourceSecurityGroup
	case strings.HasPrefix(nativeID, "i-"):
		return api.ResourceComputeInstance
	case strings.HasPrefix(nativeID, "vol-"):
		return api.ResourceBlockVolume
	}
	if !strings.HasPrefix(ref, "arn:") {
		return api.ResourceUnknown
	}
	parts := strings.Split(ref, ":")
	if len(parts) < 3 {
		return api.ResourceUnknown
	}
	switch parts[2] {
	case "ec2":
		return api.ResourceComputeInstance
	case "s3":
		return api.ResourceStorageBucket
	case "rds":
		return api.ResourceDatabase
	case "lambda":
		return api.ResourceServerlessFunction
	case "sqs":
		return api.ResourceQueue
	case "sns":
		return api.ResourceTopic
	case "elasticloadbalancing":
		return api.ResourceLoadBalancer
	case "iam":
		return api.ResourceIAMRole
	default:
		return api.ResourceUnknown
	}
}

func accountFromARN(ref string) string {
	if !strings.HasPrefix(ref, "arn:") {
		return ""
	}
	parts := strings.Split(ref, ":")
	if len(parts) >= 5 {
		return parts[4]
	}
	return ""
}

func regionFromARN(ref string) string {
	if !strings.HasPrefix(ref, "arn:") {
		return ""
	}
	parts := strings.Split(ref, ":")
	if len(parts) >= 4 {
		return parts[3]
	}
	return ""
}
