// Package tfstate adapts parsed infrastructure state documents to the
// discovery contract, so declarative inventories participate in the graph
// exactly like live cloud scans do.
package tfstate

import (
	"context"
	"log/slog"
	"os"

	"resource-graph/internal/batch"
	"resource-graph/internal/state"
	"resource-graph/pkg/api"
)

// Adapter reads one or more state documents from disk and emits their
// combined graph. State is a point-in-time snapshot, so incremental sync
// is never supported.
type Adapter struct {
	paths  []string
	parser *state.Parser
	logger *slog.Logger
}

func New(paths []string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		paths:  paths,
		parser: state.NewParser(logger),
		logger: logger,
	}
}

func (a *Adapter) Provider() string { return "iac-state" }

func (a *Adapter) SupportsIncrementalSync() bool { return false }

// HealthCheck verifies every configured document is readable.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	for _, path := range a.paths {
		if _, err := os.Stat(path); err != nil {
			a.logger.Warn("state document unreadable", "path", path, "error", err)
			return false
		}
	}
	return len(a.paths) > 0
}

// SupportedResourceTypes enumerates the declared types the parser maps.
func (a *Adapter) SupportedResourceTypes() []api.ResourceType {
	seen := map[api.ResourceType]bool{}
	out := make([]api.ResourceType, 0, len(state.DefaultTypeMap))
	for _, m := range state.DefaultTypeMap {
		if !seen[m.Resource] {
			seen[m.Resource] = true
			out = append(out, m.Resource)
		}
	}
	return out
}

// Discover parses every configured document and folds the results through
// one batch, so a placeholder synthesized from one document is overwritten
// by the real resource found in another and overlapping documents never
// duplicate nodes or edge triples. A document that fails to parse aborts
// the run; parsing is all-or-nothing per document, never partial.
func (a *Adapter) Discover(ctx context.Context, opts api.DiscoveryOptions) (*api.DiscoveryResult, error) {
	b := batch.New()
	var durationMs int64
	for _, path := range a.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := a.parser.ParseFile(path, opts)
		if err != nil {
			return nil, err
		}
		for _, n := range result.Nodes {
			b.AddNode(n)
		}
		for _, e := range result.Edges {
			b.AddEdge(e)
		}
		for _, de := range result.Errors {
			b.AddError(de)
		}
		durationMs += result.DurationMs
	}
	return &api.DiscoveryResult{
		Source:     "iac-state",
		Provider:   a.Provider(),
		Nodes:      b.Nodes(),
		Edges:      b.Edges(),
		Errors:     b.Errors(),
		DurationMs: durationMs,
	}, nil
}
