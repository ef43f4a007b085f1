// Package store defines the downstream graph sink contract. Sinks accept
// node/edge arrays keyed by deterministic ids; upsert semantics belong to
// the sink, so re-discovered infrastructure overwrites rather than
// duplicates.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"resource-graph/pkg/api"
)

// DiscoverySnapshot records one completed discovery pass.
type DiscoverySnapshot struct {
	ID         uuid.UUID
	Source     string
	Provider   string
	NodeCount  int
	EdgeCount  int
	ErrorCount int
	DurationMs int64
	CreatedAt  time.Time
}

// GraphStore is the sink contract both implementations satisfy.
type GraphStore interface {
	Ping(ctx context.Context) error
	Close() error
	RecordSnapshot(ctx context.Context, snap *DiscoverySnapshot) error
	UpsertNodes(ctx context.Context, snapshotID uuid.UUID, nodes []api.GraphNodeInput) error
	UpsertEdges(ctx context.Context, snapshotID uuid.UUID, edges []api.GraphEdgeInput) error
}

// Persist writes one discovery result through a sink under a fresh
// snapshot id and returns it.
func Persist(ctx context.Context, s GraphStore, result *api.DiscoveryResult) (uuid.UUID, error) {
	snapID := uuid.New()
	snap := &DiscoverySnapshot{
		ID:         snapID,
		Source:     result.Source,
		Provider:   result.Provider,
		NodeCount:  len(result.Nodes),
		EdgeCount:  len(result.Edges),
		ErrorCount: len(result.Errors),
		DurationMs: result.DurationMs,
		CreatedAt:  time.Now(),
	}
	if err := s.RecordSnapshot(ctx, snap); err != nil {
		return uuid.Nil, err
	}
	if err := s.UpsertNodes(ctx, snapID, result.Nodes); err != nil {
		return uuid.Nil, err
	}
	if err := s.UpsertEdges(ctx, snapID, result.Edges); err != nil {
		return uuid.Nil, err
	}
	return snapID, nil
}
