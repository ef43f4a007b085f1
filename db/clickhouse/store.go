// Package clickhouse provides the ClickHouse graph sink. Columnar storage
// suits the append-heavy write path: every pass inserts full rows and a
// ReplacingMergeTree keyed by deterministic id collapses re-discoveries.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"resource-graph/db/store"
	"resource-graph/pkg/api"
)

// Config holds ClickHouse connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "resourcegraph",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements store.GraphStore on ClickHouse.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

var _ store.GraphStore = (*Store)(nil)

// NewStore opens a connection to ClickHouse.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordSnapshot inserts one discovery pass record.
func (s *Store) RecordSnapshot(ctx context.Context, snap *store.DiscoverySnapshot) error {
	query := `
		INSERT INTO graph_snapshots (
			id, source, provider, node_count, edge_count, error_count,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return s.conn.Exec(ctx, query,
		snap.ID,
		snap.Source,
		snap.Provider,
		uint32(snap.NodeCount),
		uint32(snap.EdgeCount),
		uint32(snap.ErrorCount),
		uint64(snap.DurationMs),
		snap.CreatedAt,
	)
}

// UpsertNodes batch-inserts nodes. The table's ReplacingMergeTree keyed
// by id makes the insert an upsert on merge.
func (s *Store) UpsertNodes(ctx context.Context, snapshotID uuid.UUID, nodes []api.GraphNodeInput) error {
	if len(nodes) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO graph_nodes (
			id, snapshot_id, provider, resource_type, native_id, name,
			region, account, status, tags, metadata, cost_monthly, owner,
			resource_created_at, is_placeholder, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node batch: %w", err)
	}

	now := time.Now()
	for _, n := range nodes {
		metaJSON, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal node metadata: %w", err)
		}
		cost := ""
		if n.CostMonthly != nil {
			cost = n.CostMonthly.String()
		}
		owner := ""
		if n.Owner != nil {
			owner = *n.Owner
		}
		if err := batch.Append(
			n.ID, snapshotID, n.Provider, string(n.ResourceType), n.NativeID, n.Name,
			n.Region, n.Account, n.Status, n.Tags, string(metaJSON), cost, owner,
			n.CreatedAt, boolToUInt8(n.IsPlaceholder()), now,
		); err != nil {
			return fmt.Errorf("failed to append node: %w", err)
		}
	}
	return batch.Send()
}

// UpsertEdges batch-inserts edges, keyed by deterministic edge id.
func (s *Store) UpsertEdges(ctx context.Context, snapshotID uuid.UUID, edges []api.GraphEdgeInput) error {
	if len(edges) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO graph_edges (
			id, snapshot_id, source_node_id, target_node_id, relationship_type,
			confidence, discovered_via, metadata, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge batch: %w", err)
	}

	now := time.Now()
	for _, e := range edges {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal edge metadata: %w", err)
		}
		if err := batch.Append(
			e.ID, snapshotID, e.SourceNodeID, e.TargetNodeID, string(e.RelationshipType),
			e.Confidence, string(e.DiscoveredVia), string(metaJSON), now,
		); err != nil {
			return fmt.Errorf("failed to append edge: %w", err)
		}
	}
	return batch.Send()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
