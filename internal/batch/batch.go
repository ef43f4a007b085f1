// Package batch holds the in-progress node/edge arena for one discovery
// pass. The arena is the only shared mutable state across concurrent
// fetches; it is append-only and every dedup check happens in the same
// critical section as the corresponding append, so two concurrent "new"
// edges for one triple cannot both pass a stale check.
package batch

import (
	"sync"

	"resource-graph/pkg/api"
)

type Batch struct {
	mu       sync.Mutex
	nodes    []api.GraphNodeInput
	edges    []api.GraphEdgeInput
	errs     []api.DiscoveryError
	nodeIdx  map[string]int
	edgeKeys map[string]struct{}
}

func New() *Batch {
	return &Batch{
		nodes:    make([]api.GraphNodeInput, 0),
		edges:    make([]api.GraphEdgeInput, 0),
		errs:     make([]api.DiscoveryError, 0),
		nodeIdx:  map[string]int{},
		edgeKeys: map[string]struct{}{},
	}
}

// AddNode upserts a node by id. A placeholder never overwrites a real node;
// a real node overwrites a previously synthesized placeholder with the same
// id. Returns true if the batch changed.
func (b *Batch) AddNode(n api.GraphNodeInput) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.nodeIdx[n.ID]; ok {
		existing := &b.nodes[idx]
		if existing.IsPlaceholder() && !n.IsPlaceholder() {
			b.nodes[idx] = n
			return true
		}
		return false
	}

	b.nodeIdx[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return true
}

// AddEdge appends an edge unless the (source, relationship, target) triple
// is already present. Returns true if appended.
func (b *Batch) AddEdge(e api.GraphEdgeInput) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := e.SourceNodeID + "\x1f" + string(e.RelationshipType) + "\x1f" + e.TargetNodeID
	if _, dup := b.edgeKeys[key]; dup {
		return false
	}
	b.edgeKeys[key] = struct{}{}
	b.edges = append(b.edges, e)
	return true
}

func (b *Batch) AddError(e api.DiscoveryError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, e)
}

// NodeByID returns a copy of the node with the given id.
func (b *Batch) NodeByID(id string) (api.GraphNodeInput, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.nodeIdx[id]; ok {
		return b.nodes[idx], true
	}
	return api.GraphNodeInput{}, false
}

// Find returns copies of all nodes matching pred, in insertion order.
func (b *Batch) Find(pred func(*api.GraphNodeInput) bool) []api.GraphNodeInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []api.GraphNodeInput
	for i := range b.nodes {
		if pred(&b.nodes[i]) {
			out = append(out, b.nodes[i])
		}
	}
	return out
}

// MutateNode applies fn to the stored node with the given id under the lock.
func (b *Batch) MutateNode(id string, fn func(*api.GraphNodeInput)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.nodeIdx[id]
	if !ok {
		return false
	}
	fn(&b.nodes[idx])
	return true
}

// Nodes returns a snapshot of the accumulated nodes.
func (b *Batch) Nodes() []api.GraphNodeInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]api.GraphNodeInput, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Edges returns a snapshot of the accumulated edges.
func (b *Batch) Edges() []api.GraphEdgeInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]api.GraphEdgeInput, len(b.edges))
	copy(out, b.edges)
	return out
}

// Errors returns a snapshot of the recorded non-fatal errors.
func (b *Batch) Errors() []api.DiscoveryError {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]api.DiscoveryError, len(b.errs))
	copy(out, b.errs)
	return out
}

func (b *Batch) NodeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}
