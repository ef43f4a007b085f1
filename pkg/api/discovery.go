package api

// DiscoveryOptions scopes a single discovery pass.
type DiscoveryOptions struct {
	Regions      []string `json:"regions,omitempty"`
	AccountScope string   `json:"account_scope,omitempty"`
	Concurrency  int      `json:"concurrency,omitempty"`
}

// DiscoveryError is a non-fatal failure recorded during a pass. The pass
// itself continues; only a source that cannot be read at all yields an
// empty result.
type DiscoveryError struct {
	Code         string `json:"code"`
	ResourceType string `json:"resource_type,omitempty"`
	Message      string `json:"message"`
}

func (e DiscoveryError) Error() string {
	if e.ResourceType != "" {
		return e.Code + ": " + e.ResourceType + ": " + e.Message
	}
	return e.Code + ": " + e.Message
}

// DiscoveryResult is the self-consistent node/edge batch produced by one
// adapter invocation. Nodes and edges are fresh each pass; deterministic
// ids let the store reconcile repeat sightings.
type DiscoveryResult struct {
	Source     string           `json:"source"`
	Provider   string           `json:"provider"`
	Nodes      []GraphNodeInput `json:"nodes"`
	Edges      []GraphEdgeInput `json:"edges"`
	Errors     []DiscoveryError `json:"errors"`
	DurationMs int64            `json:"duration_ms"`
}
