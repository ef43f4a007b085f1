// Package correlate finds relationships across independently discovered
// node sets that no single source's own rules could see, for instance a
// cluster workload and the cloud load balancer fronting it.
package correlate

import (
	"sort"

	"resource-graph/internal/identity"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
)

// Rule names carried as provenance on every match.
const (
	RuleNativeID      = "native-id"
	RuleDNSName       = "dns-name"
	RuleEndpoint      = "endpoint"
	RuleSharedIP      = "shared-ip"
	RuleResourceGroup = "resource-group"
	RuleTagOverlap    = "tag-overlap"
)

// DefaultThreshold separates strong matches from weak ones. Matches below
// it are still returned; filtering is the caller's call.
const DefaultThreshold = confidence.SharedIP

// tagOverlapMin is how many identical tag pairs the weakest rule needs.
const tagOverlapMin = 2

// Match pairs two nodes from different sources with the rule that related
// them and its confidence.
type Match struct {
	LeftSource  string  `json:"leftSource"`
	LeftNodeID  string  `json:"leftNodeId"`
	RightSource string  `json:"rightSource"`
	RightNodeID string  `json:"rightNodeId"`
	Confidence  float64 `json:"confidence"`
	Rule        string  `json:"rule"`
}

type sourcedNode struct {
	source string
	node   api.GraphNodeInput
}

// Correlate evaluates every cross-source node pair against the match
// rules, strongest first, keeping one match per pair. The result is
// ordered by non-increasing confidence.
func Correlate(results ...*api.DiscoveryResult) []Match {
	var pool []sourcedNode
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, n := range r.Nodes {
			pool = append(pool, sourcedNode{source: r.Source, node: n})
		}
	}

	var matches []Match
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if pool[i].source == pool[j].source {
				continue
			}
			if rule, score, ok := evaluate(&pool[i].node, &pool[j].node); ok {
				matches = append(matches, Match{
					LeftSource:  pool[i].source,
					LeftNodeID:  pool[i].node.ID,
					RightSource: pool[j].source,
					RightNodeID: pool[j].node.ID,
					Confidence:  score,
					Rule:        rule,
				})
			}
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Confidence != matches[b].Confidence {
			return matches[a].Confidence > matches[b].Confidence
		}
		if matches[a].LeftNodeID != matches[b].LeftNodeID {
			return matches[a].LeftNodeID < matches[b].LeftNodeID
		}
		return matches[a].RightNodeID < matches[b].RightNodeID
	})
	return matches
}

// Filter drops matches below the threshold. Provided for callers that
// want the conventional cut; Correlate itself never drops anything.
func Filter(matches []Match, threshold float64) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if confidence.AboveThreshold(m.Confidence, threshold) {
			out = append(out, m)
		}
	}
	return out
}

// evaluate runs the rules in descending confidence and reports the first
// hit.
func evaluate(a, b *api.GraphNodeInput) (string, float64, bool) {
	if idA, idB := normalizedID(a), normalizedID(b); idA != "" && idA == idB {
		return RuleNativeID, confidence.Exact, true
	}
	if sharedMeta(a, b, "dns_name") {
		return RuleDNSName, confidence.DNSMatch, true
	}
	if sharedMeta(a, b, "endpoint") {
		return RuleEndpoint, confidence.Endpoint, true
	}
	if sharedMeta(a, b, "public_ip") {
		return RuleSharedIP, confidence.SharedIP, true
	}
	if sharedMeta(a, b, "resource_group") {
		return RuleResourceGroup, confidence.TagOverlap, true
	}
	if tagOverlap(a, b) >= tagOverlapMin {
		return RuleTagOverlap, confidence.TagOverlap, true
	}
	return "", 0, false
}

func normalizedID(n *api.GraphNodeInput) string {
	return identity.ExtractResourceID(n.NativeID)
}

// sharedMeta reports whether both nodes carry the same non-empty string
// under the metadata key.
func sharedMeta(a, b *api.GraphNodeInput, key string) bool {
	va, _ := a.Metadata[key].(string)
	vb, _ := b.Metadata[key].(string)
	return va != "" && va == vb
}

func tagOverlap(a, b *api.GraphNodeInput) int {
	count := 0
	for k, v := range a.Tags {
		if v != "" && b.Tags[k] == v {
			count++
		}
	}
	return count
}
