// Package identity builds deterministic node and edge ids. Re-discovering
// the same infrastructure yields identical ids, which is what lets the
// downstream store upsert instead of duplicating.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"resource-graph/pkg/api"
)

// BuildNodeID composes (provider, account, region, resourceType, nativeId)
// into a stable id. Fields are length-prefixed before hashing so the
// composition is injective and order-sensitive.
func BuildNodeID(provider, account, region string, resourceType api.ResourceType, nativeID string) string {
	return hashFields(provider, account, region, string(resourceType), nativeID)
}

// BuildEdgeID composes (sourceNodeId, relationshipType, targetNodeId) into a
// stable id under the same scheme.
func BuildEdgeID(sourceNodeID string, rel api.RelationshipType, targetNodeID string) string {
	return hashFields(sourceNodeID, string(rel), targetNodeID)
}

func hashFields(fields ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f)))
		h.Write(lenBuf[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractResourceID normalizes a reference value to a native id. Three
// shapes are handled: a hierarchical fully-qualified name (trailing segment
// after the last type delimiter), an endpoint URL (final path segment), and
// an already-short id (unchanged). Idempotent: applying twice equals
// applying once.
func ExtractResourceID(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	// Endpoint URL: take the final path segment, dropping any query.
	if strings.Contains(v, "://") {
		v = strings.SplitN(v, "?", 2)[0]
		v = strings.TrimRight(v, "/")
		if idx := strings.LastIndex(v, "/"); idx >= 0 {
			v = v[idx+1:]
		}
		// Hostname-only URLs reduce to the hostname.
		return v
	}

	// Hierarchical qualified name (ARN-style): segments after the last
	// type delimiter. ARNs separate the resource part with ":" or "/".
	if strings.Contains(v, ":") {
		v = v[strings.LastIndex(v, ":")+1:]
	}
	if strings.Contains(v, "/") {
		v = strings.TrimRight(v, "/")
		v = v[strings.LastIndex(v, "/")+1:]
	}

	return v
}
