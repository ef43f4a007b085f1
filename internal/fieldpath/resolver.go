// Package fieldpath resolves dot-separated path expressions against raw,
// loosely-typed provider records. Missing intermediate keys yield an empty
// result, never an error; every segment broadcasts over the prior segment's
// result set.
//
// Grammar:
//
//	tags.Name            plain nested lookup
//	groups[]             flatten an array into 0..N results
//	Tags[Name]           treat the array as {Key,Value} pairs, select the
//	                     Value whose Key equals "Name"
package fieldpath

import (
	"strconv"
	"strings"
)

type segmentKind int

const (
	segField segmentKind = iota
	segFlatten
	segKeyedValue
)

type segment struct {
	name string
	kind segmentKind
	key  string
}

func parsePath(path string) []segment {
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		switch {
		case strings.HasSuffix(p, "[]"):
			segs = append(segs, segment{name: p[:len(p)-2], kind: segFlatten})
		case strings.HasSuffix(p, "]") && strings.Contains(p, "["):
			open := strings.Index(p, "[")
			segs = append(segs, segment{
				name: p[:open],
				kind: segKeyedValue,
				key:  p[open+1 : len(p)-1],
			})
		default:
			segs = append(segs, segment{name: p, kind: segField})
		}
	}
	return segs
}

// Resolve returns every leaf value matching path, preserving types.
// Resolving against nil or a non-object value returns an empty slice.
func Resolve(record any, path string) []any {
	current := []any{record}
	for _, seg := range parsePath(path) {
		next := make([]any, 0, len(current))
		for _, v := range current {
			next = append(next, applySegment(v, seg)...)
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	out := make([]any, 0, len(current))
	for _, v := range current {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// ResolveStrings resolves path and flattens every scalar leaf to a string,
// for edge building where references are ultimately id/ARN/URL strings.
// Non-scalar leaves are dropped.
func ResolveStrings(record any, path string) []string {
	values := Resolve(record, path)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := stringify(v); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func applySegment(v any, seg segment) []any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	field, exists := m[seg.name]
	if !exists || field == nil {
		return nil
	}

	switch seg.kind {
	case segField:
		return []any{field}

	case segFlatten:
		arr, ok := field.([]any)
		if !ok {
			// A scalar where an array was expected still yields itself,
			// matching providers that collapse single-element lists.
			return []any{field}
		}
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			if item != nil {
				out = append(out, item)
			}
		}
		return out

	case segKeyedValue:
		arr, ok := field.([]any)
		if !ok {
			return nil
		}
		out := make([]any, 0, 1)
		for _, item := range arr {
			pair, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if pairKey(pair) == seg.key {
				if val, ok := pairValue(pair); ok {
					out = append(out, val)
				}
			}
		}
		return out
	}
	return nil
}

// pairKey reads the key of a {Key,Value} tag pair across common encodings.
func pairKey(pair map[string]any) string {
	for _, k := range []string{"Key", "key", "TagKey"} {
		if v, ok := pair[k].(string); ok {
			return v
		}
	}
	return ""
}

func pairValue(pair map[string]any) (any, bool) {
	for _, k := range []string{"Value", "value", "TagValue"} {
		if v, ok := pair[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
