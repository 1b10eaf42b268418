package store

import (
	"encoding/json"

	"github.com/corestateio/corestate/path"
)

// toSlice best-effort converts v to a []T via its JSON representation. A
// single non-slice payload is wrapped in a one-element slice, so callers
// that accept either a single record or a list (e.g. a push payload) can
// treat both shapes uniformly.
func toSlice[T any](v any) ([]T, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, false
	}
	return []T{single}, true
}

// decodeOne converts v to a single T via its JSON representation.
func decodeOne[T any](v any) (T, bool) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// toMap best-effort converts v to a map[string]any via its JSON
// representation, used to diff top-level keys for precise notification and
// to merge partial patches onto typed values.
func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// changedTopLevelKeys returns the top-level keys present in partial that
// differ (or are new) between before and after, used to build precise
// notify paths for a patch. ok is false when either side cannot be viewed
// as a map, meaning the caller should fall back to a full-path notify.
func changedTopLevelKeys(before, after any, partial map[string]any) (keys []string, ok bool) {
	beforeMap, ok1 := toMap(before)
	afterMap, ok2 := toMap(after)
	if !ok1 || !ok2 {
		return nil, false
	}
	for k := range partial {
		if !equalJSON(beforeMap[k], afterMap[k]) {
			keys = append(keys, k)
		}
	}
	return keys, true
}

func equalJSON(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}

// toGeneric round-trips v through JSON into the untyped map/slice/scalar
// shape proxy.Handle's Resolver walks, since the store's own value is a
// typed T (or []T) that a path-driven traversal cannot index into directly.
func toGeneric(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// walkPath resolves p against v's generic (map[string]any/[]any/scalar)
// shape, backing proxy.Resolver for both Collection and Single. A segment
// indexes a []any by its int form and a map[string]any by its string form
// regardless of its own Kind, since path.FromRaw's numeric-string coercion
// means a record id like "3" and an array index 3 share one Segment
// representation; the shape actually found at cur, not the segment's Kind,
// decides how it is used. A segment that doesn't fit v's current shape is a
// "hole" (found == false), per the proxy's handling of paths that don't yet
// resolve to anything.
func walkPath(v any, p path.Path) (any, bool) {
	cur := v
	for _, seg := range p {
		switch c := cur.(type) {
		case map[string]any:
			val, exists := c[seg.String()]
			if !exists {
				return nil, false
			}
			cur = val
		case []any:
			if seg.Kind != path.KindInt || seg.Int < 0 || seg.Int >= len(c) {
				return nil, false
			}
			cur = c[seg.Int]
		default:
			return nil, false
		}
	}
	return cur, true
}

// mergeInto applies partial's top-level keys onto current and decodes the
// result into a new T, via T's JSON representation. This mirrors how a
// dynamically-typed host language merges a partial object onto a record;
// Go recovers the same behavior through marshal/unmarshal since T is not
// known to be a map at compile time.
func mergeInto[T any](current T, partial map[string]any) (T, error) {
	var zero T
	currentMap, ok := toMap(current)
	if !ok {
		currentMap = map[string]any{}
	}
	for k, v := range partial {
		currentMap[k] = v
	}
	raw, err := json.Marshal(currentMap)
	if err != nil {
		return zero, err
	}
	var merged T
	if err := json.Unmarshal(raw, &merged); err != nil {
		return zero, err
	}
	return merged, nil
}
