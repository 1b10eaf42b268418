package adapter

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var templateVarPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// buildURL expands a ":identifier" template against params, per the URL
// template grammar: a ":name" path segment is replaced by the URL-encoded
// string form of the matching param's value; a missing template variable is
// a synchronous error. Every param consumed as a template variable is
// removed from the returned leftover list, in the order the caller built
// params in; params not matching any template variable are reported back
// for the caller to serialize as a query string.
func buildURL(template string, params Params) (string, Params, error) {
	leftover := make(Params, len(params))
	copy(leftover, params)

	segments := strings.Split(template, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := seg[1:]
		if !templateVarPattern.MatchString(name) {
			continue
		}
		val, ok := leftover.Get(name)
		if !ok {
			return "", nil, fmt.Errorf("adapter: missing template variable %q for %q", name, template)
		}
		segments[i] = url.PathEscape(fmt.Sprint(val))
		leftover = leftover.Without(name)
	}

	return strings.Join(segments, "/"), leftover, nil
}

// encodeQuery serializes params as a "key=value" query string joined by
// "&", in params' own order, per the query-string rule ("...joined by &, in
// insertion order of the parameter object").
func encodeQuery(params Params) string {
	if len(params) == 0 {
		return ""
	}
	var b strings.Builder
	for _, kv := range params {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fmt.Sprint(kv.Value)))
	}
	return b.String()
}

// StripForce removes the reserved "_force" parameter, which only controls
// cache bypass and must never reach URL construction. Exported so the store
// package can apply the same rule when building cache keys.
func StripForce(params Params) Params {
	return params.Without("_force")
}

// IsForced reports whether params requested a cache bypass.
func IsForced(params Params) bool {
	v, ok := params.Get("_force")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// sortedKeys returns params' keys in a stable sorted order, used only for
// the cache key, which must be order-independent regardless of the order
// the caller built params in.
func sortedKeys(params Params) []string {
	keys := make([]string, 0, len(params))
	for _, kv := range params {
		keys = append(keys, kv.Key)
	}
	sort.Strings(keys)
	return keys
}

// StableKey builds a deterministic cache key of the form "prefix:k1=v1&k2=v2",
// keys sorted, matching the "stable serialization sorts keys" rule collection
// stores use to build list cache keys. Unlike the wire query string, the
// cache key must be the same regardless of the order params was built in.
func StableKey(prefix string, params Params) string {
	params = StripForce(params)
	if len(params) == 0 {
		return prefix
	}
	values := params.ToMap()
	keys := sortedKeys(params)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fmt.Sprint(values[k])))
	}
	return prefix + ":" + b.String()
}
