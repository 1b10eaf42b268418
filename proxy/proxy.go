// Package proxy implements the deep observation proxy (spec component C2):
// a lazily-materialized recursive handle that, on each traversal, extends a
// path vector and produces a fresh observable bound to that path.
//
// The source this spec was distilled from relies on a host-language
// prototype object with dynamic property access; spec §9 calls for a
// systems-language re-expression as "a generic handle type parameterized by
// path vector, with trait-based conversions for the leaf primitive types".
// Handle is that type: it carries no data of its own and re-resolves from
// the bound store root on every read, the same way the teacher's sse/
// Notify walks a path string fresh on every call rather than caching a
// reference into the skiplist.
package proxy

import (
	"github.com/corestateio/corestate/path"
)

// Resolver navigates from the store root down p and reports whether a value
// exists at that location. It must be safe to call repeatedly and must
// always reflect the current state, never a stale snapshot.
type Resolver func(p path.Path) (value any, found bool)

// Subscriber is the capability a Handle needs to expose Subscribe; it is
// satisfied by *bus.Bus.
type Subscriber interface {
	Subscribe(p path.Path, listener func()) (unsubscribe func())
}

// marker is the unexported identity interface used to distinguish a Handle
// from a plain value without resorting to structural typing (spec §4.2
// "Every proxy exposes an internal marker").
type marker interface {
	isProxyHandle()
}

// Handle is the proxy itself: an immutable (path, resolver, subscriber)
// triple. Traversal methods (Key, Index) return a new Handle extending the
// path; they never mutate the receiver.
type Handle struct {
	path    path.Path
	resolve Resolver
	sub     Subscriber
}

var _ marker = Handle{}

func (Handle) isProxyHandle() {}

// New creates the root Handle (path []) bound to resolve and sub.
func New(resolve Resolver, sub Subscriber) Handle {
	return Handle{path: path.Root(), resolve: resolve, sub: sub}
}

// Path returns the path vector this handle was traversed to.
func (h Handle) Path() path.Path { return h.path }

// IsProxy always returns true; it exists so that code holding an `any` can
// confirm a Handle without type-asserting on Handle's exported shape.
func (h Handle) IsProxy() bool { return true }

// Is reports whether v is a proxy Handle, using the unexported marker
// interface rather than structural typing (spec §4.2).
func Is(v any) bool {
	_, ok := v.(marker)
	return ok
}

// Key traverses into a string-keyed child. Numeric-string coercion (spec
// §4.2) is applied via path.FromRaw, so Key("3") and Index(3) produce
// identical paths.
func (h Handle) Key(name string) Handle {
	return Handle{path: h.path.Append(path.FromRaw(name)), resolve: h.resolve, sub: h.sub}
}

// Index traverses into an integer-indexed child.
func (h Handle) Index(i int) Handle {
	return Handle{path: h.path.Append(path.Int(i)), resolve: h.resolve, sub: h.sub}
}

// Value resolves the handle's path against the live state. A handle whose
// path currently resolves to nothing (a "hole", spec §4.2) reports found ==
// false but remains a perfectly valid subscription target: its listener
// still fires once the segment materializes, enabling write-before-read
// patterns.
func (h Handle) Value() (any, bool) {
	if h.resolve == nil {
		return nil, false
	}
	return h.resolve(h.path)
}

// Subscribe registers listener at this handle's recorded path.
func (h Handle) Subscribe(listener func()) (unsubscribe func()) {
	if h.sub == nil {
		return func() {}
	}
	return h.sub.Subscribe(h.path, listener)
}

// Entry pairs an id with the per-id Handle produced while iterating a
// collection-store root in insertion order (spec §4.2 "Edge cases").
type Entry struct {
	ID     string
	Handle Handle
}

// Iterate returns (id, per-id proxy) pairs for every id in ids, in the given
// order. Callers obtain ids from the bound collection store (e.g.
// store.Collection.IDs()); Iterate itself does not know about ordering, only
// how to turn an ordered id list into handles.
func (h Handle) Iterate(ids []string) []Entry {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ID: id, Handle: h.Key(id)}
	}
	return entries
}

// --- trait-based conversions for leaf primitive types ---
//
// These mirror the host's standard value-conversion hooks (string, number,
// boolean) the spec calls for at primitive leaves (§4.2), so a Handle
// round-trips through equality and string formatting the way a raw
// primitive does.

// String coerces the resolved value to a string. Numbers and bools are
// formatted; a missing or non-primitive value yields "".
func (h Handle) String() string {
	v, ok := h.Value()
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatFloat(t)
	case int:
		return formatInt(t)
	case bool:
		return formatBool(t)
	default:
		return ""
	}
}

// Int coerces the resolved value to an int. ok is false for a missing value
// or one that cannot be represented as an int.
func (h Handle) Int() (int, bool) {
	v, ok := h.Value()
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

// Float coerces the resolved value to a float64.
func (h Handle) Float() (float64, bool) {
	v, ok := h.Value()
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// Bool coerces the resolved value to a bool.
func (h Handle) Bool() (bool, bool) {
	v, ok := h.Value()
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
