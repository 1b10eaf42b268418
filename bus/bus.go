// Package bus implements the path-indexed subscriber bus (spec component
// C1): a reactive notification layer that routes change events to
// subscribers by path prefix, with O(1) first-segment indexing.
//
// The indexing scheme generalizes the teacher's sse.SubscriberHandler
// (sse/sse.go), which maps a resource path string to a skiplist of
// subscribers. Here the mapping is two-level instead: a set of root
// subscriptions, plus a map from first path segment to the subscriptions
// whose path begins with that segment, so Notify can skip whole buckets
// cheaply instead of walking a full index for every change.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/corestateio/corestate/path"
)

// Listener is a nullary side-effecting callback, invoked when a mutation
// touches a path overlapping the one it was registered against.
type Listener func()

// Unsubscribe removes the registration it was returned for. It is idempotent
// and has no effect on subsequent calls.
type Unsubscribe func()

type subscription struct {
	id       string
	path     path.Path
	listener Listener
}

// Bus routes change notifications to subscribers whose subscribed path
// overlaps with any changed path (spec §4.1).
type Bus struct {
	mu      sync.Mutex
	roots   map[string]*subscription
	buckets map[string]map[string]*subscription // first-segment.String() -> id -> subscription

	onFirstSubscribe func()
	firstFired       bool

	// OnPanic receives the recovered value from a listener that panicked,
	// after the bus has logged it and moved on to the remaining listeners.
	// This is the Go analogue of "propagated to the host's default
	// uncaught-exception handler" (spec §4.1): embedders that want a crash
	// instead of a log line can re-panic from this hook.
	OnPanic func(recovered any)
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithOnFirstSubscribe registers a hook that fires exactly once, the moment
// the very first subscription is ever registered on this bus.
func WithOnFirstSubscribe(hook func()) Option {
	return func(b *Bus) { b.onFirstSubscribe = hook }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		roots:   make(map[string]*subscription),
		buckets: make(map[string]map[string]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers listener against p and returns an idempotent
// unsubscribe function. If this is the bus's first-ever subscription and an
// onFirstSubscribe hook was supplied at construction, it fires exactly once.
func (b *Bus) Subscribe(p path.Path, listener Listener) Unsubscribe {
	sub := &subscription{id: uuid.NewString(), path: p.Clone(), listener: listener}

	b.mu.Lock()
	fireFirst := false
	if !b.firstFired && b.onFirstSubscribe != nil {
		b.firstFired = true
		fireFirst = true
	}
	if p.IsRoot() {
		b.roots[sub.id] = sub
	} else {
		key := p[0].String()
		bucket, ok := b.buckets[key]
		if !ok {
			bucket = make(map[string]*subscription)
			b.buckets[key] = bucket
		}
		bucket[sub.id] = sub
	}
	b.mu.Unlock()

	if fireFirst {
		b.onFirstSubscribe()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if p.IsRoot() {
				delete(b.roots, sub.id)
				return
			}
			key := p[0].String()
			if bucket, ok := b.buckets[key]; ok {
				delete(bucket, sub.id)
				if len(bucket) == 0 {
					delete(b.buckets, key)
				}
			}
		})
	}
}

// Notify invokes, exactly once each, every listener whose subscribed path
// overlaps any path in changed. A listener that panics does not prevent the
// remaining listeners from running.
func (b *Bus) Notify(changed []path.Path) {
	if len(changed) == 0 {
		return
	}

	matched := b.collect(changed)
	for _, sub := range matched {
		b.invoke(sub)
	}
}

// collect computes the deduplicated set of matching subscriptions under the
// bus lock, then releases the lock before any listener runs — listeners must
// never run while holding the bus mutex, since a reentrant Subscribe/Notify
// from inside a listener is explicitly permitted (spec §4.1).
func (b *Bus) collect(changed []path.Path) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	var matched []*subscription

	addIfMatch := func(sub *subscription, c path.Path) {
		if _, ok := seen[sub.id]; ok {
			return
		}
		if sub.path.Overlaps(c) {
			seen[sub.id] = struct{}{}
			matched = append(matched, sub)
		}
	}

	rootChange := false
	for _, c := range changed {
		if c.IsRoot() {
			rootChange = true
		}
	}

	// Root subscribers overlap every change by definition.
	for _, sub := range b.roots {
		if _, ok := seen[sub.id]; !ok {
			seen[sub.id] = struct{}{}
			matched = append(matched, sub)
		}
	}

	if rootChange {
		// A root change notifies every subscriber; this is the one case the
		// bucket index cannot skip (spec §4.1 "a root change must walk every
		// bucket — this is accepted and documented").
		for _, bucket := range b.buckets {
			for _, sub := range bucket {
				if _, ok := seen[sub.id]; !ok {
					seen[sub.id] = struct{}{}
					matched = append(matched, sub)
				}
			}
		}
		return matched
	}

	for _, c := range changed {
		key := c[0].String()
		bucket, ok := b.buckets[key]
		if !ok {
			continue
		}
		for _, sub := range bucket {
			addIfMatch(sub, c)
		}
	}

	return matched
}

func (b *Bus) invoke(sub *subscription) {
	lo.TryCatchWithErrorValue(func() error {
		sub.listener()
		return nil
	}, func(recovered any) {
		slog.Error("bus: listener panicked", "path", sub.path.String(), "recovered", recovered)
		if b.OnPanic != nil {
			b.OnPanic(recovered)
		}
	})
}
