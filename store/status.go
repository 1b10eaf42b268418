// Package store implements the single-value store and collection store
// (spec components C6/C7): the orchestration layer that ties path.Path,
// bus.Bus, cache.Cache, and an adapter.Adapter together into the reactive
// read/optimistic-write surface consumers see.
package store

import (
	"time"

	"github.com/corestateio/corestate/bus"
	"github.com/corestateio/corestate/path"
)

// Status is one store's StoreStatus record: whether a fetch is in flight,
// whether a stale value is being revalidated in the background, whether the
// store believes it is offline, the most recent error (if any), and when
// the value was last successfully updated.
type Status struct {
	IsLoading      bool
	IsRevalidating bool
	IsOffline      bool
	Error          error
	LastUpdated    time.Time
}

// Store is the shared consumer-facing surface of both Single and
// Collection: a read-only status, status subscription, and disposal. The
// value snapshot is not part of Store; it comes from Subscribable, the
// narrower surface store.Subscribe and store.Snapshot need, which both
// stores and proxy.Handle implement.
type Store interface {
	Status() Status
	SubscribeStatus(listener func()) (unsubscribe func())
	Dispose()
}

// Subscribable is implemented by both a root store (subscribing at the
// root path) and a proxy.Handle (subscribing at its recorded path),
// letting store.Subscribe/store.Snapshot operate uniformly over either.
type Subscribable interface {
	Subscribe(listener func()) (unsubscribe func())
	Value() (any, bool)
}

// Subscribe registers onChange against s, the generic half of the
// "UI-binding interface": it subscribes at the root path for a root store
// and at the recorded path for a proxy.Handle.
func Subscribe(s Subscribable, onChange func()) (unsubscribe func()) {
	return s.Subscribe(onChange)
}

// Snapshot returns s's current value, the generic half of the UI-binding
// interface's getSnapshot.
func Snapshot(s Subscribable) any {
	v, _ := s.Value()
	return v
}

// busSubscriber adapts *bus.Bus's named Listener/Unsubscribe function types
// to proxy.Subscriber's unnamed func() signature, so a store can hand its
// bus to proxy.New without proxy importing bus.
type busSubscriber struct{ b *bus.Bus }

func (s busSubscriber) Subscribe(p path.Path, listener func()) (unsubscribe func()) {
	return s.b.Subscribe(p, listener)
}
