package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/bus"
	"github.com/corestateio/corestate/cache"
	"github.com/corestateio/corestate/netstatus"
	"github.com/corestateio/corestate/path"
	"github.com/corestateio/corestate/proxy"
	"github.com/corestateio/corestate/schema"
	"github.com/corestateio/corestate/storeerr"
)

// SingleConfig configures a Single store.
type SingleConfig struct {
	Adapter    adapter.Adapter
	Cache      *cache.Cache
	CacheKey   string
	TTL        time.Duration
	OnError    storeerr.Handler
	Validator  *schema.Validator
	OnlineW    netstatus.OnlineWatcher
	FocusW     netstatus.FocusWatcher
	NetOptions netstatus.Options
}

// Single holds zero-or-one record of type T, serves reactive reads, and
// orchestrates optimistic mutations against cfg.Adapter (spec component
// C6). Methods are safe for concurrent use.
type Single[T any] struct {
	mu         sync.Mutex
	value      T
	hasValue   bool
	lastParams adapter.Params

	cfg SingleConfig
	bus *bus.Bus
	net *netstatus.Monitor

	inflightMu sync.Mutex
	inflight   map[string]*singleGetCall[T]

	disposeOnce sync.Once
}

type singleGetCall[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewSingle constructs a Single store. Its netstatus.Monitor is wired to
// re-issue the last Get call on reconnect/focus per cfg.NetOptions.
func NewSingle[T any](cfg SingleConfig) *Single[T] {
	s := &Single[T]{
		cfg:      cfg,
		bus:      bus.New(),
		inflight: make(map[string]*singleGetCall[T]),
	}
	s.net = netstatus.New(s.reloadLast, cfg.OnlineW, cfg.FocusW, cfg.NetOptions)
	s.warmStart()
	return s
}

// warmStart consults cfg.Adapter.Load once, if configured, so a durable
// adapter can seed the value before the first network Get.
func (s *Single[T]) warmStart() {
	if s.cfg.Adapter.Load == nil {
		return
	}
	raw, ok, err := s.cfg.Adapter.Load(context.Background())
	if err != nil || !ok {
		return
	}
	value, assignable := decodeOne[T](raw)
	if !assignable {
		return
	}
	s.apply(value, true)
}

func (s *Single[T]) reloadLast(ctx context.Context) {
	s.mu.Lock()
	params := s.lastParams
	s.mu.Unlock()
	if _, err := s.Get(ctx, params); err != nil {
		s.reportError(err, "get", params.ToMap(), nil)
	}
}

func (s *Single[T]) reportError(err error, operation string, params map[string]any, rollback any) {
	meta := storeerr.Meta{Operation: operation, Params: params, RollbackData: rollback}
	if s.cfg.OnError != nil {
		s.cfg.OnError(err, operation, meta)
	}
	globalOnError(err, operation, meta)
}

// Value implements Subscribable.
func (s *Single[T]) Value() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Subscribe implements Subscribable, always at the root path.
func (s *Single[T]) Subscribe(listener func()) (unsubscribe func()) {
	return s.bus.Subscribe(path.Root(), listener)
}

// Proxy returns the root deep-observation handle (spec component C2) bound
// to this value: traversing it re-resolves against the live value on every
// read, so a child handle obtained before a Patch still reflects the
// reconciled value afterward.
func (s *Single[T]) Proxy() proxy.Handle {
	resolve := func(p path.Path) (any, bool) {
		value, has := s.Value()
		if !has {
			return nil, false
		}
		generic, ok := toGeneric(value)
		if !ok {
			return nil, false
		}
		return walkPath(generic, p)
	}
	return proxy.New(resolve, busSubscriber{s.bus})
}

// Status implements Store.
func (s *Single[T]) Status() Status {
	st := s.net.Status()
	return Status{
		IsLoading:      st.IsLoading,
		IsRevalidating: st.IsRevalidating,
		IsOffline:      st.IsOffline,
		Error:          st.Error,
		LastUpdated:    st.LastUpdated,
	}
}

// SubscribeStatus implements Store.
func (s *Single[T]) SubscribeStatus(listener func()) (unsubscribe func()) {
	return s.net.SubscribeStatus(listener)
}

// Dispose implements Store.
func (s *Single[T]) Dispose() {
	s.disposeOnce.Do(func() {
		s.net.Dispose()
	})
}

// Get fetches the record, deduplicating concurrent calls with equal
// params, serving a cache-fresh value directly, and revalidating in the
// background for a stale-but-usable cache hit.
func (s *Single[T]) Get(ctx context.Context, params adapter.Params) (T, error) {
	s.mu.Lock()
	s.lastParams = params
	s.mu.Unlock()

	key := adapter.StableKey(s.cfg.CacheKey, params)
	forced := adapter.IsForced(params)

	if s.cfg.Cache != nil && !forced {
		if res, ok := s.cfg.Cache.Get(key, s.cfg.TTL); ok {
			value, assignable := res.Data.(T)
			if assignable {
				s.apply(value, true)
				if res.Stale {
					s.net.SetStatus(mergeStatus(s.net.Status(), netstatus.Status{IsRevalidating: true}))
					go s.fetchAndStore(ctx, key, params, true)
				}
				return value, nil
			}
		}
	}

	return s.fetchDeduped(ctx, key, params)
}

func (s *Single[T]) fetchDeduped(ctx context.Context, key string, params adapter.Params) (T, error) {
	s.inflightMu.Lock()
	if call, ok := s.inflight[key]; ok {
		s.inflightMu.Unlock()
		<-call.done
		return call.value, call.err
	}
	call := &singleGetCall[T]{done: make(chan struct{})}
	s.inflight[key] = call
	s.inflightMu.Unlock()

	s.net.SetStatus(mergeStatus(s.net.Status(), netstatus.Status{IsLoading: true}))
	value, err := s.fetchAndStore(ctx, key, params, false)

	call.value, call.err = value, err
	close(call.done)

	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()

	return value, err
}

func (s *Single[T]) fetchAndStore(ctx context.Context, key string, params adapter.Params, revalidating bool) (T, error) {
	var zero T
	if s.cfg.Adapter.Get == nil {
		err := &storeerr.ConfigError{Operation: "get"}
		s.finishStatus(err)
		return zero, err
	}

	raw, err := s.cfg.Adapter.Get(ctx, params)
	if err != nil {
		s.finishStatus(err)
		if !revalidating {
			s.reportError(err, "get", params.ToMap(), nil)
		}
		return zero, err
	}

	value, ok := raw.(T)
	if !ok {
		err := fmt.Errorf("store: adapter returned %T, want %T", raw, zero)
		s.finishStatus(err)
		return zero, err
	}

	if s.cfg.Validator != nil {
		if verr := s.cfg.Validator.Validate(value); verr != nil {
			s.finishStatus(verr)
			return zero, verr
		}
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Set(key, value)
	}

	s.apply(value, true)
	s.finishStatus(nil)
	s.bus.Notify([]path.Path{path.Root()})
	return value, nil
}

func (s *Single[T]) finishStatus(err error) {
	current := s.net.Status()
	s.net.SetStatus(netstatus.Status{
		IsLoading:      false,
		IsRevalidating: false,
		IsOffline:      current.IsOffline,
		Error:          err,
		LastUpdated:    time.Now(),
	})
}

func (s *Single[T]) apply(value T, has bool) {
	s.mu.Lock()
	s.value = value
	s.hasValue = has
	s.mu.Unlock()
}

// Set optimistically replaces the value, calls the adapter, and reconciles
// on success or rolls back on failure.
func (s *Single[T]) Set(ctx context.Context, value T) (T, error) {
	var zero T
	if s.cfg.Validator != nil {
		if err := s.cfg.Validator.Validate(value); err != nil {
			return zero, err
		}
	}

	s.mu.Lock()
	previous, hadValue := s.value, s.hasValue
	s.mu.Unlock()

	s.apply(value, true)
	s.bus.Notify([]path.Path{path.Root()})

	if s.cfg.Adapter.Set == nil {
		return value, nil
	}

	raw, err := s.cfg.Adapter.Set(ctx, value)
	if err != nil {
		s.apply(previous, hadValue)
		s.bus.Notify([]path.Path{path.Root()})
		s.reportError(err, "set", nil, previous)
		return zero, err
	}

	final, ok := raw.(T)
	if !ok {
		final = value
	}
	s.apply(final, true)
	s.bus.Notify([]path.Path{path.Root()})
	s.persist(ctx, final)
	return final, nil
}

// Patch optimistically merges partial onto the current value, calls the
// adapter, and reconciles or rolls back, notifying precise sub-paths for
// the changed top-level keys when possible.
func (s *Single[T]) Patch(ctx context.Context, partial map[string]any) (T, error) {
	var zero T
	s.mu.Lock()
	previous, hadValue := s.value, s.hasValue
	s.mu.Unlock()

	merged, err := mergeInto(previous, partial)
	if err != nil {
		return zero, err
	}
	if s.cfg.Validator != nil {
		if verr := s.cfg.Validator.Validate(merged); verr != nil {
			return zero, verr
		}
	}

	s.apply(merged, true)
	s.notifyChangedKeys(previous, merged, partial)

	if s.cfg.Adapter.Patch == nil {
		return merged, nil
	}

	raw, err := s.cfg.Adapter.Patch(ctx, partial)
	if err != nil {
		s.apply(previous, hadValue)
		s.bus.Notify([]path.Path{path.Root()})
		s.reportError(err, "patch", partial, previous)
		return zero, err
	}

	final, ok := raw.(T)
	if !ok {
		final = merged
	}
	s.apply(final, true)
	s.bus.Notify([]path.Path{path.Root()})
	s.persist(ctx, final)
	return final, nil
}

func (s *Single[T]) notifyChangedKeys(before, after T, partial map[string]any) {
	keys, ok := changedTopLevelKeys(before, after, partial)
	if !ok || len(keys) == 0 {
		s.bus.Notify([]path.Path{path.Root()})
		return
	}
	changed := make([]path.Path, 0, len(keys))
	for _, k := range keys {
		changed = append(changed, path.Of(k))
	}
	s.bus.Notify(changed)
}

// Delete optimistically null-outs the value, calls the adapter, and
// restores on failure.
func (s *Single[T]) Delete(ctx context.Context, params adapter.Params) error {
	s.mu.Lock()
	previous, hadValue := s.value, s.hasValue
	s.mu.Unlock()

	var zero T
	s.apply(zero, false)
	s.bus.Notify([]path.Path{path.Root()})

	if s.cfg.Adapter.Delete == nil {
		return nil
	}

	if err := s.cfg.Adapter.Delete(ctx, params); err != nil {
		s.apply(previous, hadValue)
		s.bus.Notify([]path.Path{path.Root()})
		s.reportError(err, "delete", params.ToMap(), previous)
		return err
	}
	s.persist(ctx, zero)
	return nil
}

// Clear synchronously null-outs the value with a full notify; it never
// calls the adapter.
func (s *Single[T]) Clear() {
	var zero T
	s.apply(zero, false)
	s.bus.Notify([]path.Path{path.Root()})
}

func (s *Single[T]) persist(ctx context.Context, value T) {
	if s.cfg.Adapter.Save == nil {
		return
	}
	if err := s.cfg.Adapter.Save(ctx, value); err != nil {
		s.reportError(err, "save", nil, nil)
	}
}

func mergeStatus(current netstatus.Status, partial netstatus.Status) netstatus.Status {
	merged := current
	merged.IsLoading = partial.IsLoading || current.IsLoading
	merged.IsRevalidating = partial.IsRevalidating || current.IsRevalidating
	return merged
}
