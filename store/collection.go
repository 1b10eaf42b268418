package store

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/bus"
	"github.com/corestateio/corestate/cache"
	"github.com/corestateio/corestate/netstatus"
	"github.com/corestateio/corestate/path"
	"github.com/corestateio/corestate/proxy"
	"github.com/corestateio/corestate/schema"
	"github.com/corestateio/corestate/storeerr"
)

// CollectionConfig configures a Collection store.
type CollectionConfig struct {
	Adapter    adapter.Adapter
	Cache      *cache.Cache
	CacheKey   string
	TTL        time.Duration
	OnError    storeerr.Handler
	Validator  *schema.Validator
	PushMode   PushMode
	DedupeKey  func(item any) string
	MaxItems   int
	OnlineW    netstatus.OnlineWatcher
	FocusW     netstatus.FocusWatcher
	NetOptions netstatus.Options
}

// Collection holds a keyed, ordered set of records of type T (spec
// component C7), serving reactive reads at collection-, record-, and
// field-granularity and orchestrating optimistic mutations.
type Collection[T Identifiable] struct {
	mu      sync.Mutex
	records map[string]T
	order   []string

	cfg CollectionConfig
	bus *bus.Bus
	net *netstatus.Monitor

	lastParams adapter.Params

	// inflight counts in-progress optimistic Patch calls per record id,
	// implementing the pending-optimistic-wins arbitration decision: a push
	// payload for a record with inflight[id] > 0 is buffered in pendingPush
	// and replayed once the count returns to zero.
	inflight    map[string]int
	pendingPush map[string]T

	pushUnsub func()

	disposeOnce sync.Once
}

// NewCollection constructs a Collection and, if cfg.Adapter.Subscribe is
// configured, immediately starts the push subscription.
func NewCollection[T Identifiable](cfg CollectionConfig) *Collection[T] {
	c := &Collection[T]{
		cfg:         cfg,
		bus:         bus.New(),
		records:     make(map[string]T),
		inflight:    make(map[string]int),
		pendingPush: make(map[string]T),
	}
	c.net = netstatus.New(c.reloadLast, cfg.OnlineW, cfg.FocusW, cfg.NetOptions)
	c.warmStart()
	if cfg.Adapter.Subscribe != nil {
		c.pushUnsub = cfg.Adapter.Subscribe(c.handlePush)
	}
	return c
}

// warmStart consults cfg.Adapter.Load once, if configured, so a durable
// adapter can seed state before the first network Get.
func (c *Collection[T]) warmStart() {
	if c.cfg.Adapter.Load == nil {
		return
	}
	raw, ok, err := c.cfg.Adapter.Load(context.Background())
	if err != nil || !ok {
		return
	}
	list, ok := toSlice[T](raw)
	if !ok {
		return
	}
	c.replaceAll(list)
}

func (c *Collection[T]) reloadLast(ctx context.Context) {
	c.mu.Lock()
	params := c.lastParams
	c.mu.Unlock()
	if _, err := c.Get(ctx, params); err != nil {
		c.reportError(err, "get", params.ToMap(), nil)
	}
}

func (c *Collection[T]) reportError(err error, operation string, params map[string]any, rollback any) {
	meta := storeerr.Meta{Operation: operation, Params: params, RollbackData: rollback}
	if c.cfg.OnError != nil {
		c.cfg.OnError(err, operation, meta)
	}
	globalOnError(err, operation, meta)
}

// Value implements Subscribable: the ordered list of records.
func (c *Collection[T]) Value() (any, bool) {
	return c.list(), true
}

// Subscribe implements Subscribable, at the root path.
func (c *Collection[T]) Subscribe(listener func()) (unsubscribe func()) {
	return c.bus.Subscribe(path.Root(), listener)
}

// Proxy returns the root deep-observation handle (spec component C2) bound
// to this collection: traversing it re-resolves against the live records on
// every read. A collection addresses children by id, not position (the
// insertion order c.order tracks is orthogonal to how a record is reached),
// so Key(id) is the right way to descend into one record; obtain ids in
// order via IDs() and Iterate rather than Index.
func (c *Collection[T]) Proxy() proxy.Handle {
	resolve := func(p path.Path) (any, bool) {
		generic, ok := toGeneric(c.recordsByID())
		if !ok {
			return nil, false
		}
		return walkPath(generic, p)
	}
	return proxy.New(resolve, busSubscriber{c.bus})
}

func (c *Collection[T]) recordsByID() map[string]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]T, len(c.records))
	for id, v := range c.records {
		out[id] = v
	}
	return out
}

// IDs returns the current record ids in insertion order, for driving
// Proxy().Iterate.
func (c *Collection[T]) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Status implements Store.
func (c *Collection[T]) Status() Status {
	st := c.net.Status()
	return Status{
		IsLoading:      st.IsLoading,
		IsRevalidating: st.IsRevalidating,
		IsOffline:      st.IsOffline,
		Error:          st.Error,
		LastUpdated:    st.LastUpdated,
	}
}

// SubscribeStatus implements Store.
func (c *Collection[T]) SubscribeStatus(listener func()) (unsubscribe func()) {
	return c.net.SubscribeStatus(listener)
}

// Dispose implements Store: stops the push subscription and the status
// monitor. Safe to call any number of times.
func (c *Collection[T]) Dispose() {
	c.disposeOnce.Do(func() {
		if c.pushUnsub != nil {
			c.pushUnsub()
		}
		c.net.Dispose()
	})
}

func (c *Collection[T]) list() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

func (c *Collection[T]) itemCacheKey(id string) string {
	return c.cfg.CacheKey + ":item:" + id
}

// Get fetches the whole list. Cache key is "<CacheKey>:<stable params>";
// "_force" bypasses the cache and is stripped before the URL builds.
func (c *Collection[T]) Get(ctx context.Context, params adapter.Params) ([]T, error) {
	c.mu.Lock()
	c.lastParams = params
	c.mu.Unlock()

	key := adapter.StableKey(c.cfg.CacheKey, params)
	forced := adapter.IsForced(params)

	if c.cfg.Cache != nil && !forced {
		if res, ok := c.cfg.Cache.Get(key, c.cfg.TTL); ok {
			if list, ok := res.Data.([]T); ok {
				c.replaceAll(list)
				if res.Stale {
					go c.fetchList(ctx, key, params, true)
				}
				return list, nil
			}
		}
	}

	return c.fetchList(ctx, key, params, false)
}

func (c *Collection[T]) fetchList(ctx context.Context, key string, params adapter.Params, revalidating bool) ([]T, error) {
	if c.cfg.Adapter.Get == nil {
		err := &storeerr.ConfigError{Operation: "get"}
		c.reportError(err, "get", params.ToMap(), nil)
		return nil, err
	}

	c.net.SetStatus(mergeStatus(c.net.Status(), netstatus.Status{IsLoading: !revalidating, IsRevalidating: revalidating}))
	raw, err := c.cfg.Adapter.Get(ctx, params)
	if err != nil {
		c.finishStatus(err)
		if !revalidating {
			c.reportError(err, "get", params.ToMap(), nil)
		}
		return nil, err
	}

	list, ok := toSlice[T](raw)
	if !ok {
		err := &storeerr.ParseError{}
		c.finishStatus(err)
		return nil, err
	}

	if c.cfg.Cache != nil {
		c.cfg.Cache.Set(key, list)
	}
	c.replaceAll(list)
	c.finishStatus(nil)
	c.bus.Notify([]path.Path{path.Root()})
	return list, nil
}

func (c *Collection[T]) finishStatus(err error) {
	current := c.net.Status()
	c.net.SetStatus(netstatus.Status{
		IsOffline:   current.IsOffline,
		Error:       err,
		LastUpdated: time.Now(),
	})
}

func (c *Collection[T]) replaceAll(list []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]T, len(list))
	c.order = make([]string, 0, len(list))
	for _, item := range list {
		id := item.ID()
		c.records[id] = item
		c.order = append(c.order, id)
	}
}

// GetOne fetches a single record and merges it into the collection:
// existing id updated in place preserving order, new id appended to the
// end.
func (c *Collection[T]) GetOne(ctx context.Context, params adapter.Params) (T, error) {
	var zero T
	if c.cfg.Adapter.GetOne == nil {
		err := &storeerr.ConfigError{Operation: "getOne"}
		c.reportError(err, "getOne", params.ToMap(), nil)
		return zero, err
	}

	raw, err := c.cfg.Adapter.GetOne(ctx, params)
	if err != nil {
		c.reportError(err, "getOne", params.ToMap(), nil)
		return zero, err
	}

	item, ok := decodeOne[T](raw)
	if !ok {
		return zero, &storeerr.ParseError{}
	}

	c.upsertOne(item)
	if c.cfg.Cache != nil {
		c.cfg.Cache.Set(c.itemCacheKey(item.ID()), item)
	}
	c.bus.Notify([]path.Path{path.Of(item.ID())})
	return item, nil
}

func (c *Collection[T]) upsertOne(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := item.ID()
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = item
}

// Create is never optimistic: the server assigns ids. The returned record
// is appended and every list cache for this store is invalidated.
func (c *Collection[T]) Create(ctx context.Context, data T) (T, error) {
	var zero T
	if c.cfg.Adapter.Create == nil {
		err := &storeerr.ConfigError{Operation: "create"}
		c.reportError(err, "create", nil, nil)
		return zero, err
	}
	if c.cfg.Validator != nil {
		if err := c.cfg.Validator.Validate(data); err != nil {
			return zero, err
		}
	}

	raw, err := c.cfg.Adapter.Create(ctx, data)
	if err != nil {
		c.reportError(err, "create", nil, nil)
		return zero, err
	}

	created, ok := decodeOne[T](raw)
	if !ok {
		created = data
	}

	c.mu.Lock()
	c.records[created.ID()] = created
	c.order = append(c.order, created.ID())
	c.mu.Unlock()

	if c.cfg.Cache != nil {
		c.cfg.Cache.ClearPrefix(c.cfg.CacheKey)
	}
	c.bus.Notify([]path.Path{path.Root()})
	c.persist(ctx)
	return created, nil
}

// Patch merges partial onto the record at id, optimistically publishing
// before the adapter call and reconciling or rolling back afterward, per
// the pending-optimistic-wins arbitration with concurrent push payloads.
func (c *Collection[T]) Patch(ctx context.Context, id string, partial map[string]any) (T, error) {
	var zero T

	c.mu.Lock()
	previous, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return zero, &storeerr.NotFoundError{ID: id}
	}
	c.mu.Unlock()

	merged, err := mergeInto(previous, partial)
	if err != nil {
		return zero, err
	}
	if c.cfg.Validator != nil {
		if verr := c.cfg.Validator.Validate(merged); verr != nil {
			return zero, verr
		}
	}

	c.mu.Lock()
	c.records[id] = merged
	c.inflight[id]++
	c.mu.Unlock()

	if c.cfg.Cache != nil {
		c.cfg.Cache.Clear(c.itemCacheKey(id))
	}
	c.notifyPatchedKeys(id, previous, merged, partial)

	if c.cfg.Adapter.Patch == nil {
		c.settleInflight(id)
		return merged, nil
	}

	wire := map[string]any{"id": id}
	for k, v := range partial {
		wire[k] = v
	}
	raw, err := c.cfg.Adapter.Patch(ctx, wire)
	if err != nil {
		c.mu.Lock()
		c.records[id] = previous
		c.mu.Unlock()
		c.bus.Notify([]path.Path{path.Of(id)})
		c.settleInflight(id)
		c.reportError(err, "patch", wire, previous)
		return zero, err
	}

	final, ok := decodeOne[T](raw)
	if !ok {
		final = merged
	}
	c.mu.Lock()
	c.records[id] = final
	c.mu.Unlock()
	c.bus.Notify([]path.Path{path.Of(id)})
	c.settleInflight(id)
	c.persist(ctx)
	return final, nil
}

func (c *Collection[T]) notifyPatchedKeys(id string, before, after T, partial map[string]any) {
	keys, ok := changedTopLevelKeys(before, after, partial)
	if !ok || len(keys) == 0 {
		c.bus.Notify([]path.Path{path.Of(id)})
		return
	}
	if len(keys) == 1 {
		c.bus.Notify([]path.Path{path.Of(id, keys[0])})
		return
	}
	changed := make([]path.Path, 0, len(keys))
	for _, k := range keys {
		changed = append(changed, path.Of(id, k))
	}
	c.bus.Notify(changed)
}

// settleInflight decrements the in-flight counter for id and, once it
// returns to zero, replays any push payload that arrived while the patch
// was in flight.
func (c *Collection[T]) settleInflight(id string) {
	c.mu.Lock()
	c.inflight[id]--
	if c.inflight[id] <= 0 {
		delete(c.inflight, id)
		pending, hasPending := c.pendingPush[id]
		if hasPending {
			delete(c.pendingPush, id)
			c.records[id] = pending
		}
		c.mu.Unlock()
		if hasPending {
			c.bus.Notify([]path.Path{path.Of(id)})
		}
		return
	}
	c.mu.Unlock()
}

// Delete removes the record at id, optimistically, restoring it at its
// captured index on adapter failure.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	previous, ok := c.records[id]
	index := slices.Index(c.order, id)
	if !ok {
		c.mu.Unlock()
		return &storeerr.NotFoundError{ID: id}
	}
	delete(c.records, id)
	c.order = slices.Delete(c.order, index, index+1)
	c.mu.Unlock()

	if c.cfg.Cache != nil {
		c.cfg.Cache.ClearPrefix(c.cfg.CacheKey)
	}
	c.bus.Notify([]path.Path{path.Root()})

	if c.cfg.Adapter.Delete == nil {
		return nil
	}

	if err := c.cfg.Adapter.Delete(ctx, adapter.NewParams("id", id)); err != nil {
		c.mu.Lock()
		c.records[id] = previous
		if index >= len(c.order) {
			c.order = append(c.order, id)
		} else {
			c.order = slices.Insert(c.order, index, id)
		}
		c.mu.Unlock()
		c.bus.Notify([]path.Path{path.Root()})
		c.reportError(err, "delete", map[string]any{"id": id}, previous)
		return err
	}
	c.persist(ctx)
	return nil
}

// Clear drops every record, invalidates every cache entry for this store,
// and notifies subscribers at the root. It never calls the adapter.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	c.records = make(map[string]T)
	c.order = nil
	c.mu.Unlock()

	if c.cfg.Cache != nil {
		c.cfg.Cache.ClearPrefix(c.cfg.CacheKey)
	}
	c.bus.Notify([]path.Path{path.Root()})
}

func (c *Collection[T]) persist(ctx context.Context) {
	if c.cfg.Adapter.Save == nil {
		return
	}
	if err := c.cfg.Adapter.Save(ctx, c.list()); err != nil {
		c.reportError(err, "save", nil, nil)
	}
}

// handlePush applies one push payload per cfg.PushMode. Records whose id
// has an in-flight Patch are buffered in pendingPush instead of being
// applied immediately (the §4.7.1 arbitration decision); everything else
// is applied and notified right away.
func (c *Collection[T]) handlePush(payload any) {
	items, ok := toSlice[T](payload)
	if !ok {
		return
	}

	c.mu.Lock()
	before := len(c.records)
	target := c.pushTarget(items)
	removed := len(c.records) < before
	changed := make([]string, 0, len(target))
	for id, item := range target {
		if c.inflight[id] > 0 {
			c.pendingPush[id] = item
			continue
		}
		if existing, has := c.records[id]; !has || !equalJSON(existing, item) {
			if !has {
				c.order = append(c.order, id)
			}
			c.records[id] = item
			changed = append(changed, id)
		}
	}
	if c.cfg.MaxItems > 0 && len(c.order) > c.cfg.MaxItems {
		c.order = lo.Uniq(c.order)
	}
	if c.cfg.MaxItems > 0 && len(c.order) > c.cfg.MaxItems {
		overflow := len(c.order) - c.cfg.MaxItems
		for _, id := range c.order[:overflow] {
			delete(c.records, id)
		}
		c.order = c.order[overflow:]
	}
	c.mu.Unlock()

	if len(changed) == 0 && !removed {
		return
	}
	c.bus.Notify([]path.Path{path.Root()})
}

// pushTarget computes what each incoming item's id should become under the
// configured PushMode. Caller holds c.mu.
func (c *Collection[T]) pushTarget(items []T) map[string]T {
	target := make(map[string]T, len(items))

	switch c.cfg.PushMode {
	case ReplaceMode:
		for _, item := range items {
			target[item.ID()] = item
		}
		for id := range c.records {
			if _, present := target[id]; !present && c.inflight[id] == 0 {
				delete(c.records, id)
				c.order = removeID(c.order, id)
			}
		}
	case AppendMode:
		seen := make(map[string]struct{}, len(c.records))
		for _, existing := range c.records {
			seen[c.dedupeKey(existing)] = struct{}{}
		}
		fresh := lo.Filter(items, func(item T, _ int) bool {
			key := c.dedupeKey(item)
			if _, exists := seen[key]; exists {
				return false
			}
			seen[key] = struct{}{}
			return true
		})
		for _, item := range fresh {
			target[item.ID()] = item
		}
	default: // UpsertMode
		for _, item := range items {
			target[item.ID()] = item
		}
	}
	return target
}

func (c *Collection[T]) dedupeKey(item T) string {
	if c.cfg.DedupeKey != nil {
		return c.cfg.DedupeKey(item)
	}
	return item.ID()
}

func removeID(order []string, id string) []string {
	idx := slices.Index(order, id)
	if idx < 0 {
		return order
	}
	return slices.Delete(order, idx, idx+1)
}
