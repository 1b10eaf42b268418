// Package netstatus implements the network status monitor (spec component
// C3): it owns the StoreStatus record for one store and emits status-only
// notifications, separate from the data-change notifications of package
// bus.
//
// The reconnect/ticker/dispose lifecycle is modeled on the teacher's
// sse.SubscriberHandler.SSEHandler (sse/sse.go), which runs a 15-second
// keep-alive ticker alongside event delivery and tears both down on client
// disconnect; here a select loop over a ticker and a done channel drives the
// interval reload, while the online and focus watchers call back directly.
package netstatus

import (
	"context"
	"sync"
	"time"
)

// Status is the small status record of spec §4.6: isLoading,
// isRevalidating, isOffline, error, lastUpdated.
type Status struct {
	IsLoading      bool
	IsRevalidating bool
	IsOffline      bool
	Error          error
	LastUpdated    time.Time
}

// OnlineWatcher notifies onChange(true) when connectivity is regained and
// onChange(false) when it is lost. It is one of the out-of-scope host
// collaborators; the monitor only needs a way to watch and to stop
// watching.
type OnlineWatcher interface {
	Watch(onChange func(online bool)) (stop func())
}

// FocusWatcher notifies onFocus when the host application regains focus
// (e.g. a window or tab becoming active again).
type FocusWatcher interface {
	Watch(onFocus func()) (stop func())
}

// ReloadFunc re-issues whatever request a store last made, using its last
// parameters. Supplied by the store that owns this Monitor.
type ReloadFunc func(ctx context.Context)

// Options configures a Monitor's automatic reload triggers.
type Options struct {
	ReloadOnReconnect bool
	ReloadOnFocus     bool
	ReloadInterval    time.Duration // 0 disables the interval trigger
}

// Monitor owns one store's Status and fires the reload callback on
// reconnect, on focus-gain, and/or on a repeating timer, per the configured
// Options.
type Monitor struct {
	mu      sync.Mutex
	status  Status
	reload  ReloadFunc
	opts    Options
	onlineW OnlineWatcher
	focusW  FocusWatcher

	statusListeners map[int]func()
	nextListenerID  int

	stopOnline func()
	stopFocus  func()
	ticker     *time.Ticker
	tickerDone chan struct{}

	disposeOnce sync.Once
}

// New constructs a Monitor and immediately registers host watchers for
// online/offline transitions, focus-gain, and (if configured) a periodic
// interval.
func New(reload ReloadFunc, onlineW OnlineWatcher, focusW FocusWatcher, opts Options) *Monitor {
	m := &Monitor{
		reload:          reload,
		opts:            opts,
		onlineW:         onlineW,
		focusW:          focusW,
		statusListeners: make(map[int]func()),
	}

	if onlineW != nil {
		m.stopOnline = onlineW.Watch(func(online bool) {
			wasOffline := m.setOffline(!online)
			if online && wasOffline && opts.ReloadOnReconnect && m.reload != nil {
				m.reload(context.Background())
			}
		})
	}

	if focusW != nil && opts.ReloadOnFocus {
		m.stopFocus = focusW.Watch(func() {
			if m.reload != nil {
				m.reload(context.Background())
			}
		})
	}

	if opts.ReloadInterval > 0 {
		m.ticker = time.NewTicker(opts.ReloadInterval)
		m.tickerDone = make(chan struct{})
		go m.runTicker()
	}

	return m
}

func (m *Monitor) runTicker() {
	for {
		select {
		case <-m.ticker.C:
			if m.reload != nil {
				m.reload(context.Background())
			}
		case <-m.tickerDone:
			return
		}
	}
}

// setOffline updates IsOffline and fires status listeners; it returns the
// previous IsOffline value so callers can detect an offline->online edge.
func (m *Monitor) setOffline(offline bool) bool {
	m.mu.Lock()
	was := m.status.IsOffline
	m.status.IsOffline = offline
	listeners := m.snapshotListeners()
	m.mu.Unlock()
	for _, l := range listeners {
		l()
	}
	return was
}

// SetStatus replaces the current status with partial and fires all status
// subscribers. It does not merge field by field: every field of partial is
// applied, so callers pass the current value for anything they don't want
// to change (the store layer reads Status() and builds the next value
// before calling this).
func (m *Monitor) SetStatus(partial Status) {
	m.mu.Lock()
	m.status = partial
	listeners := m.snapshotListeners()
	m.mu.Unlock()
	for _, l := range listeners {
		l()
	}
}

// Status returns the current status snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) snapshotListeners() []func() {
	out := make([]func(), 0, len(m.statusListeners))
	for _, l := range m.statusListeners {
		out = append(out, l)
	}
	return out
}

// SubscribeStatus registers a status-only listener, independent of the
// path-scoped data bus (spec §4.3).
func (m *Monitor) SubscribeStatus(listener func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.statusListeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.statusListeners, id)
			m.mu.Unlock()
		})
	}
}

// Dispose detaches all host listeners and cancels any timers. Safe to call
// any number of times.
func (m *Monitor) Dispose() {
	m.disposeOnce.Do(func() {
		if m.stopOnline != nil {
			m.stopOnline()
		}
		if m.stopFocus != nil {
			m.stopFocus()
		}
		if m.ticker != nil {
			m.ticker.Stop()
			close(m.tickerDone)
		}
	})
}
