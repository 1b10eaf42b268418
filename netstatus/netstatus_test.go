package netstatus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/corestateio/corestate/netstatus"
)

type fakeOnlineWatcher struct {
	mu      sync.Mutex
	cb      func(bool)
	stopped bool
}

func (f *fakeOnlineWatcher) Watch(onChange func(bool)) func() {
	f.mu.Lock()
	f.cb = onChange
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}
}

func (f *fakeOnlineWatcher) fire(online bool) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(online)
	}
}

func TestReloadOnReconnect(t *testing.T) {
	watcher := &fakeOnlineWatcher{}
	reloads := 0
	m := netstatus.New(func(ctx context.Context) { reloads++ }, watcher, nil, netstatus.Options{ReloadOnReconnect: true})
	defer m.Dispose()

	watcher.fire(false) // go offline: no reload
	assert.Equal(t, 0, reloads)
	assert.True(t, m.Status().IsOffline)

	watcher.fire(true) // offline -> online: reload
	assert.Equal(t, 1, reloads)
	assert.False(t, m.Status().IsOffline)
}

func TestDispose_StopsWatchersAndTicker_NoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	watcher := &fakeOnlineWatcher{}
	reloads := 0
	m := netstatus.New(func(ctx context.Context) { reloads++ }, watcher, nil, netstatus.Options{
		ReloadInterval: 5 * time.Millisecond,
	})

	time.Sleep(20 * time.Millisecond)
	assert.True(t, reloads > 0)

	m.Dispose()
	m.Dispose() // idempotent
	assert.True(t, watcher.stopped)

	reloadsAfterDispose := reloads
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reloadsAfterDispose, reloads, "no reload ticks after dispose")
}

func TestSubscribeStatus_UnsubscribeStopsDelivery(t *testing.T) {
	m := netstatus.New(nil, nil, nil, netstatus.Options{})
	defer m.Dispose()

	calls := 0
	unsub := m.SubscribeStatus(func() { calls++ })
	m.SetStatus(netstatus.Status{IsLoading: true})
	assert.Equal(t, 1, calls)

	unsub()
	m.SetStatus(netstatus.Status{IsLoading: false})
	assert.Equal(t, 1, calls)
}
