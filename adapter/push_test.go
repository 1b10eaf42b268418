package adapter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/corestateio/corestate/adapter"
)

func TestNewPush_DeliversDecodedEvents(t *testing.T) {
	var mu sync.Mutex
	var received []any
	connects := 0

	transport := func(ctx context.Context, url string, onEvent func(adapter.PushEvent)) error {
		mu.Lock()
		connects++
		mu.Unlock()
		onEvent(adapter.PushEvent{Name: "update", Data: []byte(`{"id":"1"}`)})
		<-ctx.Done()
		return ctx.Err()
	}

	a := adapter.NewPush(adapter.PushConfig{URL: "ws://test", Transport: transport})

	var gotOnce sync.Once
	got := make(chan any, 4)
	unsub := a.Subscribe(func(payload any) {
		got <- payload
		gotOnce.Do(func() {})
	})
	defer unsub()

	select {
	case payload := <-got:
		assert.Equal(t, map[string]any{"id": "1"}, payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push event")
	}
}

func TestNewPush_FiltersByEventName(t *testing.T) {
	transport := func(ctx context.Context, url string, onEvent func(adapter.PushEvent)) error {
		onEvent(adapter.PushEvent{Name: "noise", Data: []byte(`{"id":"1"}`)})
		onEvent(adapter.PushEvent{Name: "update", Data: []byte(`{"id":"2"}`)})
		<-ctx.Done()
		return ctx.Err()
	}

	a := adapter.NewPush(adapter.PushConfig{URL: "ws://test", Transport: transport, EventName: "update"})

	got := make(chan any, 4)
	unsub := a.Subscribe(func(payload any) { got <- payload })
	defer unsub()

	select {
	case payload := <-got:
		assert.Equal(t, map[string]any{"id": "2"}, payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered push event")
	}

	select {
	case <-got:
		t.Fatal("unexpected second event: filter should have dropped 'noise'")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewPush_UnsubscribeLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := func(ctx context.Context, url string, onEvent func(adapter.PushEvent)) error {
		onEvent(adapter.PushEvent{Name: "update", Data: []byte(`{"id":"1"}`)})
		<-ctx.Done()
		return ctx.Err()
	}

	a := adapter.NewPush(adapter.PushConfig{URL: "ws://test", Transport: transport, Heartbeat: 10 * time.Millisecond})
	unsub := a.Subscribe(func(payload any) {})
	time.Sleep(20 * time.Millisecond) // let runPushLoop and its heartbeatWatchdog start
	unsub()
	time.Sleep(20 * time.Millisecond) // let runPushLoop observe ctx cancellation and return
}

func TestNewPush_RunsTransportWithMaxAttemptsSet(t *testing.T) {
	// backoff is unexported, so this test does not measure the delay; it
	// drives a short NewPush reconnect cycle with MaxAttempts set and checks
	// that the transport ran.
	attempts := 0
	transport := func(ctx context.Context, url string, onEvent func(adapter.PushEvent)) error {
		attempts++
		return nil // returning ends the attempt; runPushLoop reconnects after a backoff delay
	}

	a := adapter.NewPush(adapter.PushConfig{URL: "ws://test", Transport: transport, MaxAttempts: 2})
	unsub := a.Subscribe(func(payload any) {})
	time.Sleep(50 * time.Millisecond)
	unsub()

	assert.GreaterOrEqual(t, attempts, 1)
}
