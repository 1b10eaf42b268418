package adapter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/config"
)

func TestNewQueuedRemote_SerializesAcrossStores(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)

	var mu sync.Mutex
	var order []int
	next := 0
	running, maxRunning := 0, 0

	tr := func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		mu.Lock()
		next++
		order = append(order, next)
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return 200, []byte(`{}`), nil
	}

	q := adapter.NewQueue()
	defer q.Close()

	a1 := adapter.NewQueuedRemote(adapter.RemoteConfig{List: "/a", Transport: tr}, q)
	a2 := adapter.NewQueuedRemote(adapter.RemoteConfig{List: "/b", Transport: tr}, q)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); a1.Get(context.Background(), nil) }()
		go func() { defer wg.Done(); a2.Get(context.Background(), nil) }()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, order, 10)
	assert.Equal(t, 1, maxRunning, "calls through one shared Queue must never overlap")
}

func TestNewQueuedRemote_ErrorDoesNotStopQueue(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)

	calls := 0
	tr := func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		calls++
		if calls == 1 {
			return 500, []byte(`{"message":"boom"}`), nil
		}
		return 200, []byte(`{}`), nil
	}

	q := adapter.NewQueue()
	defer q.Close()
	a := adapter.NewQueuedRemote(adapter.RemoteConfig{List: "/a", Transport: tr}, q)

	_, err1 := a.Get(context.Background(), nil)
	assert.Error(t, err1)

	_, err2 := a.Get(context.Background(), nil)
	assert.NoError(t, err2)
}
