package store_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/cache"
	"github.com/corestateio/corestate/store"
)

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestSingle_GetCachesAndDeduplicatesConcurrentCalls(t *testing.T) {
	var calls int32
	a := adapter.Adapter{
		Get: func(ctx context.Context, params adapter.Params) (any, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(10 * time.Millisecond)
			return profile{ID: "1", Name: "Ann"}, nil
		},
	}

	s := store.NewSingle[profile](store.SingleConfig{
		Adapter:  a,
		Cache:    cache.New(10),
		CacheKey: "profile",
		TTL:      time.Minute,
	})
	defer s.Dispose()

	done := make(chan profile, 2)
	go func() { v, _ := s.Get(context.Background(), nil); done <- v }()
	go func() { v, _ := s.Get(context.Background(), nil); done <- v }()

	v1 := <-done
	v2 := <-done
	assert.Equal(t, "Ann", v1.Name)
	assert.Equal(t, "Ann", v2.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a subsequent Get should be served from cache without another adapter call
	_, err := s.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSingle_SetRollsBackOnFailure(t *testing.T) {
	a := adapter.Adapter{
		Set: func(ctx context.Context, data any) (any, error) {
			return nil, assertError{"boom"}
		},
	}
	s := store.NewSingle[profile](store.SingleConfig{Adapter: a})
	defer s.Dispose()

	_, _ = s.Set(context.Background(), profile{ID: "1", Name: "first"})

	notified := 0
	unsub := store.Subscribe(s, func() { notified++ })
	defer unsub()

	_, err := s.Set(context.Background(), profile{ID: "1", Name: "second"})
	require.Error(t, err)

	v := store.Snapshot(s).(profile)
	assert.Equal(t, "first", v.Name, "failed set must roll back to the previous value")
}

func TestSingle_PatchMergesPartialOntoValue(t *testing.T) {
	a := adapter.Adapter{
		Patch: func(ctx context.Context, partial any) (any, error) {
			return nil, nil // adapter echoes nothing; keep the optimistic merge
		},
	}
	s := store.NewSingle[profile](store.SingleConfig{Adapter: a})
	defer s.Dispose()

	_, _ = s.Set(context.Background(), profile{ID: "1", Name: "Ann", Age: 30})

	v, err := s.Patch(context.Background(), map[string]any{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, 31, v.Age)
	assert.Equal(t, "Ann", v.Name)
}

func TestSingle_ClearIsSynchronousAndNeverCallsAdapter(t *testing.T) {
	called := false
	a := adapter.Adapter{
		Delete: func(ctx context.Context, params adapter.Params) error { called = true; return nil },
	}
	s := store.NewSingle[profile](store.SingleConfig{Adapter: a})
	defer s.Dispose()

	_, _ = s.Set(context.Background(), profile{ID: "1"})
	s.Clear()

	v := store.Snapshot(s).(profile)
	assert.Equal(t, profile{}, v, "cleared store should return the zero value")
	assert.False(t, called)
}

func TestSingle_LoadWarmStartsStateAndSaveFollowsMutations(t *testing.T) {
	var saved profile
	var saveCalls int32
	a := adapter.Adapter{
		Load: func(ctx context.Context) (any, bool, error) {
			return profile{ID: "1", Name: "seeded"}, true, nil
		},
		Save: func(ctx context.Context, value any) error {
			atomic.AddInt32(&saveCalls, 1)
			saved = value.(profile)
			return nil
		},
		Patch: func(ctx context.Context, partial any) (any, error) {
			return nil, nil
		},
	}
	s := store.NewSingle[profile](store.SingleConfig{Adapter: a})
	defer s.Dispose()

	v := store.Snapshot(s).(profile)
	require.Equal(t, "seeded", v.Name, "Load must seed state before any Get is issued")

	_, err := s.Patch(context.Background(), map[string]any{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&saveCalls))
	assert.Equal(t, 31, saved.Age)
}

func TestSingle_ProxyReResolvesAfterPatch(t *testing.T) {
	a := adapter.Adapter{
		Patch: func(ctx context.Context, partial any) (any, error) {
			return profile{ID: "1", Name: "Ann", Age: 31}, nil
		},
	}
	s := store.NewSingle[profile](store.SingleConfig{Adapter: a})
	defer s.Dispose()

	_, err := s.Set(context.Background(), profile{ID: "1", Name: "Ann", Age: 30})
	require.NoError(t, err)

	handle := s.Proxy()
	nameHandle := handle.Key("name")
	assert.Equal(t, "Ann", nameHandle.String())

	notified := 0
	unsub := handle.Subscribe(func() { notified++ })
	defer unsub()

	_, err = s.Patch(context.Background(), map[string]any{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, 2, notified, "a root handle observes the optimistic notify and the reconcile notify")

	age, ok := handle.Key("age").Int()
	require.True(t, ok)
	assert.Equal(t, 31, age, "re-resolving the same handle after Patch must reflect the new value")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
