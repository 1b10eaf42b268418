package adapter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestateio/corestate/adapter"
)

// memKV is an in-memory adapter.KVStore used only for tests; the real
// implementation lives in kvstore/sqlitekv.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestNewDurable_SaveThenLoadRoundTrip(t *testing.T) {
	kv := newMemKV()
	a := adapter.NewDurable(adapter.DurableConfig{KV: kv, Key: "widgets"})

	require.NoError(t, a.Save(context.Background(), map[string]any{"id": "1"}))

	v, found, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]any{"id": "1"}, v)
}

func TestNewDurable_LoadMissingReturnsDefault(t *testing.T) {
	kv := newMemKV()
	a := adapter.NewDurable(adapter.DurableConfig{KV: kv, Key: "widgets", Default: "fallback"})

	v, found, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "fallback", v)
}

func TestNewDurable_DeleteRemovesKey(t *testing.T) {
	kv := newMemKV()
	a := adapter.NewDurable(adapter.DurableConfig{KV: kv, Key: "widgets"})
	require.NoError(t, a.Save(context.Background(), "v"))

	require.NoError(t, a.Delete(context.Background(), nil))

	_, found, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
