package proxy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corestateio/corestate/bus"
	"github.com/corestateio/corestate/path"
	"github.com/corestateio/corestate/proxy"
)

func resolverOver(data map[string]any) proxy.Resolver {
	return func(p path.Path) (any, bool) {
		var cur any = data
		for _, seg := range p {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := m[seg.String()]
			if !ok {
				return nil, false
			}
			cur = v
		}
		return cur, true
	}
}

func TestHandle_LazyTraversalAndPathRecording(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{
			"3": map[string]any{
				"name": "Ann",
			},
		},
	}
	b := bus.New()
	root := proxy.New(resolverOver(data), b)

	h := root.Key("a").Index(3).Key("name")
	assert.Equal(t, "a/3/name", h.Path().String())
	assert.Equal(t, "Ann", h.String())
}

func TestHandle_NumericStringCoercionIdentity(t *testing.T) {
	root := proxy.New(nil, nil)
	viaIndex := root.Index(3)
	viaKey := root.Key("3")
	assert.True(t, viaIndex.Path().Equal(viaKey.Path()))
}

func TestHandle_IdentityMarker(t *testing.T) {
	root := proxy.New(nil, nil)
	assert.True(t, proxy.Is(root))
	assert.False(t, proxy.Is("plain string"))
	assert.False(t, proxy.Is(map[string]any{}))
}

func TestHandle_HoleTraversal(t *testing.T) {
	data := map[string]any{}
	root := proxy.New(resolverOver(data), bus.New())

	h := root.Key("missing").Key("name")
	v, found := h.Value()
	assert.False(t, found)
	assert.Nil(t, v)
	// the handle is still a valid subscription target
	assert.Equal(t, "missing/name", h.Path().String())
}

func TestHandle_SubscribeDelegatesToBus(t *testing.T) {
	b := bus.New()
	root := proxy.New(resolverOver(map[string]any{}), b)

	calls := 0
	unsub := root.Key("u1").Key("name").Subscribe(func() { calls++ })
	b.Notify([]path.Path{path.Of("u1", "name")})
	assert.Equal(t, 1, calls)

	unsub()
	b.Notify([]path.Path{path.Of("u1", "name")})
	assert.Equal(t, 1, calls)
}

func TestHandle_Iterate_InsertionOrder(t *testing.T) {
	root := proxy.New(resolverOver(map[string]any{}), bus.New())
	entries := root.Iterate([]string{"u2", "u1", "u3"})
	assert.Equal(t, []string{"u2", "u1", "u3"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, "u2", entries[0].Handle.Path().String())
}
