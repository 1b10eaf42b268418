package bus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corestateio/corestate/bus"
	"github.com/corestateio/corestate/path"
)

func TestSubscribe_OnFirstSubscribeFiresOnce(t *testing.T) {
	fired := 0
	b := bus.New(bus.WithOnFirstSubscribe(func() { fired++ }))

	unsub1 := b.Subscribe(path.Of("a"), func() {})
	unsub2 := b.Subscribe(path.Of("b"), func() {})
	assert.Equal(t, 1, fired)
	unsub1()
	unsub2()
}

func TestUnsubscribe_IsIdempotentAndPermanent(t *testing.T) {
	b := bus.New()
	calls := 0
	unsub := b.Subscribe(path.Of("u1"), func() { calls++ })

	b.Notify([]path.Path{path.Of("u1")})
	assert.Equal(t, 1, calls)

	unsub()
	unsub() // idempotent, must not panic or double count

	b.Notify([]path.Path{path.Of("u1")})
	assert.Equal(t, 1, calls, "listener must never fire after unsubscribe")
}

func TestNotify_PathOverlapScenario(t *testing.T) {
	// Scenario from spec §8.3.
	b := bus.New()
	var root, u1, u1Name, u1Email, u2 int

	b.Subscribe(path.Root(), func() { root++ })
	b.Subscribe(path.Of("u1"), func() { u1++ })
	b.Subscribe(path.Of("u1", "name"), func() { u1Name++ })
	b.Subscribe(path.Of("u1", "email"), func() { u1Email++ })
	b.Subscribe(path.Of("u2"), func() { u2++ })

	b.Notify([]path.Path{path.Of("u1", "name")})

	assert.Equal(t, 1, root)
	assert.Equal(t, 1, u1)
	assert.Equal(t, 1, u1Name)
	assert.Equal(t, 0, u1Email)
	assert.Equal(t, 0, u2)
}

func TestNotify_IdempotentPerCycle(t *testing.T) {
	// A single subscriber whose path matches two of the changed paths in one
	// notify call must still fire exactly once (spec §3.2 last bullet).
	b := bus.New()
	calls := 0
	b.Subscribe(path.Of("u1"), func() { calls++ })

	b.Notify([]path.Path{path.Of("u1", "name"), path.Of("u1", "email")})
	assert.Equal(t, 1, calls)
}

func TestNotify_RootChangeNotifiesEveryBucket(t *testing.T) {
	b := bus.New()
	var a, b2 int
	b.Subscribe(path.Of("a"), func() { a++ })
	b.Subscribe(path.Of("b"), func() { b2++ })

	b.Notify([]path.Path{path.Root()})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b2)
}

func TestNotify_ListenerPanicDoesNotStopOthers(t *testing.T) {
	b := bus.New()
	var panicked any
	b.OnPanic = func(r any) { panicked = r }

	ran := false
	b.Subscribe(path.Of("x"), func() { panic("boom") })
	b.Subscribe(path.Of("x"), func() { ran = true })

	b.Notify([]path.Path{path.Of("x")})
	assert.True(t, ran)
	assert.Equal(t, "boom", panicked)
}

func TestNotify_ReentrantMutationPermitted(t *testing.T) {
	b := bus.New()
	inner := 0
	var unsubInner bus.Unsubscribe
	b.Subscribe(path.Of("x"), func() {
		unsubInner = b.Subscribe(path.Of("y"), func() { inner++ })
		b.Notify([]path.Path{path.Of("y")})
	})

	b.Notify([]path.Path{path.Of("x")})
	assert.Equal(t, 1, inner)
	unsubInner()
}
