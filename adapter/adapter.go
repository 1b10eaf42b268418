// Package adapter implements the three adapter kinds of the synchronization
// engine (remote, push, durable) plus their composition rule. An Adapter is
// a plain record of optional operation functions; a store is configured by
// composing several adapters together, the same way the teacher's
// sse.SubscriberHandler separates "how a subscription is tracked" from "how
// an event is framed and sent" — here "how an operation is invoked" is
// separated from "what invokes it" (HTTP, websocket, sqlite...).
package adapter

import "context"

// Transport performs one request/response round trip. Hosts supply a
// concrete Transport (typically backed by net/http); RemoteAdapter and
// QueuedRemoteAdapter only depend on this function type, never on an HTTP
// client directly, so tests can swap in a fake.
type Transport func(ctx context.Context, method, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error)

// GetFunc, etc. are the operation shapes an Adapter may supply. data is
// loosely typed (any) because an Adapter is wired generically, ahead of the
// typed store layer that calls it. params is an ordered Params list rather
// than a map, so query-string order survives from the caller down to the
// wire (see Params).
type (
	GetFunc       func(ctx context.Context, params Params) (any, error)
	GetOneFunc    func(ctx context.Context, params Params) (any, error)
	CreateFunc    func(ctx context.Context, data any) (any, error)
	SetFunc       func(ctx context.Context, data any) (any, error)
	PatchFunc     func(ctx context.Context, partial any) (any, error)
	DeleteFunc    func(ctx context.Context, params Params) error
	SubscribeFunc func(onEvent func(payload any)) (unsubscribe func())
	LoadFunc      func(ctx context.Context) (any, bool, error)
	SaveFunc      func(ctx context.Context, value any) error
)

// Adapter holds one optional function per operation named in the adapter
// design. Unset fields mean "this adapter does not provide this operation".
// A store reports a configuration error (storeerr.ConfigError) for an unset
// Get, GetOne or Create; for an unset Set, Patch or Delete it keeps the
// optimistic change as a local-only update and returns without error.
type Adapter struct {
	Get       GetFunc
	GetOne    GetOneFunc
	Create    CreateFunc
	Set       SetFunc
	Patch     PatchFunc
	Delete    DeleteFunc
	Subscribe SubscribeFunc
	Load      LoadFunc
	Save      SaveFunc
}

// Compose shallow-copies non-nil fields from base and overrides, in order,
// so that a later adapter's operation replaces an earlier one's: "the last
// written wins" (spec's composition rule). The first non-nil value for each
// field is kept only if nothing later overrides it; later values always
// override earlier ones.
func Compose(base Adapter, overrides ...Adapter) Adapter {
	result := base
	for _, o := range overrides {
		if o.Get != nil {
			result.Get = o.Get
		}
		if o.GetOne != nil {
			result.GetOne = o.GetOne
		}
		if o.Create != nil {
			result.Create = o.Create
		}
		if o.Set != nil {
			result.Set = o.Set
		}
		if o.Patch != nil {
			result.Patch = o.Patch
		}
		if o.Delete != nil {
			result.Delete = o.Delete
		}
		if o.Subscribe != nil {
			result.Subscribe = o.Subscribe
		}
		if o.Load != nil {
			result.Load = o.Load
		}
		if o.Save != nil {
			result.Save = o.Save
		}
	}
	return result
}
