// Package storeerr implements the error taxonomy of spec §7: the set of
// typed errors the engine raises, and the ErrorMeta envelope carried to the
// per-store and global onError hooks.
//
// Modeled on the teacher's plain-struct error style (auth.AuthManager returns
// errors.New / fmt.Errorf rather than a framework), generalized into
// exported types so callers can errors.As() on them.
package storeerr

import "fmt"

// ConfigError is raised synchronously when a required adapter operation is
// unconfigured at call time. It never reaches the transport.
type ConfigError struct {
	Operation string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("corestate: operation %q is not configured on this adapter", e.Operation)
}

// URLTemplateError is raised before any transport call when a ":name"
// template variable has no matching parameter.
type URLTemplateError struct {
	Template  string
	Parameter string
}

func (e *URLTemplateError) Error() string {
	return fmt.Sprintf("corestate: url template %q references undefined parameter %q", e.Template, e.Parameter)
}

// TransportError wraps a non-2xx response or a body-parse failure. It
// propagates through the adapter and the optimistic-rollback machinery.
type TransportError struct {
	Status  int
	Body    []byte
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("corestate: transport error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("corestate: transport error: http %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// NotFoundError is raised synchronously when patch/delete/update addresses
// an id that is not present in memory. No state change occurs.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("corestate: no record with id %q", e.ID)
}

// ParseError indicates a payload could not be decoded or encoded: a push
// event body (logged, and the stream continues), a durable adapter's stored
// value, a remote request body, or an adapter result a store cannot decode
// into its record type.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("corestate: failed to parse payload: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// QuotaError indicates a durable write failed. In-memory state remains
// authoritative; this is logged, not propagated to the caller's mutation
// promise.
type QuotaError struct {
	Key   string
	Cause error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("corestate: durable write to key %q failed: %v", e.Key, e.Cause)
}

func (e *QuotaError) Unwrap() error { return e.Cause }

// Meta is the ErrorMeta envelope of spec §7: it is passed first to a
// per-store OnError hook, then to the global config.Config.OnError, with the
// same arguments.
type Meta struct {
	Operation    string
	Endpoint     string
	Params       map[string]any
	RollbackData any
}

// Handler matches the (error, operation, meta) shape of spec §6's
// onError(error, operation, meta).
type Handler func(err error, operation string, meta Meta)
