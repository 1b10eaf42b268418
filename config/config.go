// Package config implements the host-level global configuration object of
// spec §6: a base URL, a header provider, and a global error handler.
// Modeled on the teacher's auth.AuthManager, which guards shared mutable
// state behind a sync.Mutex rather than requiring a fresh object per call,
// and on aryanugroho-pkg/config's idea of one process-wide configuration
// service that can be reconfigured at any time.
package config

import (
	"context"
	"sync"

	"github.com/corestateio/corestate/storeerr"
)

// HeaderProvider supplies request headers, synchronously or by doing its own
// async work before returning (e.g. refreshing an auth token).
type HeaderProvider func(ctx context.Context) (map[string]string, error)

// Config is the global, reconfigurable configuration object. A
// reconfiguration (via Set) takes effect only for operations started after
// it completes; in-flight operations keep whatever they already read.
type Config struct {
	mu         sync.RWMutex
	baseURL    string
	getHeaders HeaderProvider
	onError    storeerr.Handler
}

var global = &Config{}

// Global returns the process-wide Config instance.
func Global() *Config { return global }

// New creates a standalone Config, useful for tests and for multi-tenant
// embeddings that want isolated configuration (spec §9 design note on
// exposing shared singletons as explicit context objects).
func New() *Config { return &Config{} }

// Set reconfigures the Config atomically. All three fields are replaced,
// including with zero values — pass the current value back for any field
// you don't want to change.
func (c *Config) Set(baseURL string, getHeaders HeaderProvider, onError storeerr.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.getHeaders = getHeaders
	c.onError = onError
}

// BaseURL returns the currently configured base URL.
func (c *Config) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Headers invokes the configured header provider, or returns an empty map if
// none was configured.
func (c *Config) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	provider := c.getHeaders
	c.mu.RUnlock()
	if provider == nil {
		return map[string]string{}, nil
	}
	return provider(ctx)
}

// OnError invokes the configured global error handler, if any. Per spec §7,
// this runs after the per-store OnError with the same arguments.
func (c *Config) OnError(err error, operation string, meta storeerr.Meta) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()
	if handler != nil {
		handler(err, operation, meta)
	}
}
