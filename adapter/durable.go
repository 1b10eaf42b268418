package adapter

import (
	"context"
	"encoding/json"

	"github.com/corestateio/corestate/storeerr"
)

// KVStore is the external synchronous key-value store a host embeds
// (spec §4.5's "host's synchronous key-value store"). kvstore/sqlitekv
// provides one concrete implementation over modernc.org/sqlite.
type KVStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// DurableConfig configures a DurableAdapter.
type DurableConfig struct {
	KV      KVStore
	Key     string
	Default any
}

// NewDurable builds an Adapter whose Get/Set/Patch/Delete operate directly
// against cfg.KV (so it can serve as the sole adapter for a store), and
// whose Load/Save implement the "persist" sub-object that composes with a
// remote or push adapter to warm-start and durably mirror state.
func NewDurable(cfg DurableConfig) Adapter {
	return Adapter{
		Get: func(ctx context.Context, params Params) (any, error) {
			return durableLoad(cfg)
		},
		GetOne: func(ctx context.Context, params Params) (any, error) {
			return durableLoad(cfg)
		},
		Set: func(ctx context.Context, data any) (any, error) {
			if err := durableSave(cfg, data); err != nil {
				return nil, err
			}
			return data, nil
		},
		Patch: func(ctx context.Context, partial any) (any, error) {
			current, _, err := durableLoadRaw(cfg)
			if err != nil {
				return nil, err
			}
			merged := mergePatch(current, partial)
			if err := durableSave(cfg, merged); err != nil {
				return nil, err
			}
			return merged, nil
		},
		Delete: func(ctx context.Context, params Params) error {
			if cfg.KV == nil {
				return &storeerr.ConfigError{Operation: "delete"}
			}
			return cfg.KV.Delete(cfg.Key)
		},
		Load: func(ctx context.Context) (any, bool, error) {
			return durableLoadRaw(cfg)
		},
		Save: func(ctx context.Context, value any) error {
			return durableSave(cfg, value)
		},
	}
}

func durableLoad(cfg DurableConfig) (any, error) {
	value, _, err := durableLoadRaw(cfg)
	return value, err
}

func durableLoadRaw(cfg DurableConfig) (any, bool, error) {
	if cfg.KV == nil {
		return nil, false, &storeerr.ConfigError{Operation: "load"}
	}
	raw, found, err := cfg.KV.Get(cfg.Key)
	if err != nil {
		return nil, false, &storeerr.QuotaError{Key: cfg.Key, Cause: err}
	}
	if !found {
		return cfg.Default, false, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, &storeerr.ParseError{Cause: err}
	}
	return value, true, nil
}

func durableSave(cfg DurableConfig, value any) error {
	if cfg.KV == nil {
		return &storeerr.ConfigError{Operation: "save"}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return &storeerr.ParseError{Cause: err}
	}
	if err := cfg.KV.Set(cfg.Key, raw); err != nil {
		return &storeerr.QuotaError{Key: cfg.Key, Cause: err}
	}
	return nil
}

// mergePatch applies a shallow top-level merge of partial onto current,
// used only when the durable adapter is the sole adapter for a store (no
// remote round trip to reconcile a richer patch semantics against).
func mergePatch(current, partial any) any {
	currentMap, ok := current.(map[string]any)
	if !ok {
		return partial
	}
	partialMap, ok := partial.(map[string]any)
	if !ok {
		return partial
	}
	merged := make(map[string]any, len(currentMap)+len(partialMap))
	for k, v := range currentMap {
		merged[k] = v
	}
	for k, v := range partialMap {
		merged[k] = v
	}
	return merged
}
