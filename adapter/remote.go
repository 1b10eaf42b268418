package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corestateio/corestate/config"
	"github.com/corestateio/corestate/storeerr"
)

// RemoteConfig configures a RemoteAdapter. List is the list endpoint
// template; Item defaults to List + "/:id" when empty. DataKey/RequestKey
// implement the response/request envelope rule of the external interfaces
// section: DataKey unwraps the response body, RequestKey wraps the request
// body.
type RemoteConfig struct {
	List       string
	Item       string
	DataKey    string
	RequestKey string
	Transport  Transport
}

func (c RemoteConfig) itemTemplate() string {
	if c.Item != "" {
		return c.Item
	}
	return c.List + "/:id"
}

// NewRemote builds an Adapter whose Get/GetOne/Create/Set/Patch/Delete
// operations drive cfg.Transport per the HTTP mapping: GET for reads, POST
// for create, PUT for full replace, PATCH for partial update, DELETE for
// removal.
func NewRemote(cfg RemoteConfig) Adapter {
	return Adapter{
		Get: func(ctx context.Context, params Params) (any, error) {
			return remoteCall(ctx, cfg, "GET", cfg.List, params, nil)
		},
		GetOne: func(ctx context.Context, params Params) (any, error) {
			return remoteCall(ctx, cfg, "GET", cfg.itemTemplate(), params, nil)
		},
		Create: func(ctx context.Context, data any) (any, error) {
			return remoteCall(ctx, cfg, "POST", cfg.List, nil, data)
		},
		Set: func(ctx context.Context, data any) (any, error) {
			return remoteCall(ctx, cfg, "PUT", cfg.itemTemplate(), dataParams(data), data)
		},
		Patch: func(ctx context.Context, partial any) (any, error) {
			return remoteCall(ctx, cfg, "PATCH", cfg.itemTemplate(), dataParams(partial), partial)
		},
		Delete: func(ctx context.Context, params Params) error {
			_, err := remoteCall(ctx, cfg, "DELETE", cfg.itemTemplate(), params, nil)
			return err
		},
	}
}

// dataParams lets Set/Patch supply their :id template variable out of the
// record being written, since those operations take a value rather than a
// params list.
func dataParams(data any) Params {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	return ParamsFromMap(m)
}

func remoteCall(ctx context.Context, cfg RemoteConfig, method, template string, params Params, data any) (any, error) {
	if cfg.Transport == nil {
		return nil, &storeerr.ConfigError{Operation: method}
	}

	stripped := StripForce(params)
	url, leftover, err := buildURL(template, stripped)
	if err != nil {
		return nil, &storeerr.URLTemplateError{Template: template}
	}
	if q := encodeQuery(leftover); q != "" {
		url += "?" + q
	}

	var reqBody []byte
	if data != nil {
		var wire any = data
		if cfg.RequestKey != "" {
			wire = map[string]any{cfg.RequestKey: data}
		}
		reqBody, err = json.Marshal(wire)
		if err != nil {
			return nil, &storeerr.ParseError{Cause: err}
		}
	}

	headers, err := config.Global().Headers(ctx)
	if err != nil {
		return nil, err
	}

	status, respBody, err := cfg.Transport(ctx, method, config.Global().BaseURL()+url, headers, reqBody)
	if err != nil {
		return nil, &storeerr.TransportError{Message: err.Error(), Cause: err}
	}

	if status < 200 || status >= 300 {
		return nil, &storeerr.TransportError{Status: status, Body: respBody, Message: errorMessage(status, respBody)}
	}

	if status == 204 || len(respBody) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &storeerr.TransportError{Status: status, Body: respBody, Message: err.Error(), Cause: err}
	}

	if cfg.DataKey == "" {
		return decoded, nil
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return decoded, nil
	}
	value, ok := obj[cfg.DataKey]
	if !ok {
		return decoded, nil
	}
	return value, nil
}

// errorMessage extracts a human-readable message from a non-2xx response
// body, preferring body.message, then body.error, then a generic fallback.
func errorMessage(status int, body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := obj["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
