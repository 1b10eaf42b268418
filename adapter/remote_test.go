package adapter_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/config"
)

func fakeTransport(t *testing.T, want func(method, url string)) adapter.Transport {
	return func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		if want != nil {
			want(method, url)
		}
		return 200, []byte(`{"x":{"id":"1","name":"a"}}`), nil
	}
}

func TestNewRemote_URLTemplatingAndEnvelope(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)

	var gotURL, gotMethod string
	tr := fakeTransport(t, func(method, url string) { gotMethod, gotURL = method, url })

	a := adapter.NewRemote(adapter.RemoteConfig{
		List:      "/widgets",
		DataKey:   "x",
		Transport: tr,
	})

	v, err := a.GetOne(context.Background(), adapter.NewParams("id", "1", "verbose", true))
	require.NoError(t, err)
	assert.Equal(t, "GET", gotMethod)
	assert.Equal(t, "http://api.test/widgets/1?verbose=true", gotURL)
	assert.Equal(t, map[string]any{"id": "1", "name": "a"}, v)
}

func TestNewRemote_LeftoverQueryParamsPreserveInsertionOrder(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)

	var gotURL string
	tr := fakeTransport(t, func(method, url string) { gotURL = url })

	a := adapter.NewRemote(adapter.RemoteConfig{List: "/widgets", Transport: tr})

	_, err := a.Get(context.Background(), adapter.NewParams("zebra", "1", "alpha", "2"))
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/widgets?zebra=1&alpha=2", gotURL)
}

func TestNewRemote_MissingTemplateVariableIsSynchronousError(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)
	a := adapter.NewRemote(adapter.RemoteConfig{List: "/widgets", Transport: fakeTransport(t, nil)})

	_, err := a.GetOne(context.Background(), adapter.NewParams())
	require.Error(t, err)
}

func TestNewRemote_RequestEnvelope(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)

	var gotBody []byte
	tr := func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		gotBody = body
		return 200, []byte(`{"x":{"id":"1"}}`), nil
	}

	a := adapter.NewRemote(adapter.RemoteConfig{List: "/widgets", RequestKey: "x", DataKey: "x", Transport: tr})
	_, err := a.Create(context.Background(), map[string]any{"name": "a"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	_, ok := decoded["x"]
	assert.True(t, ok)
}

func TestNewRemote_NonSuccessStatusYieldsTypedError(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)
	tr := func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		return 404, []byte(`{"message":"not found"}`), nil
	}

	a := adapter.NewRemote(adapter.RemoteConfig{List: "/widgets", Transport: tr})
	_, err := a.GetOne(context.Background(), adapter.NewParams("id", "9"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNewRemote_NoContentResponse(t *testing.T) {
	config.Global().Set("http://api.test", nil, nil)
	tr := func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		return 204, nil, nil
	}
	a := adapter.NewRemote(adapter.RemoteConfig{List: "/widgets", Transport: tr})
	err := a.Delete(context.Background(), adapter.NewParams("id", "1"))
	assert.NoError(t, err)
}
