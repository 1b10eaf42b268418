// Command corestate-demo wires a Collection store (store.Collection) against
// a real HTTP+SSE backend (demoserver) and a sqlite-backed durable cache
// (kvstore/sqlitekv), the way the teacher's main.go wired its database
// handlers, auth manager, and SSE subscriber handler into one http.Server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/corestateio/corestate/adapter"
	"github.com/corestateio/corestate/cache"
	"github.com/corestateio/corestate/config"
	"github.com/corestateio/corestate/demoserver"
	"github.com/corestateio/corestate/kvstore/sqlitekv"
	"github.com/corestateio/corestate/schema"
	"github.com/corestateio/corestate/store"
	"github.com/corestateio/corestate/storeerr"
)

// widget is the demo record type the collection store manages.
type widget struct {
	WidgetID string `json:"id"`
	Name     string `json:"name"`
	Qty      int    `json:"qty"`
}

// ID implements store.Identifiable.
func (w widget) ID() string { return w.WidgetID }

func main() {
	// command-line flags (-p, -s, -d), mirroring the teacher's -p/-s/-t flags
	portnum := flag.String("p", "3318", "Port to listen on")
	jsonFlag := flag.String("s", "", "Optional JSON schema file validating widgets")
	dbFlag := flag.String("d", "corestate-demo.db", "Path to the sqlite durable cache")
	flag.Parse()

	port, err := strconv.Atoi(*portnum)
	if err != nil {
		log.Fatal(err)
	}

	var validator *schema.Validator
	if *jsonFlag != "" {
		validator, err = schema.Compile(*jsonFlag)
		if err != nil {
			log.Fatal("Error: provided schema could not be compiled\n")
		}
	}

	srv := demoserver.NewServer(demoserver.Config{Validator: validator})
	backend := httptest.NewServer(srv)
	defer backend.Close()

	token, err := login(backend.URL)
	if err != nil {
		log.Fatalf("Error: failed to obtain a demo token: %v\n", err)
	}

	config.Global().Set(backend.URL, func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}, func(err error, operation string, meta storeerr.Meta) {
		slog.Error("corestate", "operation", operation, "error", err)
	})

	kv, err := sqlitekv.Open(*dbFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer kv.Close()

	remote := adapter.NewRemote(adapter.RemoteConfig{
		List:      "/items",
		DataKey:   "data",
		Transport: httpTransport(backend.Client()),
	})
	push := adapter.NewPush(adapter.PushConfig{
		URL:       backend.URL + "/items/subscribe",
		Transport: adapter.SSETransport(backend.Client()),
		Heartbeat: 30 * time.Second,
	})
	durable := adapter.NewDurable(adapter.DurableConfig{KV: kv, Key: "widgets"})
	// remote serves reads/writes, push delivers live updates, and durable
	// only contributes Load/Save so local state survives a restart; Compose
	// would let durable's own Get/Set/Patch/Delete shadow remote's, which
	// isn't wanted here, so only the two fields actually needed are grafted
	// on directly.
	combined := remote
	combined.Subscribe = push.Subscribe
	combined.Load = durable.Load
	combined.Save = durable.Save

	widgets := store.NewCollection[widget](store.CollectionConfig{
		Adapter:   combined,
		Cache:     cache.New(cache.DefaultCapacity),
		CacheKey:  "widgets",
		TTL:       30 * time.Second,
		Validator: validator,
		PushMode:  store.UpsertMode,
	})
	defer widgets.Dispose()

	unsub := store.Subscribe(widgets, func() {
		list := store.Snapshot(widgets).([]widget)
		slog.Info("widgets changed", "count", len(list))
	})
	defer unsub()

	// widgetsProxy demonstrates C2: a deep-observation handle over the same
	// collection, traversed by id rather than by re-fetching and re-decoding
	// the whole list.
	widgetsProxy := widgets.Proxy()
	unsubProxy := widgetsProxy.Subscribe(func() {
		for _, entry := range widgetsProxy.Iterate(widgets.IDs()) {
			name := entry.Handle.Key("name").String()
			qty, _ := entry.Handle.Key("qty").Int()
			slog.Info("widget field changed", "id", entry.ID, "name", name, "qty", qty)
		}
	})
	defer unsubProxy()

	fmt.Printf("Starting demo server on port %d, backend at %s...\n", port, backend.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := widgets.Create(ctx, widget{Name: "bootstrap", Qty: 1}); err != nil {
		slog.Error("bootstrap create failed", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		server.Close()
	}()

	slog.Info("Listening", "port", port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

// login bootstraps a demo bearer token directly against the backend's login
// route, standing in for whatever out-of-band login flow a real host would
// run before configuring config.Global's header provider.
func login(baseURL string) (string, error) {
	resp, err := http.Post(baseURL+"/auth/login", "application/json", bytes.NewBufferString(`{"username":"demo"}`))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Data.Token, nil
}

// httpTransport adapts an *http.Client to adapter.Transport.
func httpTransport(client *http.Client) adapter.Transport {
	return func(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return 0, nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, nil, err
		}
		return resp.StatusCode, respBody, nil
	}
}
