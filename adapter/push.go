package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corestateio/corestate/storeerr"
)

// PushEvent is one decoded push payload, framed with the event name the
// transport observed so PushConfig.EventName can filter on it.
type PushEvent struct {
	Name string
	Data []byte
}

// PushTransport owns one push connection's entire lifecycle: connect,
// read events until the connection drops, and return so the caller
// reconnects. It must respect ctx cancellation.
type PushTransport func(ctx context.Context, url string, onEvent func(PushEvent)) error

// OnlineWatcher and FocusWatcher mirror the netstatus package's
// interfaces; adapter does not import netstatus to avoid a cyclic domain
// dependency, since both packages are leaves used by the store layer.
type OnlineWatcher interface {
	Watch(onChange func(online bool)) (stop func())
}

type FocusWatcher interface {
	Watch(onFocus func()) (stop func())
}

// PushConfig configures a PushAdapter.
type PushConfig struct {
	URL           string
	Transport     PushTransport
	EventName     string // empty matches every event
	Heartbeat     time.Duration
	MaxAttempts   int // 0 means unlimited
	// PauseOnHidden, when true, tells a host binding that exposes tab/window
	// visibility through a FocusWatcher-shaped signal that losing visibility
	// should be treated as a pause rather than left connected. The adapter
	// itself only reacts to resume signals (FocusW/OnlineW firing); it does
	// not define a visibility source.
	PauseOnHidden bool
	OnlineW       OnlineWatcher
	FocusW        FocusWatcher
	OnError       storeerr.Handler
}

// NewPush builds an Adapter whose Subscribe operation maintains a
// reconnecting push connection and delivers decoded payloads to the
// caller's callback. Mode interpretation (replace/append/upsert) belongs to
// the collection store, not here; this adapter only JSON-decodes and
// delivers each payload.
func NewPush(cfg PushConfig) Adapter {
	return Adapter{
		Subscribe: func(onEvent func(payload any)) func() {
			ctx, cancel := context.WithCancel(context.Background())
			paused := make(chan bool, 1)

			go runPushLoop(ctx, cfg, onEvent, paused)

			var stopOnline, stopFocus func()
			if cfg.OnlineW != nil {
				stopOnline = cfg.OnlineW.Watch(func(online bool) {
					if online {
						select {
						case paused <- false:
						default:
						}
					}
				})
			}
			if cfg.FocusW != nil {
				stopFocus = cfg.FocusW.Watch(func() {
					select {
					case paused <- false:
					default:
					}
				})
			}

			var once sync.Once
			return func() {
				once.Do(func() {
					cancel()
					if stopOnline != nil {
						stopOnline()
					}
					if stopFocus != nil {
						stopFocus()
					}
				})
			}
		},
	}
}

// runPushLoop reconnects with exponential backoff and jitter until ctx is
// cancelled or MaxAttempts is exhausted, modeled on
// whisper-darkly-sticky-dvr/overseer/client.go's Run/connect loop.
func runPushLoop(ctx context.Context, cfg PushConfig, onEvent func(any), resume <-chan bool) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			slog.Warn("adapter: push giving up after max attempts", "url", cfg.URL, "attempts", attempt)
			return
		}

		attemptCtx, cancelAttempt := context.WithCancel(ctx)
		watchdog := newHeartbeatWatchdog(cfg.Heartbeat, cancelAttempt)

		err := cfg.Transport(attemptCtx, cfg.URL, func(evt PushEvent) {
			watchdog.reset()
			if cfg.EventName != "" && evt.Name != cfg.EventName {
				return
			}
			var payload any
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				if cfg.OnError != nil {
					cfg.OnError(&storeerr.ParseError{Cause: err}, "subscribe", storeerr.Meta{Endpoint: cfg.URL})
				}
				return
			}
			onEvent(payload)
			attempt = 0
		})
		watchdog.stop()
		cancelAttempt()

		if ctx.Err() != nil {
			return
		}
		if err != nil && cfg.OnError != nil {
			cfg.OnError(err, "subscribe", storeerr.Meta{Endpoint: cfg.URL})
		}

		attempt++
		delay := backoff(attempt)

		select {
		case <-ctx.Done():
			return
		case <-resume:
		case <-time.After(delay):
		}
	}
}

// heartbeatWatchdog cancels a push attempt's context if no event (including
// the framing layer's own keep-alive comments/pings) arrives within the
// configured interval. A zero interval disables the watchdog.
type heartbeatWatchdog struct {
	timer    *time.Timer
	interval time.Duration
}

func newHeartbeatWatchdog(interval time.Duration, onTimeout func()) *heartbeatWatchdog {
	if interval <= 0 {
		return &heartbeatWatchdog{}
	}
	return &heartbeatWatchdog{timer: time.AfterFunc(interval, onTimeout), interval: interval}
}

func (w *heartbeatWatchdog) reset() {
	if w.timer != nil {
		w.timer.Reset(w.interval)
	}
}

func (w *heartbeatWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// backoff computes an exponential delay with full jitter, capped at 30s.
func backoff(attempt int) time.Duration {
	base := float64(time.Second) * math.Pow(2, float64(attempt-1))
	capped := math.Min(base, float64(30*time.Second))
	return time.Duration(rand.Float64() * capped)
}

// SSETransport consumes a "text/event-stream" response with bufio.Scanner,
// the inverse of the teacher's sse.go framing
// ("event: ...\nid: ...\ndata: ...\n\n"): that package writes the frame this
// one parses.
func SSETransport(client *http.Client) PushTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string, onEvent func(PushEvent)) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var name string
		var data bytes.Buffer

		flush := func() {
			if data.Len() == 0 {
				return
			}
			onEvent(PushEvent{Name: name, Data: append([]byte(nil), bytes.TrimSuffix(data.Bytes(), []byte("\n"))...)})
			name = ""
			data.Reset()
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			line := scanner.Text()
			switch {
			case line == "":
				flush()
			case strings.HasPrefix(line, ":"):
				// comment / keep-alive line, ignore
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimPrefix(line, "data:"))
				data.WriteByte('\n')
			}
		}
		flush()
		return scanner.Err()
	}
}

// WebSocketTransport dials a websocket and delivers each text frame as an
// event, grounded on whisper-darkly-sticky-dvr/overseer/client.go's
// connect/dispatch pair.
func WebSocketTransport(dialer *websocket.Dialer) PushTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string, onEvent func(PushEvent)) error {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			onEvent(PushEvent{Name: "message", Data: raw})
		}
	}
}
