package demoserver

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// writeFlusher is what an SSE handler needs from a ResponseWriter.
type writeFlusher interface {
	http.ResponseWriter
	http.Flusher
}

// broadcaster fans out record events to every connected SSE subscriber. This
// is sse.SubscriberHandler condensed from a path-hierarchical, per-resource
// subscription index down to one shared channel set, since the demo
// collection has no nested database/document/collection paths to key on.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan string]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[chan string]struct{})}
}

func (b *broadcaster) subscribe() chan string {
	ch := make(chan string, 100)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
}

// publish sends event;data to every subscriber, dropping it for whichever
// subscriber's channel is currently full rather than blocking the writer.
func (b *broadcaster) publish(event, data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := fmt.Sprintf("%s;%s", event, data)
	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			slog.Warn("demoserver: dropping event for slow subscriber")
		}
	}
}

// ServeHTTP upgrades the request to an SSE stream and forwards every
// published event until the client disconnects, per sse.SubscriberHandler's
// SSEHandler but without the resource/token addressing it used for nested
// paths.
func (b *broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wf, ok := w.(writeFlusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	wf.Header().Set("Content-Type", "text/event-stream")
	wf.Header().Set("Cache-Control", "no-cache")
	wf.Header().Set("Connection", "keep-alive")
	wf.Header().Set("Access-Control-Allow-Origin", "*")
	wf.WriteHeader(http.StatusOK)
	wf.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sendComment(wf)
		case msg := <-ch:
			event, data, _ := splitEvent(msg)
			sendEvent(wf, event, data)
		case <-r.Context().Done():
			return
		}
	}
}

func splitEvent(msg string) (event, data string, ok bool) {
	for i := 0; i < len(msg); i++ {
		if msg[i] == ';' {
			return msg[:i], msg[i+1:], true
		}
	}
	return msg, "", false
}

func sendComment(wf writeFlusher) {
	var evt bytes.Buffer
	evt.WriteString(": keepalive\n")
	wf.Write(evt.Bytes())
	wf.Flush()
}

func sendEvent(wf writeFlusher, event, data string) {
	var evt bytes.Buffer
	evt.WriteString(fmt.Sprintf("event: %s\n", event))
	evt.WriteString(fmt.Sprintf("id: %d\n", time.Now().UnixMilli()))
	evt.WriteString(fmt.Sprintf("data: %s\n\n", data))
	wf.Write(evt.Bytes())
	wf.Flush()
}
