// Package sse implements a Server-Sent Events broker for export progress.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// frame renders e in text/event-stream framing.
func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", e.Type, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

// IndexUpdated is broadcast, throttled, after events that change the export index.
const IndexUpdated = "index.updated"

var indexUpdatedFrame = []byte("event: " + IndexUpdated + "\ndata: {}\n\n")

// indexKinds are the export events after which clients should refetch the index.
var indexKinds = map[string]bool{
	"export.completed": true,
	"group.written":    true,
	"group.failed":     true,
}

const clientBuffer = 64

// heartbeat keeps idle SSE connections open through proxies.
const heartbeat = 25 * time.Second

// hub is the broker state. Only the loop goroutine touches it.
type hub struct {
	clients   map[chan []byte]struct{}
	lastIndex time.Time
}

// broadcast hands msg to every client whose buffer has room; slow clients
// miss the message rather than stall the loop.
func (h *hub) broadcast(msg []byte) {
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Broker fans export events out to SSE clients. One goroutine owns the hub;
// every public method hands it a closure and waits for it to run.
type Broker struct {
	throttle time.Duration

	ops  chan func(*hub)
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBroker creates a new SSE broker. index.updated is sent at most once
// per indexThrottle.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}
	b := &Broker{
		throttle: indexThrottle,
		ops:      make(chan func(*hub)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)
	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.quit:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// do runs op on the loop goroutine and returns after it has run. It reports
// false if the broker is already closed.
func (b *Broker) do(op func(*hub)) bool {
	ran := make(chan struct{})
	select {
	case b.ops <- func(h *hub) { op(h); close(ran) }:
		<-ran
		return true
	case <-b.done:
		return false
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.quit) })
	<-b.done
}

// Subscribe adds a new client and returns its channel. The channel is closed
// by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.do(func(h *hub) { h.clients[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	n := 0
	b.do(func(h *hub) { n = len(h.clients) })
	return n
}

// Publish sends an event to all connected clients. Events whose data cannot
// be encoded are dropped.
func (b *Broker) Publish(event Event) {
	msg, err := event.frame()
	if err != nil {
		return
	}
	b.do(func(h *hub) { h.broadcast(msg) })
}

// PublishExportEvent broadcasts an export lifecycle event and, for events
// that change the index, a throttled index.updated event right after it.
// Its signature matches exportservice.EventFunc.
func (b *Broker) PublishExportEvent(kind string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	msg, err := Event{Type: kind, Data: data}.frame()
	if err != nil {
		return
	}
	b.do(func(h *hub) {
		h.broadcast(msg)
		if indexKinds[kind] && time.Since(h.lastIndex) >= b.throttle {
			h.lastIndex = time.Now()
			h.broadcast(indexUpdatedFrame)
		}
	})
}

// ServeHTTP streams events to one client (GET /api/events) until the request
// ends or the broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(heartbeat)
	defer ping.Stop()

	send := func(msg []byte) {
		_, _ = w.Write(msg)
		flusher.Flush()
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			send([]byte(": ping\n\n"))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(msg)
		}
	}
}
