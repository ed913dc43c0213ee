package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Feed streams routing and usage events to WebSocket subscribers. Slow or
// broken subscribers are dropped; publishing never blocks the pipeline.
type Feed struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

type subscriber struct {
	ch   chan []byte
	done chan struct{}
}

const feedBuffer = 64

// NewFeed creates an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With("component", "telemetry-feed"),
	}
}

// Publish fans an event out to all subscribers. Events that do not fit a
// subscriber's buffer are dropped for that subscriber.
func (f *Feed) Publish(kind string, payload any) {
	msg, err := json.Marshal(map[string]any{
		"kind":    kind,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"payload": payload,
	})
	if err != nil {
		f.logger.Warn("event marshal failed", "kind", kind, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.ch <- msg:
		default:
			// Subscriber can't keep up; skip this event for them.
		}
	}
}

// Handle upgrades the connection and writes events until the client goes
// away or the server shuts down.
func (f *Feed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket accept failed", "error", err)
		return
	}

	sub := &subscriber{
		ch:   make(chan []byte, feedBuffer),
		done: make(chan struct{}),
	}
	f.add(sub)
	defer f.remove(sub)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	// Reads are discarded; the feed is one-way. The read loop still runs
	// so close frames and pings are processed.
	go func() {
		defer close(sub.done)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-sub.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Subscribers reports the current subscriber count.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) add(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub] = struct{}{}
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}
