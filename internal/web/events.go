// pattern: Imperative Shell

package web

import (
	"fmt"
	"net/http"
	"sync"
)

const (
	eventRefresh = "refresh"
	eventOutput  = "output"
)

// eventBroker fans out named change signals to SSE subscribers.
type eventBroker struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// subscriber holds at most one pending signal per event name, so a slow
// reader sees each kind of change once instead of a backlog.
type subscriber struct {
	ch      chan struct{}
	mu      sync.Mutex
	pending map[string]bool
	order   []string
}

func (sub *subscriber) take() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	names := sub.order
	sub.order = nil
	clear(sub.pending)
	return names
}

func newEventBroker() *eventBroker {
	return &eventBroker{
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber. The caller must call Unsubscribe when done.
func (b *eventBroker) Subscribe() *subscriber {
	sub := &subscriber{ch: make(chan struct{}, 1), pending: make(map[string]bool)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *eventBroker) Unsubscribe(sub *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}

// Notify marks name pending for every subscriber and wakes them.
// Never blocks.
func (b *eventBroker) Notify(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		sub.mu.Lock()
		if !sub.pending[name] {
			sub.pending[name] = true
			sub.order = append(sub.order, name)
		}
		sub.mu.Unlock()
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// handleEvents is the SSE endpoint. It sends a "connected" event on open,
// then a "refresh" or "output" event each time the broker is notified.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	fmt.Fprintf(w, "event: connected\ndata: ok\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.ch:
			for _, name := range sub.take() {
				fmt.Fprintf(w, "event: %s\ndata: update\n\n", name)
			}
			flusher.Flush()
		}
	}
}
