package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/leapstack-labs/rqg/pkg/core"
)

const feedBuffer = 8

// decisionFeed fans decisions out to subscribed listeners.
type decisionFeed struct {
	mu        sync.RWMutex
	listeners map[chan *core.DecisionRecord]struct{}
}

func newDecisionFeed() *decisionFeed {
	return &decisionFeed{listeners: make(map[chan *core.DecisionRecord]struct{})}
}

// subscribe returns a channel of decisions. Callers must unsubscribe.
func (f *decisionFeed) subscribe() chan *core.DecisionRecord {
	ch := make(chan *core.DecisionRecord, feedBuffer)
	f.mu.Lock()
	f.listeners[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *decisionFeed) unsubscribe(ch chan *core.DecisionRecord) {
	f.mu.Lock()
	delete(f.listeners, ch)
	f.mu.Unlock()
	close(ch)
}

// publish never blocks; a listener with a full buffer misses the decision.
func (f *decisionFeed) publish(record *core.DecisionRecord) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.listeners {
		select {
		case ch <- record:
		default:
		}
	}
}

func (f *decisionFeed) size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// handleEvents streams decisions as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.events.subscribe()
	defer s.events.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case record := <-ch:
			data, err := json.Marshal(record)
			if err != nil {
				s.logger.Error("failed to encode decision event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: decision\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
