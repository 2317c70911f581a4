// Package sse implements a per-job Server-Sent Events broker.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	clientBufferSize  = 100
	keepAliveInterval = 30 * time.Second
)

// Broker fans events out to the subscribers of each job.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]map[chan []byte]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe registers a new client channel for a job.
func (b *Broker) Subscribe(jobID string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clients[jobID] == nil {
		b.clients[jobID] = make(map[chan []byte]struct{})
	}

	ch := make(chan []byte, clientBufferSize)
	b.clients[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a client channel.
func (b *Broker) Unsubscribe(jobID string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs := b.clients[jobID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.clients, jobID)
		}
	}
	close(ch)
}

// Publish sends raw SSE data to every subscriber of a job. Clients with a
// full buffer are skipped.
func (b *Broker) Publish(jobID string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients[jobID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// PublishJSON marshals data and publishes it under the given event name.
func (b *Broker) PublishJSON(jobID, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling event data: %w", err)
	}
	b.Publish(jobID, formatSSE(event, payload))
	return nil
}

// Subscribers returns the number of active clients for a job.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[jobID])
}

func formatSSE(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

// Handler serves an SSE connection for the job identified by jobIDExtractor.
func (b *Broker) Handler(jobIDExtractor func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := jobIDExtractor(r)
		if jobID == "" {
			http.Error(w, "job_id required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ch := b.Subscribe(jobID)
		defer b.Unsubscribe(jobID, ch)

		fmt.Fprintf(w, "event: connected\ndata: {\"job_id\":%q}\n\n", jobID)
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case data, open := <-ch:
				if !open {
					return
				}
				if _, err := w.Write(data); err != nil {
					return
				}
				flusher.Flush()

			case <-ticker.C:
				if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
