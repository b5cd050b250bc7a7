package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/metrics"
)

// Hub fans events out to connected subscribers.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[*Subscriber]struct{}
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds a hub that pings subscribers every pingInterval.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers:  make(map[*Subscriber]struct{}),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers a subscriber.
func (h *Hub) Add(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s] = struct{}{}
	metrics.EventSubscribers.Set(float64(len(h.subscribers)))
}

// Remove unregisters a subscriber.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, s)
	metrics.EventSubscribers.Set(float64(len(h.subscribers)))
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish encodes evt once and queues it on every subscriber.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		s.Send(data)
	}
}

// Start pings subscribers until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

// pingAll pings a snapshot of the subscribers so a stalled write never holds the lock.
func (h *Hub) pingAll() {
	for _, s := range h.snapshot() {
		_ = s.Ping()
	}
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		out = append(out, s)
	}
	return out
}

var _ Publisher = (*Hub)(nil)
