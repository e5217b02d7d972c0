// Package stream fans notifications out to live subscribers, such as
// websocket clients of the HTTP API.
package stream

import (
	"context"
	"strconv"
	"sync"
	"time"

	"equity-scanner/internal/notify"
)

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// SubscriberBuffer is the size of each subscriber's channel buffer.
	SubscriberBuffer int
	// History is how many recent notifications a new subscriber is replayed.
	History int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBuffer: 64,
		History:          20,
	}
}

// Subscription receives the notifications matching its type filter.
type Subscription struct {
	ID        string
	C         <-chan notify.Notification
	CreatedAt time.Time

	ch    chan notify.Notification
	types map[notify.NotificationType]bool
}

func (s *Subscription) wants(t notify.NotificationType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Stats holds hub counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Hub broadcasts notifications to subscribers. It implements
// notify.NotificationChannel so it can sit next to the other channels.
// Sends never block: a subscriber whose buffer is full misses the message.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers map[string]*Subscription
	history     []notify.Notification
	nextID      uint64
	closed      bool

	published uint64
	delivered uint64
	dropped   uint64
}

// NewHub creates a hub.
func NewHub(config HubConfig) *Hub {
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 1
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscription),
	}
}

func (h *Hub) Name() string    { return "stream" }
func (h *Hub) IsEnabled() bool { return true }

// Subscribe registers a subscriber for the given notification types; no
// types means all of them. Matching history is queued first.
func (h *Hub) Subscribe(types ...notify.NotificationType) *Subscription {
	ch := make(chan notify.Notification, h.config.SubscriberBuffer+h.config.History)
	sub := &Subscription{
		C:         ch,
		CreatedAt: time.Now(),
		ch:        ch,
		types:     make(map[notify.NotificationType]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub.ID = "sub-" + strconv.FormatUint(h.nextID, 10)
	if h.closed {
		close(ch)
		return sub
	}
	for _, n := range h.history {
		if sub.wants(n.Type) {
			ch <- n
		}
	}
	h.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; ok {
		delete(h.subscribers, sub.ID)
		close(sub.ch)
	}
}

// Send publishes n to every interested subscriber.
func (h *Hub) Send(_ context.Context, n notify.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	h.published++
	if h.config.History > 0 {
		h.history = append(h.history, n)
		if len(h.history) > h.config.History {
			h.history = h.history[len(h.history)-h.config.History:]
		}
	}

	for _, sub := range h.subscribers {
		if !sub.wants(n.Type) {
			continue
		}
		select {
		case sub.ch <- n:
			h.delivered++
		default:
			h.dropped++
		}
	}
	return nil
}

// Close disconnects every subscriber. Later sends are discarded.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
	return nil
}

// Stats returns the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: len(h.subscribers),
	}
}
