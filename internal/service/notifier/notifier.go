// Package notifier fans canonical payment status out to clients waiting on an order.
// Publishing never blocks; slow subscribers miss intermediate events but always get the final one.
package notifier

import (
	"sync"
	"time"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
	"github.com/nkiryanov/walletledger/internal/models"
)

type EventType string

const (
	EventStatus   EventType = "status"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventTimeout  EventType = "timeout"
)

const (
	DefaultCeiling = 10 * time.Minute
	bufferSize     = 8
)

type StatusData struct {
	OrderID string               `json:"orderId"`
	Status  models.PaymentStatus `json:"status"`
}

type Event struct {
	Type EventType  `json:"type"`
	Data StatusData `json:"data"`
}

// EventFor maps the status to the event kind sent to clients
func EventFor(orderID string, status models.PaymentStatus) Event {
	e := Event{Type: EventStatus, Data: StatusData{OrderID: orderID, Status: status}}
	switch status {
	case models.PaymentCompleted:
		e.Type = EventComplete
	case models.PaymentFailed, models.PaymentCancelled:
		e.Type = EventError
	}
	return e
}

type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	ceiling time.Duration
	logger  logger.Logger
}

type Option func(*Hub)

// WithCeiling bounds the lifetime of every subscription
func WithCeiling(d time.Duration) Option {
	return func(h *Hub) {
		h.ceiling = d
	}
}

func NewHub(l logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		ceiling: DefaultCeiling,
		logger:  l,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type Subscription struct {
	OrderID string

	hub    *Hub
	ch     chan Event
	timer  *time.Timer
	mu     sync.Mutex
	closed bool
}

// Events is closed when the order reaches terminal status, the ceiling passes or Close is called
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.remove(s)
	s.shut(nil)
}

func (s *Subscription) send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.hub.logger.Debug("status event dropped, subscriber is slow", "orderId", s.OrderID, "type", e.Type)
	}
}

// shut closes the channel once
// Last event is always delivered: on a full buffer the oldest pending event makes room for it
func (s *Subscription) shut(last *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for last != nil {
		select {
		case s.ch <- *last:
			last = nil
		default:
			select {
			case old := <-s.ch:
				s.hub.logger.Debug("status event evicted for final one", "orderId", s.OrderID, "type", old.Type)
			default:
			}
		}
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.ch)
	metrics.StreamSubscribers.Dec()
}

func (h *Hub) Subscribe(orderID string) *Subscription {
	s := &Subscription{
		OrderID: orderID,
		hub:     h,
		ch:      make(chan Event, bufferSize),
	}

	h.mu.Lock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[*Subscription]struct{})
	}
	h.subs[orderID][s] = struct{}{}
	metrics.StreamSubscribers.Inc()
	h.mu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s
	}
	s.timer = time.AfterFunc(h.ceiling, func() {
		h.remove(s)
		s.shut(&Event{Type: EventTimeout, Data: StatusData{OrderID: orderID}})
	})
	s.mu.Unlock()

	return s
}

// Publish delivers status to subscribers of the order
// Terminal statuses close the subscriptions
func (h *Hub) Publish(orderID string, status models.PaymentStatus) {
	e := EventFor(orderID, status)

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs[orderID]))
	for s := range h.subs[orderID] {
		subs = append(subs, s)
	}
	if status.IsTerminal() {
		delete(h.subs, orderID)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if status.IsTerminal() {
			s.shut(&e)
		} else {
			s.send(e)
		}
	}

	h.logger.Debug("status published", "orderId", orderID, "status", status, "subscribers", len(subs))
}

// Subscribers returns count of open subscriptions of the order
func (h *Hub) Subscribers(orderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[orderID])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[s.OrderID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.OrderID)
		}
	}
}
