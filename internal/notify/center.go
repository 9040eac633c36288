package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/domain"
)

type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
)

type Event struct {
	Kind         EventKind           `json:"kind"`
	Notification domain.Notification `json:"notification"`
}

// Notifier is what the session managers depend on.
type Notifier interface {
	Add(message string, severity domain.Severity, ttl time.Duration) string
}

// Center is an in-memory queue of toasts that expire on their own.
type Center struct {
	defaultTTL time.Duration
	log        *zap.Logger

	mu          sync.Mutex
	items       []domain.Notification
	timers      map[string]*time.Timer
	subscribers map[int]chan Event
	nextSub     int
	closed      bool
}

func NewCenter(defaultTTL time.Duration, log *zap.Logger) *Center {
	if log == nil {
		log = zap.NewNop()
	}
	return &Center{
		defaultTTL:  defaultTTL,
		log:         log.Named("notify"),
		timers:      make(map[string]*time.Timer),
		subscribers: make(map[int]chan Event),
	}
}

// Add enqueues a notification and schedules its removal. A non-positive ttl
// uses the center default. It returns the generated id.
func (c *Center) Add(message string, severity domain.Severity, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		TTL:       ttl,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return n.ID
	}

	c.items = append(c.items, n)
	c.timers[n.ID] = time.AfterFunc(ttl, func() { c.Remove(n.ID) })
	c.broadcast(Event{Kind: EventAdded, Notification: n})

	c.log.Debug("notification added",
		zap.String("id", n.ID), zap.String("severity", string(severity)), zap.String("message", message))
	return n.ID
}

func (c *Center) Success(message string) string {
	return c.Add(message, domain.SeveritySuccess, 0)
}

func (c *Center) Error(message string) string {
	return c.Add(message, domain.SeverityError, 0)
}

func (c *Center) Info(message string) string {
	return c.Add(message, domain.SeverityInfo, 0)
}

// Remove dismisses a notification immediately. Unknown ids are ignored.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.broadcast(Event{Kind: EventRemoved, Notification: n})
			return
		}
	}
}

// List returns the live notifications in insertion order.
func (c *Center) List() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Notification(nil), c.items...)
}

// Subscribe streams add and remove events. Slow subscribers miss events
// rather than block producers. The returned func unsubscribes.
func (c *Center) Subscribe(buffer int) (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, buffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close stops pending expiry timers and ends all subscriptions.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

// broadcast must be called with c.mu held.
func (c *Center) broadcast(ev Event) {
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			c.log.Warn("dropping notification event for slow subscriber", zap.String("id", ev.Notification.ID))
		}
	}
}
