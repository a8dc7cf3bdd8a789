// Package events carries the push-only notifications emitted after every
// successful lottery state transition. Consumers subscribe to a Bus; nothing
// in the lottery waits for them.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Type names a notification.
type Type string

const (
	TypeGameEntered   Type = "GameEntered"
	TypeDrawRequested Type = "DrawRequested"
	TypeWinnersPicked Type = "WinnersPicked"
)

// Notification is a single observable state transition.
type Notification struct {
	ID          string             `json:"id"`
	Type        Type               `json:"type"`
	Timestamp   time.Time          `json:"timestamp"`
	RoundNumber uint64             `json:"round_number"`
	Entry       *domain.Entry      `json:"entry,omitempty"`
	RequestID   domain.RequestID   `json:"request_id,omitempty"`
	Settlement  *domain.Settlement `json:"settlement,omitempty"`
}

// String returns the JSON form.
func (n Notification) String() string {
	data, _ := json.Marshal(n)
	return string(data)
}

// GameEntered builds the notification for an accepted entry.
func GameEntered(round uint64, entry domain.Entry) Notification {
	return Notification{Type: TypeGameEntered, RoundNumber: round, Entry: &entry}
}

// DrawRequested builds the notification for an issued randomness request.
func DrawRequested(round uint64, id domain.RequestID) Notification {
	return Notification{Type: TypeDrawRequested, RoundNumber: round, RequestID: id}
}

// WinnersPicked builds the notification for a completed settlement.
func WinnersPicked(settlement domain.Settlement) Notification {
	return Notification{
		Type:        TypeWinnersPicked,
		RoundNumber: settlement.RoundNumber,
		RequestID:   settlement.RequestID,
		Settlement:  &settlement,
	}
}

// Notifier receives notifications synchronously after a transition commits.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Handler processes notifications as they occur.
type Handler func(Notification)

// Filter decides whether a notification should reach a handler.
type Filter func(Notification) bool

// Bus keeps a ring buffer of recent notifications and fans them out to
// subscribers. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	buf      []Notification
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

var _ Notifier = (*Bus)(nil)

// NewBus creates a bus retaining the last size notifications.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{buf: make([]Notification, size), size: size}
}

// Notify records the notification and calls every matching handler outside
// the lock.
func (b *Bus) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	b.buf[b.head] = n
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		if h.filter == nil || h.filter(n) {
			h.handler(n)
		}
	}
}

// Subscribe registers a handler for every notification and returns the
// function that removes it.
func (b *Bus) Subscribe(handler Handler) func() {
	return b.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler behind a filter.
func (b *Bus) SubscribeFiltered(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n notifications, newest first.
func (b *Bus) Recent(n int) []Notification {
	return b.recent(n, nil)
}

// RecentByType returns up to n notifications of one type, newest first.
func (b *Bus) RecentByType(t Type, n int) []Notification {
	return b.recent(n, func(x Notification) bool { return x.Type == t })
}

func (b *Bus) recent(n int, keep Filter) []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	var out []Notification
	for i := 0; i < b.count && len(out) < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		if keep == nil || keep(b.buf[idx]) {
			out = append(out, b.buf[idx])
		}
	}
	return out
}

// Count returns the number of retained notifications.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(context.Context, Notification) {}
