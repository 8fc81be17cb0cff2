package events

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// CartChanged tells subscribers that a user's cart was modified. It carries
// no cart state; consumers re-fetch.
type CartChanged struct {
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

type Publisher interface {
	PublishCartChanged(ctx context.Context, userID uuid.UUID)
}

type Subscriber interface {
	Subscribe(userID uuid.UUID) (<-chan CartChanged, func())
}

type Broker interface {
	Publisher
	Subscriber
}

type subscription struct {
	ch chan CartChanged
}

// Hub is an in-process broker. Every subscriber channel has a buffer of one,
// so bursts of changes coalesce into a single pending notification and a slow
// consumer never blocks a publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscription]struct{}
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[*subscription]struct{}),
		now:  time.Now,
	}
}

func (h *Hub) Subscribe(userID uuid.UUID) (<-chan CartChanged, func()) {
	sub := &subscription{ch: make(chan CartChanged, 1)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

func (h *Hub) PublishCartChanged(_ context.Context, userID uuid.UUID) {
	h.deliver(CartChanged{UserID: userID, At: h.now().UTC()})
}

func (h *Hub) deliver(ev CartChanged) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.UserID] {
		select {
		case sub.ch <- ev:
		default:
			// a notification is already pending for this subscriber
		}
	}
}

// Subscribers returns the number of live subscriptions for a user.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
