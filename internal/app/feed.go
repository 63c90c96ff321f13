package app

import (
	"sync"

	"github.com/mediabridge/sfu/internal/domain"
)

// FeedEvent is one registry change pushed to event-feed subscribers.
type FeedEvent struct {
	RoomID domain.RoomID `json:"roomId"`
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Kind   domain.Kind   `json:"kind,omitempty"`
	UserID string        `json:"userId,omitempty"`
}

type feedSub struct {
	room domain.RoomID
	ch   chan FeedEvent
}

// Feed fans registry changes out to per-room subscribers. Slow subscribers
// drop events rather than block the mutation path.
type Feed struct {
	mu   sync.RWMutex
	subs map[*feedSub]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[*feedSub]struct{})}
}

// Subscribe returns a channel of events for one room and a cancel func. The
// channel is closed on cancel.
func (f *Feed) Subscribe(room domain.RoomID) (<-chan FeedEvent, func()) {
	sub := &feedSub{room: room, ch: make(chan FeedEvent, 32)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to the room's subscribers without blocking.
func (f *Feed) Publish(ev FeedEvent) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs {
		if sub.room != ev.RoomID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
