package registry

import (
	"sync"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// TransportEntry is the registry's view of one transport: the engine handle
// plus the participant tag and negotiation state.
type TransportEntry struct {
	Transport engine.Transport
	Direction domain.Direction
	UserID    string
	State     domain.TransportState
}

// ProducerEntry links a producer to the transport it was published over.
type ProducerEntry struct {
	Producer    engine.Producer
	TransportID domain.TransportID
}

// ConsumerEntry links a consumer to its transport and the producer it forwards.
type ConsumerEntry struct {
	Consumer    engine.Consumer
	TransportID domain.TransportID
	ProducerID  domain.ProducerID
}

// Room groups one router and its owned transports, producers and consumers.
// Collections are keyed by entity id; ids are globally unique, not room-scoped.
type Room struct {
	ID          domain.RoomID
	Worker      engine.Worker
	WorkerIndex int
	Router      engine.Router

	mu         sync.RWMutex
	transports map[domain.TransportID]*TransportEntry
	producers  map[domain.ProducerID]*ProducerEntry
	consumers  map[domain.ConsumerID]*ConsumerEntry
}

func NewRoom(id domain.RoomID, worker engine.Worker, workerIndex int, router engine.Router) *Room {
	return &Room{
		ID:          id,
		Worker:      worker,
		WorkerIndex: workerIndex,
		Router:      router,
		transports:  make(map[domain.TransportID]*TransportEntry),
		producers:   make(map[domain.ProducerID]*ProducerEntry),
		consumers:   make(map[domain.ConsumerID]*ConsumerEntry),
	}
}

// Producer returns the producer entry owned by this room, if any.
func (r *Room) Producer(id domain.ProducerID) (*ProducerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.producers[id]
	return e, ok
}

// ProducerSummaries returns read-only views of all producers in the room.
func (r *Room) ProducerSummaries() []domain.ProducerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProducerSummary, 0, len(r.producers))
	for _, e := range r.producers {
		app := e.Producer.AppData()
		out = append(out, domain.ProducerSummary{
			ID:        e.Producer.ID(),
			Kind:      e.Producer.Kind(),
			UserID:    app.UserID,
			ChannelID: app.ChannelID,
		})
	}
	return out
}

// Status returns a point-in-time snapshot of the room.
func (r *Room) Status() domain.RoomStatus {
	r.mu.RLock()
	transports, producers, consumers := len(r.transports), len(r.producers), len(r.consumers)
	r.mu.RUnlock()
	return domain.RoomStatus{
		RoomID:         r.ID,
		RouterID:       r.Router.ID(),
		TransportCount: transports,
		ProducerCount:  producers,
		ConsumerCount:  consumers,
		Producers:      r.ProducerSummaries(),
	}
}
