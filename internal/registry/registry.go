// Package registry keeps the in-memory ownership graph of rooms, transports,
// producers and consumers. It is pure bookkeeping: no engine calls happen
// here, and every removal is idempotent so that explicit closes and
// engine-delivered close notifications can race without error.
package registry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// Factory allocates a worker and creates the router for a new room. It runs
// at most once per room id under concurrent GetOrCreateRoom calls.
type Factory func(ctx context.Context) (*Room, error)

type createLock struct {
	mu   sync.Mutex
	refs int
}

// Registry is the process-local resource registry. Entity lookups go through
// id indexes so that operations addressed by bare id (connect, produce,
// consume, close) resolve without knowing the owning room.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[domain.RoomID]*Room
	byTransport map[domain.TransportID]*Room
	byProducer  map[domain.ProducerID]*Room
	byConsumer  map[domain.ConsumerID]*Room

	// closed tombstones distinguish "already closed" from "never issued":
	// a repeated close of a once-live id is a no-op, not an error, even when
	// the engine's own close notification removed the entry first.
	closedTransports map[domain.TransportID]struct{}
	closedProducers  map[domain.ProducerID]struct{}
	closedConsumers  map[domain.ConsumerID]struct{}

	// creation is serialized per room id, not globally, so unrelated rooms
	// proceed concurrently while two requests for the same unseen id cannot
	// race to create two routers.
	createMu sync.Mutex
	creating map[domain.RoomID]*createLock
}

func New() *Registry {
	return &Registry{
		rooms:            make(map[domain.RoomID]*Room),
		byTransport:      make(map[domain.TransportID]*Room),
		byProducer:       make(map[domain.ProducerID]*Room),
		byConsumer:       make(map[domain.ConsumerID]*Room),
		closedTransports: make(map[domain.TransportID]struct{}),
		closedProducers:  make(map[domain.ProducerID]struct{}),
		closedConsumers:  make(map[domain.ConsumerID]struct{}),
		creating:         make(map[domain.RoomID]*createLock),
	}
}

func (g *Registry) creationLock(id domain.RoomID) *createLock {
	g.createMu.Lock()
	defer g.createMu.Unlock()
	l, ok := g.creating[id]
	if !ok {
		l = &createLock{}
		g.creating[id] = l
	}
	l.refs++
	return l
}

func (g *Registry) releaseCreationLock(id domain.RoomID, l *createLock) {
	l.mu.Unlock()
	g.createMu.Lock()
	defer g.createMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.creating, id)
	}
}

// GetOrCreateRoom returns the room for id, creating it via factory if absent.
// Exactly one concurrent caller executes factory; all callers observe the
// same room. The factory is a suspending operation, so it runs under the
// per-id lock but outside the registry lock.
func (g *Registry) GetOrCreateRoom(ctx context.Context, id domain.RoomID, factory Factory) (*Room, bool, error) {
	g.mu.RLock()
	room, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return room, false, nil
	}

	l := g.creationLock(id)
	l.mu.Lock()
	defer g.releaseCreationLock(id, l)

	g.mu.RLock()
	room, ok = g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return room, false, nil
	}

	room, err := factory(ctx)
	if err != nil {
		return nil, false, err
	}

	g.mu.Lock()
	g.rooms[id] = room
	g.mu.Unlock()
	log.Info().Str("module", "registry").Str("room", string(id)).Str("router", string(room.Router.ID())).Msg("room created")
	return room, true, nil
}

// Room returns the room for id, if present.
func (g *Registry) Room(id domain.RoomID) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// FindTransport resolves a transport by bare id across all rooms.
func (g *Registry) FindTransport(id domain.TransportID) (*Room, *TransportEntry, bool) {
	g.mu.RLock()
	room, ok := g.byTransport[id]
	g.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	e, ok := room.transports[id]
	if !ok {
		return nil, nil, false
	}
	return room, e, true
}

// FindProducer resolves a producer by bare id across all rooms.
func (g *Registry) FindProducer(id domain.ProducerID) (*Room, *ProducerEntry, bool) {
	g.mu.RLock()
	room, ok := g.byProducer[id]
	g.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	e, ok := room.producers[id]
	if !ok {
		return nil, nil, false
	}
	return room, e, true
}

// FindConsumer resolves a consumer by bare id across all rooms.
func (g *Registry) FindConsumer(id domain.ConsumerID) (*Room, *ConsumerEntry, bool) {
	g.mu.RLock()
	room, ok := g.byConsumer[id]
	g.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	e, ok := room.consumers[id]
	if !ok {
		return nil, nil, false
	}
	return room, e, true
}

// FindRoomByTransport returns the room owning the transport, if any.
func (g *Registry) FindRoomByTransport(id domain.TransportID) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.byTransport[id]
	return room, ok
}

// RegisterTransport records a transport under its room.
func (g *Registry) RegisterTransport(room *Room, t engine.Transport, dir domain.Direction, userID string) *TransportEntry {
	e := &TransportEntry{Transport: t, Direction: dir, UserID: userID, State: domain.TransportCreated}
	g.mu.Lock()
	room.mu.Lock()
	room.transports[t.ID()] = e
	room.mu.Unlock()
	g.byTransport[t.ID()] = room
	g.mu.Unlock()
	return e
}

// RegisterProducer records a producer under the room owning its transport.
// Fails with ErrTransportNotFound if the transport was closed in the window
// between the engine call and registration, so the caller can unwind.
func (g *Registry) RegisterProducer(room *Room, p engine.Producer, transportID domain.TransportID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.transports[transportID]; !ok {
		return domain.ErrTransportNotFound
	}
	room.producers[p.ID()] = &ProducerEntry{Producer: p, TransportID: transportID}
	g.byProducer[p.ID()] = room
	return nil
}

// RegisterConsumer records a consumer under the room owning its transport.
func (g *Registry) RegisterConsumer(room *Room, c engine.Consumer, transportID domain.TransportID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.transports[transportID]; !ok {
		return domain.ErrTransportNotFound
	}
	room.consumers[c.ID()] = &ConsumerEntry{Consumer: c, TransportID: transportID, ProducerID: c.ProducerID()}
	g.byConsumer[c.ID()] = room
	return nil
}

// SetTransportState records a negotiation state change. Closed is terminal:
// once there, no further transition applies.
func (g *Registry) SetTransportState(id domain.TransportID, state domain.TransportState) bool {
	g.mu.RLock()
	room, ok := g.byTransport[id]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.transports[id]
	if !ok || e.State.Terminal() {
		return false
	}
	e.State = state
	return true
}

// UnregisterTransport removes a transport and every producer and consumer
// that referenced it, preserving the ownership invariant that no descendant
// outlives its transport. Returns the removed descendant entries so the
// caller can close the engine handles. Removing an absent id is a no-op.
func (g *Registry) UnregisterTransport(id domain.TransportID) (producers []*ProducerEntry, consumers []*ConsumerEntry, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, found := g.byTransport[id]
	if !found {
		return nil, nil, false
	}
	delete(g.byTransport, id)
	g.closedTransports[id] = struct{}{}

	room.mu.Lock()
	defer room.mu.Unlock()
	delete(room.transports, id)
	for pid, e := range room.producers {
		if e.TransportID == id {
			producers = append(producers, e)
			delete(room.producers, pid)
			delete(g.byProducer, pid)
			g.closedProducers[pid] = struct{}{}
		}
	}
	for cid, e := range room.consumers {
		if e.TransportID == id {
			consumers = append(consumers, e)
			delete(room.consumers, cid)
			delete(g.byConsumer, cid)
			g.closedConsumers[cid] = struct{}{}
		}
	}
	return producers, consumers, true
}

// TransportWasClosed reports whether the id belonged to a transport that has
// since been removed.
func (g *Registry) TransportWasClosed(id domain.TransportID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.closedTransports[id]
	return ok
}

// ProducerWasClosed reports whether the id belonged to a producer that has
// since been removed.
func (g *Registry) ProducerWasClosed(id domain.ProducerID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.closedProducers[id]
	return ok
}

// ConsumerWasClosed reports whether the id belonged to a consumer that has
// since been removed.
func (g *Registry) ConsumerWasClosed(id domain.ConsumerID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.closedConsumers[id]
	return ok
}

// UnregisterProducer removes a producer entry. Idempotent.
func (g *Registry) UnregisterProducer(id domain.ProducerID) (*ProducerEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.byProducer[id]
	if !ok {
		return nil, false
	}
	delete(g.byProducer, id)
	g.closedProducers[id] = struct{}{}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.producers[id]
	delete(room.producers, id)
	return e, ok
}

// UnregisterConsumer removes a consumer entry. Idempotent.
func (g *Registry) UnregisterConsumer(id domain.ConsumerID) (*ConsumerEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.byConsumer[id]
	if !ok {
		return nil, false
	}
	delete(g.byConsumer, id)
	g.closedConsumers[id] = struct{}{}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.consumers[id]
	delete(room.consumers, id)
	return e, ok
}

// CloseRoom removes the room and all descendant entries in one step: once it
// returns, no lookup resolves the room or anything it owned. The caller
// closes the router, which the engine cascades into the owned entities.
func (g *Registry) CloseRoom(id domain.RoomID) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	if !ok {
		return nil, false
	}
	delete(g.rooms, id)

	room.mu.Lock()
	defer room.mu.Unlock()
	for tid := range room.transports {
		delete(g.byTransport, tid)
		g.closedTransports[tid] = struct{}{}
	}
	for pid := range room.producers {
		delete(g.byProducer, pid)
		g.closedProducers[pid] = struct{}{}
	}
	for cid := range room.consumers {
		delete(g.byConsumer, cid)
		g.closedConsumers[cid] = struct{}{}
	}
	room.transports = make(map[domain.TransportID]*TransportEntry)
	room.producers = make(map[domain.ProducerID]*ProducerEntry)
	room.consumers = make(map[domain.ConsumerID]*ConsumerEntry)
	log.Info().Str("module", "registry").Str("room", string(id)).Msg("room closed")
	return room, true
}

// RoomIDs lists the ids of all live rooms.
func (g *Registry) RoomIDs() []domain.RoomID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(g.rooms))
	for id := range g.rooms {
		out = append(out, id)
	}
	return out
}
