// Package app orchestrates the request-level session operations by composing
// the registry, the worker pool and the media engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
	"github.com/mediabridge/sfu/internal/pool"
	"github.com/mediabridge/sfu/internal/registry"
)

const defaultCallTimeout = 10 * time.Second

// Orchestrator enforces the lifecycle invariants: atomic room creation,
// producers and consumers never left paused, cascading idempotent teardown.
// It is the only caller of mutating engine operations.
type Orchestrator struct {
	Engine   engine.Engine
	Pool     *pool.Pool
	Policy   pool.Policy
	Registry *registry.Registry
	Codecs   []domain.MediaCodec
	Metrics  *Metrics
	Feed     *Feed

	// CallTimeout bounds every suspending engine call.
	CallTimeout time.Duration
	// GracePeriod is how long a worker death is allowed to linger in the
	// logs before the process terminates.
	GracePeriod time.Duration

	exit func(int)
}

func NewOrchestrator(eng engine.Engine, p *pool.Pool, policy pool.Policy, reg *registry.Registry, codecs []domain.MediaCodec, m *Metrics) *Orchestrator {
	return &Orchestrator{
		Engine:      eng,
		Pool:        p,
		Policy:      policy,
		Registry:    reg,
		Codecs:      codecs,
		Metrics:     m,
		Feed:        NewFeed(),
		CallTimeout: defaultCallTimeout,
		GracePeriod: 2 * time.Second,
		exit:        os.Exit,
	}
}

// RoomView is the result of CreateRoom.
type RoomView struct {
	RoomID       domain.RoomID          `json:"roomId"`
	RouterID     domain.RouterID        `json:"routerId"`
	Capabilities domain.RTPCapabilities `json:"rtpCapabilities"`
}

// TransportView is the result of CreateTransport.
type TransportView struct {
	TransportID domain.TransportID         `json:"transportId"`
	Parameters  domain.TransportParameters `json:"parameters"`
}

// ProducerView is the result of Produce.
type ProducerView struct {
	ProducerID domain.ProducerID `json:"producerId"`
	Kind       domain.Kind       `json:"kind"`
}

// ConsumerView is the result of Consume.
type ConsumerView struct {
	ConsumerID domain.ConsumerID    `json:"consumerId"`
	ProducerID domain.ProducerID    `json:"producerId"`
	Kind       domain.Kind          `json:"kind"`
	Parameters domain.RTPParameters `json:"rtpParameters"`
}

// Health is the service health snapshot.
type Health struct {
	Workers int `json:"workers"`
	Rooms   int `json:"rooms"`
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (o *Orchestrator) engineErr(err error, what string) error {
	o.Metrics.EngineFailed()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrEngineTimeout, what, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrEngineFailure, what, err)
}

// Health reports worker and room counts for the health surface.
func (o *Orchestrator) Health() Health {
	return Health{Workers: o.Pool.Size(), Rooms: o.Registry.RoomCount()}
}

// CreateRoom returns the room's router id and capabilities, creating the room
// if it does not exist. Idempotent: an existing room is returned as-is, never
// an error. Under concurrent calls for the same unseen id exactly one router
// is created.
func (o *Orchestrator) CreateRoom(ctx context.Context, roomID domain.RoomID) (RoomView, bool, error) {
	if o.Pool.Size() == 0 {
		return RoomView{}, false, domain.ErrUnavailable
	}

	room, created, err := o.Registry.GetOrCreateRoom(ctx, roomID, func(ctx context.Context) (*registry.Room, error) {
		worker, idx, err := o.Pool.Allocate(o.Policy)
		if err != nil {
			return nil, err
		}
		cctx, cancel := o.callCtx(ctx)
		defer cancel()
		router, err := worker.CreateRouter(cctx, o.Codecs)
		if err != nil {
			o.Pool.Release(idx)
			return nil, fmt.Errorf("%w: router for room %s: %v", domain.ErrAllocation, roomID, err)
		}
		log.Info().Str("module", "app").Str("room", string(roomID)).Str("worker", string(worker.ID())).Msg("router created")
		return registry.NewRoom(roomID, worker, idx, router), nil
	})
	if err != nil {
		return RoomView{}, false, err
	}
	if created {
		o.Metrics.RoomCreated()
		o.Metrics.AllocationPerformed()
	}
	return RoomView{RoomID: room.ID, RouterID: room.Router.ID(), Capabilities: room.Router.Capabilities()}, created, nil
}

// CreateTransport creates a transport on the room's router and registers it.
func (o *Orchestrator) CreateTransport(ctx context.Context, roomID domain.RoomID, dir domain.Direction, userID string) (TransportView, error) {
	room, ok := o.Registry.Room(roomID)
	if !ok {
		return TransportView{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}

	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	t, params, err := room.Router.CreateTransport(cctx, engine.TransportOptions{Direction: dir, UserID: userID})
	if err != nil {
		return TransportView{}, o.engineErr(err, "create transport")
	}

	o.Registry.RegisterTransport(room, t, dir, userID)
	o.Metrics.TransportOpened()
	o.Feed.Publish(FeedEvent{RoomID: roomID, Type: "transport.added", ID: string(t.ID()), UserID: userID})
	log.Info().Str("module", "app").Str("room", string(roomID)).Str("transport", string(t.ID())).Str("direction", string(dir)).Str("user", userID).Msg("transport created")
	return TransportView{TransportID: t.ID(), Parameters: params}, nil
}

// ConnectTransport forwards the remote negotiation parameters to the engine.
// The transport moves created -> connecting -> connected, or failed on a
// negotiation error.
func (o *Orchestrator) ConnectTransport(ctx context.Context, id domain.TransportID, remote domain.TransportParameters) (domain.TransportParameters, error) {
	_, entry, ok := o.Registry.FindTransport(id)
	if !ok {
		return domain.TransportParameters{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, id)
	}

	o.Registry.SetTransportState(id, domain.TransportConnecting)
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	local, err := entry.Transport.Connect(cctx, remote)
	if err != nil {
		o.Registry.SetTransportState(id, domain.TransportFailed)
		return domain.TransportParameters{}, o.engineErr(err, "connect transport")
	}
	o.Registry.SetTransportState(id, domain.TransportConnected)
	log.Info().Str("module", "app").Str("transport", string(id)).Msg("transport connected")
	return local, nil
}

// Produce publishes a track over the transport. A producer is never returned
// paused: if the engine yields one paused, it is resumed first, and if the
// resume fails the producer is closed rather than leaked.
func (o *Orchestrator) Produce(ctx context.Context, transportID domain.TransportID, kind domain.Kind, params domain.RTPParameters, app domain.AppData) (ProducerView, error) {
	if !kind.Valid() {
		return ProducerView{}, fmt.Errorf("%w: produce kind %q", domain.ErrEngineFailure, kind)
	}
	room, entry, ok := o.Registry.FindTransport(transportID)
	if !ok {
		return ProducerView{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, transportID)
	}

	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	p, err := entry.Transport.Produce(cctx, kind, params, app)
	if err != nil {
		return ProducerView{}, o.engineErr(err, "produce")
	}
	if p.Paused() {
		log.Warn().Str("module", "app").Str("producer", string(p.ID())).Msg("producer created paused, resuming")
		if err := p.Resume(cctx); err != nil {
			p.Close()
			return ProducerView{}, o.engineErr(err, "resume producer")
		}
	}

	if err := o.Registry.RegisterProducer(room, p, transportID); err != nil {
		// Transport vanished between the engine call and registration.
		p.Close()
		return ProducerView{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, transportID)
	}
	o.Metrics.ProducerOpened()
	o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "producer.added", ID: string(p.ID()), Kind: kind, UserID: app.UserID})
	log.Info().Str("module", "app").Str("room", string(room.ID)).Str("producer", string(p.ID())).Str("kind", string(kind)).Msg("producer created")
	return ProducerView{ProducerID: p.ID(), Kind: p.Kind()}, nil
}

// Consume forwards a producer's media to the given transport. The producer
// must live in the same room; the router's capability check gates creation.
// A consumer is never returned paused.
func (o *Orchestrator) Consume(ctx context.Context, transportID domain.TransportID, producerID domain.ProducerID, caps domain.RTPCapabilities, app domain.AppData) (ConsumerView, error) {
	room, entry, ok := o.Registry.FindTransport(transportID)
	if !ok {
		return ConsumerView{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, transportID)
	}
	pe, ok := room.Producer(producerID)
	if !ok {
		return ConsumerView{}, fmt.Errorf("%w: %s in room %s", domain.ErrProducerNotFound, producerID, room.ID)
	}

	if !room.Router.CanConsume(pe.Producer, caps) {
		return ConsumerView{}, fmt.Errorf("%w: producer %s", domain.ErrIncompatibleCapabilities, producerID)
	}
	if pe.Producer.Paused() {
		log.Warn().Str("module", "app").Str("producer", string(producerID)).Msg("consuming a paused producer, no media will flow")
	}

	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	c, err := entry.Transport.Consume(cctx, pe.Producer, caps, app)
	if err != nil {
		return ConsumerView{}, o.engineErr(err, "consume")
	}
	if c.Paused() {
		log.Warn().Str("module", "app").Str("consumer", string(c.ID())).Msg("consumer created paused, resuming")
		if err := c.Resume(cctx); err != nil {
			c.Close()
			return ConsumerView{}, o.engineErr(err, "resume consumer")
		}
	}

	if err := o.Registry.RegisterConsumer(room, c, transportID); err != nil {
		c.Close()
		return ConsumerView{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, transportID)
	}
	o.Metrics.ConsumerOpened()
	o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "consumer.added", ID: string(c.ID()), Kind: c.Kind(), UserID: app.UserID})
	log.Info().Str("module", "app").Str("room", string(room.ID)).Str("consumer", string(c.ID())).Str("producer", string(producerID)).Msg("consumer created")
	return ConsumerView{ConsumerID: c.ID(), ProducerID: c.ProducerID(), Kind: c.Kind(), Parameters: c.RTPParameters()}, nil
}

// CloseProducer closes a producer and removes it from the registry. The
// engine's own close notification may arrive concurrently; removal is
// idempotent either way.
func (o *Orchestrator) CloseProducer(id domain.ProducerID) error {
	room, pe, ok := o.Registry.FindProducer(id)
	if !ok {
		// Already closed: a repeated close is a no-op, never an error.
		if o.Registry.ProducerWasClosed(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrProducerNotFound, id)
	}
	pe.Producer.Close()
	if _, removed := o.Registry.UnregisterProducer(id); removed {
		o.Metrics.ProducerClosed()
		o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "producer.removed", ID: string(id)})
	}
	log.Info().Str("module", "app").Str("producer", string(id)).Msg("producer closed")
	return nil
}

// CloseConsumer closes a consumer and removes it from the registry.
func (o *Orchestrator) CloseConsumer(id domain.ConsumerID) error {
	room, ce, ok := o.Registry.FindConsumer(id)
	if !ok {
		if o.Registry.ConsumerWasClosed(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrConsumerNotFound, id)
	}
	ce.Consumer.Close()
	if _, removed := o.Registry.UnregisterConsumer(id); removed {
		o.Metrics.ConsumerClosed()
		o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "consumer.removed", ID: string(id)})
	}
	log.Info().Str("module", "app").Str("consumer", string(id)).Msg("consumer closed")
	return nil
}

// CloseTransport closes a transport and proactively tears down every producer
// and consumer that referenced it. The engine cascades its own side; the
// event-driven removals that follow are no-ops.
func (o *Orchestrator) CloseTransport(id domain.TransportID) error {
	room, entry, ok := o.Registry.FindTransport(id)
	if !ok {
		if o.Registry.TransportWasClosed(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrTransportNotFound, id)
	}
	o.Registry.SetTransportState(id, domain.TransportClosed)
	entry.Transport.Close()

	producers, consumers, removed := o.Registry.UnregisterTransport(id)
	if !removed {
		return nil
	}
	for _, ce := range consumers {
		ce.Consumer.Close()
		o.Metrics.ConsumerClosed()
		o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "consumer.removed", ID: string(ce.Consumer.ID())})
	}
	for _, pe := range producers {
		pe.Producer.Close()
		o.Metrics.ProducerClosed()
		o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "producer.removed", ID: string(pe.Producer.ID())})
	}
	o.Metrics.TransportClosed()
	o.Feed.Publish(FeedEvent{RoomID: room.ID, Type: "transport.removed", ID: string(id)})
	log.Info().Str("module", "app").Str("transport", string(id)).Int("producers", len(producers)).Int("consumers", len(consumers)).Msg("transport closed")
	return nil
}

// CloseRoom closes the room's router and drops the room and all descendants
// from the registry. Idle rooms are never reclaimed automatically; this is
// the explicit administrative path.
func (o *Orchestrator) CloseRoom(id domain.RoomID) error {
	room, ok := o.Registry.CloseRoom(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	room.Router.Close()
	o.Pool.Release(room.WorkerIndex)
	o.Metrics.RoomClosed()
	o.Feed.Publish(FeedEvent{RoomID: id, Type: "room.closed", ID: string(id)})
	return nil
}

// RoomProducers lists producer summaries for the room.
func (o *Orchestrator) RoomProducers(id domain.RoomID) ([]domain.ProducerSummary, error) {
	room, ok := o.Registry.Room(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return room.ProducerSummaries(), nil
}

// RoomStatus returns the read-only snapshot of a room.
func (o *Orchestrator) RoomStatus(id domain.RoomID) (domain.RoomStatus, error) {
	room, ok := o.Registry.Room(id)
	if !ok {
		return domain.RoomStatus{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return room.Status(), nil
}

// Shutdown closes every room, then the pool. Registry state is not rebuilt;
// the process is expected to exit after this.
func (o *Orchestrator) Shutdown() {
	for _, id := range o.Registry.RoomIDs() {
		if err := o.CloseRoom(id); err != nil && !domain.IsNotFound(err) {
			log.Error().Err(err).Str("module", "app").Str("room", string(id)).Msg("close room on shutdown")
		}
	}
	o.Pool.Close()
	log.Info().Str("module", "app").Msg("orchestrator shut down")
}
