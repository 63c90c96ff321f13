// Package enginetest provides a scriptable in-memory media engine for tests.
// Failure injection and pause behavior are controlled per-engine; closes
// cascade and emit events the way a real engine would.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// Engine is the fake engine root. Zero value of the knobs means "succeed,
// unpaused, kind-based capability matching".
type Engine struct {
	// WorkerErr, when set, is consulted per worker index at creation.
	WorkerErr func(index int) error
	// RouterErr fails every CreateRouter call.
	RouterErr error
	// TransportErr fails every CreateTransport call.
	TransportErr error
	// ConnectErr fails every Connect call.
	ConnectErr error
	// ProduceErr / ConsumeErr fail the respective calls.
	ProduceErr error
	ConsumeErr error
	// ResumeErr fails producer/consumer Resume.
	ResumeErr error
	// ProducePaused / ConsumePaused yield entities in the paused state.
	ProducePaused bool
	ConsumePaused bool
	// CanConsumeFn overrides the default kind-matching capability check.
	CanConsumeFn func(producer engine.Producer, caps domain.RTPCapabilities) bool

	// RouterCreations counts CreateRouter calls across all workers.
	RouterCreations atomic.Int32

	mu     sync.Mutex
	events chan engine.Event
}

func New() *Engine {
	return &Engine{events: make(chan engine.Event, 128)}
}

func (e *Engine) Events() <-chan engine.Event { return e.events }

func (e *Engine) emit(ev engine.Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// EmitTransportState injects a transport state notification.
func (e *Engine) EmitTransportState(id domain.TransportID, state domain.TransportState) {
	e.emit(engine.Event{Type: engine.EventTransportState, TransportID: id, State: state})
}

// KillWorker injects an unexpected worker termination.
func (e *Engine) KillWorker(id domain.WorkerID) {
	e.emit(engine.Event{Type: engine.EventWorkerDied, WorkerID: id})
}

func (e *Engine) CreateWorker(_ context.Context, opts engine.WorkerOptions) (engine.Worker, error) {
	if e.WorkerErr != nil {
		if err := e.WorkerErr(opts.Index); err != nil {
			return nil, err
		}
	}
	return &Worker{eng: e, id: domain.WorkerID(fmt.Sprintf("worker-%d", opts.Index))}, nil
}

// Worker is a fake pool slot.
type Worker struct {
	eng    *Engine
	id     domain.WorkerID
	closed bool
}

func (w *Worker) ID() domain.WorkerID { return w.id }

func (w *Worker) CreateRouter(_ context.Context, codecs []domain.MediaCodec) (engine.Router, error) {
	if w.eng.RouterErr != nil {
		return nil, w.eng.RouterErr
	}
	w.eng.RouterCreations.Add(1)
	return &Router{
		eng:    w.eng,
		id:     domain.RouterID(uuid.NewString()),
		codecs: codecs,
	}, nil
}

func (w *Worker) Close() {
	w.eng.mu.Lock()
	w.closed = true
	w.eng.mu.Unlock()
}

// Router is a fake per-room routing context.
type Router struct {
	eng        *Engine
	id         domain.RouterID
	codecs     []domain.MediaCodec
	transports []*Transport
	closed     bool
}

func (r *Router) ID() domain.RouterID { return r.id }

func (r *Router) Capabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{Codecs: r.codecs}
}

func (r *Router) CreateTransport(_ context.Context, opts engine.TransportOptions) (engine.Transport, domain.TransportParameters, error) {
	if r.eng.TransportErr != nil {
		return nil, domain.TransportParameters{}, r.eng.TransportErr
	}
	t := &Transport{
		eng: r.eng,
		id:  domain.TransportID(uuid.NewString()),
	}
	r.eng.mu.Lock()
	r.transports = append(r.transports, t)
	r.eng.mu.Unlock()
	return t, domain.TransportParameters{SDP: "v=0 fake-offer"}, nil
}

// CanConsume defaults to kind matching: the receiver must declare at least
// one codec of the producer's kind.
func (r *Router) CanConsume(producer engine.Producer, caps domain.RTPCapabilities) bool {
	if r.eng.CanConsumeFn != nil {
		return r.eng.CanConsumeFn(producer, caps)
	}
	for _, c := range caps.Codecs {
		if c.Kind == producer.Kind() {
			return true
		}
	}
	return false
}

func (r *Router) Close() {
	r.eng.mu.Lock()
	if r.closed {
		r.eng.mu.Unlock()
		return
	}
	r.closed = true
	transports := r.transports
	r.eng.mu.Unlock()
	for _, t := range transports {
		t.Close()
	}
}

// Transport is a fake media endpoint.
type Transport struct {
	eng       *Engine
	id        domain.TransportID
	producers []*Producer
	consumers []*Consumer
	closed    bool
}

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) Connect(_ context.Context, remote domain.TransportParameters) (domain.TransportParameters, error) {
	if t.eng.ConnectErr != nil {
		return domain.TransportParameters{}, t.eng.ConnectErr
	}
	return domain.TransportParameters{SDP: "v=0 fake-answer"}, nil
}

func (t *Transport) Produce(_ context.Context, kind domain.Kind, params domain.RTPParameters, app domain.AppData) (engine.Producer, error) {
	if t.eng.ProduceErr != nil {
		return nil, t.eng.ProduceErr
	}
	p := &Producer{
		eng:    t.eng,
		id:     domain.ProducerID(uuid.NewString()),
		kind:   kind,
		app:    app,
		paused: t.eng.ProducePaused,
	}
	t.eng.mu.Lock()
	t.producers = append(t.producers, p)
	t.eng.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producer engine.Producer, caps domain.RTPCapabilities, app domain.AppData) (engine.Consumer, error) {
	if t.eng.ConsumeErr != nil {
		return nil, t.eng.ConsumeErr
	}
	c := &Consumer{
		eng:        t.eng,
		id:         domain.ConsumerID(uuid.NewString()),
		kind:       producer.Kind(),
		producerID: producer.ID(),
		paused:     t.eng.ConsumePaused,
		params:     domain.RTPParameters{Codecs: caps.Codecs},
	}
	t.eng.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.eng.mu.Unlock()
	return c, nil
}

// Close cascades into the transport's producers and consumers, emitting their
// close events before the transport's own, the way engines deliver them.
func (t *Transport) Close() {
	t.eng.mu.Lock()
	if t.closed {
		t.eng.mu.Unlock()
		return
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.eng.mu.Unlock()
	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	t.eng.emit(engine.Event{Type: engine.EventTransportClosed, TransportID: t.id})
}

// Producer is a fake inbound track.
type Producer struct {
	eng    *Engine
	id     domain.ProducerID
	kind   domain.Kind
	app    domain.AppData
	paused bool
	closed bool
}

func (p *Producer) ID() domain.ProducerID   { return p.id }
func (p *Producer) Kind() domain.Kind       { return p.kind }
func (p *Producer) AppData() domain.AppData { return p.app }

func (p *Producer) Paused() bool {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	return p.paused
}

func (p *Producer) Resume(_ context.Context) error {
	if p.eng.ResumeErr != nil {
		return p.eng.ResumeErr
	}
	p.eng.mu.Lock()
	p.paused = false
	p.eng.mu.Unlock()
	return nil
}

func (p *Producer) Close() {
	p.eng.mu.Lock()
	if p.closed {
		p.eng.mu.Unlock()
		return
	}
	p.closed = true
	p.eng.mu.Unlock()
	p.eng.emit(engine.Event{Type: engine.EventProducerClosed, ProducerID: p.id})
}

// Closed reports whether Close was called. Test helper.
func (p *Producer) Closed() bool {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	return p.closed
}

// Consumer is a fake outbound forwarding.
type Consumer struct {
	eng        *Engine
	id         domain.ConsumerID
	kind       domain.Kind
	producerID domain.ProducerID
	params     domain.RTPParameters
	paused     bool
	closed     bool
}

func (c *Consumer) ID() domain.ConsumerID               { return c.id }
func (c *Consumer) Kind() domain.Kind                   { return c.kind }
func (c *Consumer) ProducerID() domain.ProducerID       { return c.producerID }
func (c *Consumer) RTPParameters() domain.RTPParameters { return c.params }

func (c *Consumer) Paused() bool {
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()
	return c.paused
}

func (c *Consumer) Resume(_ context.Context) error {
	if c.eng.ResumeErr != nil {
		return c.eng.ResumeErr
	}
	c.eng.mu.Lock()
	c.paused = false
	c.eng.mu.Unlock()
	return nil
}

func (c *Consumer) Close() {
	c.eng.mu.Lock()
	if c.closed {
		c.eng.mu.Unlock()
		return
	}
	c.closed = true
	c.eng.mu.Unlock()
	c.eng.emit(engine.Event{Type: engine.EventConsumerClosed, ConsumerID: c.id})
}

// Closed reports whether Close was called. Test helper.
func (c *Consumer) Closed() bool {
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()
	return c.closed
}
