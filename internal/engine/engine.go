// Package engine defines the boundary with the media engine. The registry
// treats every handle here as an opaque capability object: it never touches
// media bits, only creates, connects and closes.
package engine

import (
	"context"

	"github.com/mediabridge/sfu/internal/domain"
)

// Engine creates workers and delivers asynchronous entity notifications on a
// single typed stream. The orchestrator is the only consumer of Events.
type Engine interface {
	CreateWorker(ctx context.Context, opts WorkerOptions) (Worker, error)
	Events() <-chan Event
}

// WorkerOptions configures one pool slot.
type WorkerOptions struct {
	Index       int
	RTCMinPort  uint16
	RTCMaxPort  uint16
	AnnouncedIP string
}

// Worker is an opaque media-processing execution context. Created once at
// startup per pool slot, destroyed only at process shutdown.
type Worker interface {
	ID() domain.WorkerID
	CreateRouter(ctx context.Context, codecs []domain.MediaCodec) (Router, error)
	Close()
}

// Router is the per-room routing context.
type Router interface {
	ID() domain.RouterID
	Capabilities() domain.RTPCapabilities
	CreateTransport(ctx context.Context, opts TransportOptions) (Transport, domain.TransportParameters, error)
	// CanConsume is the capability-negotiation check: whether a receiver with
	// the given capabilities can decode the producer's media. A negative
	// result is a client error, not a server error.
	CanConsume(producer Producer, caps domain.RTPCapabilities) bool
	Close()
}

// TransportOptions tags a transport with its participant and direction.
type TransportOptions struct {
	Direction domain.Direction
	UserID    string
}

// Transport is a bidirectional media endpoint bound to one room and one
// participant.
type Transport interface {
	ID() domain.TransportID
	// Connect forwards the remote negotiation parameters and returns the
	// local ones (for the bundled engine, the SDP answer).
	Connect(ctx context.Context, remote domain.TransportParameters) (domain.TransportParameters, error)
	Produce(ctx context.Context, kind domain.Kind, params domain.RTPParameters, app domain.AppData) (Producer, error)
	Consume(ctx context.Context, producer Producer, caps domain.RTPCapabilities, app domain.AppData) (Consumer, error)
	Close()
}

// Producer is an inbound media track published over a transport.
type Producer interface {
	ID() domain.ProducerID
	Kind() domain.Kind
	Paused() bool
	Resume(ctx context.Context) error
	AppData() domain.AppData
	Close()
}

// Consumer forwards one producer's media to another transport.
type Consumer interface {
	ID() domain.ConsumerID
	Kind() domain.Kind
	ProducerID() domain.ProducerID
	Paused() bool
	Resume(ctx context.Context) error
	RTPParameters() domain.RTPParameters
	Close()
}
