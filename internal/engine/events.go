package engine

import "github.com/mediabridge/sfu/internal/domain"

// EventType discriminates engine notifications.
type EventType string

const (
	// EventWorkerDied signals an unexpected worker termination. Fatal to the
	// service; there is no respawn.
	EventWorkerDied EventType = "worker.died"

	// EventTransportState reports a negotiation state change.
	EventTransportState EventType = "transport.state"

	// EventTransportClosed reports a transport close, whether explicit or
	// cascaded from its router.
	EventTransportClosed EventType = "transport.closed"

	EventProducerClosed EventType = "producer.closed"
	EventConsumerClosed EventType = "consumer.closed"
)

// Event is one engine notification. Fields are populated per Type; ids not
// relevant to the event are zero.
type Event struct {
	Type        EventType
	WorkerID    domain.WorkerID
	TransportID domain.TransportID
	ProducerID  domain.ProducerID
	ConsumerID  domain.ConsumerID
	State       domain.TransportState
}
