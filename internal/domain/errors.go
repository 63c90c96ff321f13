package domain

import "errors"

var (
	// ErrUnavailable indicates the worker pool is not initialized.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRoomNotFound indicates the room id is unknown to the registry.
	ErrRoomNotFound = errors.New("room not found")

	// ErrTransportNotFound indicates no transport with that id exists in any room.
	ErrTransportNotFound = errors.New("transport not found")

	// ErrProducerNotFound indicates no producer with that id exists in any room.
	ErrProducerNotFound = errors.New("producer not found")

	// ErrConsumerNotFound indicates no consumer with that id exists in any room.
	ErrConsumerNotFound = errors.New("consumer not found")

	// ErrAllocation indicates worker or router creation failed.
	ErrAllocation = errors.New("allocation failed")

	// ErrIncompatibleCapabilities indicates the receiver cannot consume the
	// producer's media. A client error, never retried by the server.
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")

	// ErrEngineTimeout indicates a media engine call did not complete in time.
	ErrEngineTimeout = errors.New("engine timeout")

	// ErrEngineFailure indicates a media engine call failed.
	ErrEngineFailure = errors.New("engine failure")

	// ErrInvariant indicates an ownership graph inconsistency. Should never
	// occur; must be logged loudly, never swallowed.
	ErrInvariant = errors.New("ownership invariant violated")
)

// IsNotFound reports whether err resolves to any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrTransportNotFound) ||
		errors.Is(err, ErrProducerNotFound) ||
		errors.Is(err, ErrConsumerNotFound)
}
