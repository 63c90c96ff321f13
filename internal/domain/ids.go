// Package domain contains entities without logic, just meta-data.
package domain

type (
	WorkerID    string
	RoomID      string
	RouterID    string
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// Direction tags a transport with the side of the media flow it carries.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

// TransportState is the negotiation state machine of a transport.
// Terminal state is closed; there is no resurrection.
type TransportState string

const (
	TransportCreated    TransportState = "created"
	TransportConnecting TransportState = "connecting"
	TransportConnected  TransportState = "connected"
	TransportFailed     TransportState = "failed"
	TransportClosed     TransportState = "closed"
)

func (s TransportState) Terminal() bool {
	return s == TransportClosed
}
