package domain

// MediaCodec describes one codec a router can route.
type MediaCodec struct {
	Kind       Kind           `json:"kind"`
	MimeType   string         `json:"mimeType"`
	ClockRate  uint32         `json:"clockRate"`
	Channels   uint16         `json:"channels,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RTPCapabilities is the codec set a router offers, or a receiver declares.
type RTPCapabilities struct {
	Codecs []MediaCodec `json:"codecs"`
}

// RTPParameters carries the negotiated send/receive parameters of a single track.
type RTPParameters struct {
	Codecs []MediaCodec `json:"codecs"`
	CNAME  string       `json:"cname,omitempty"`
}

// TransportParameters is the engine-produced connection material for a
// transport: for the bundled engine this is an SDP blob, exchanged on connect.
type TransportParameters struct {
	SDP string `json:"sdp,omitempty"`
}

// AppData is application metadata attached to producers and consumers.
type AppData struct {
	UserID    string `json:"userId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

// ProducerSummary is the read-only view of a producer exposed to clients.
type ProducerSummary struct {
	ID        ProducerID `json:"id"`
	Kind      Kind       `json:"kind"`
	UserID    string     `json:"userId,omitempty"`
	ChannelID string     `json:"channelId,omitempty"`
}

// RoomStatus is a point-in-time snapshot of one room.
type RoomStatus struct {
	RoomID         RoomID            `json:"roomId"`
	RouterID       RouterID          `json:"routerId"`
	TransportCount int               `json:"transportCount"`
	ProducerCount  int               `json:"producerCount"`
	ConsumerCount  int               `json:"consumerCount"`
	Producers      []ProducerSummary `json:"producers"`
}
