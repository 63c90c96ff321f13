// Package pion implements the media engine boundary on pion/webrtc. Each
// worker carries its own SettingEngine (port range, announced IP); each
// router builds a MediaEngine from the room's codec set and negotiates
// transports as the SDP answerer.
package pion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// Engine is the pion-backed media engine.
type Engine struct {
	events chan engine.Event
}

func New() *Engine {
	return &Engine{events: make(chan engine.Event, 256)}
}

func (e *Engine) Events() <-chan engine.Event { return e.events }

func (e *Engine) emit(ev engine.Event) {
	select {
	case e.events <- ev:
	default:
		log.Warn().Str("module", "engine.pion").Str("type", string(ev.Type)).Msg("event channel full, notification dropped")
	}
}

func (e *Engine) CreateWorker(_ context.Context, opts engine.WorkerOptions) (engine.Worker, error) {
	se := webrtc.SettingEngine{}
	if opts.RTCMinPort > 0 && opts.RTCMaxPort >= opts.RTCMinPort {
		if err := se.SetEphemeralUDPPortRange(opts.RTCMinPort, opts.RTCMaxPort); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}
	if opts.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{opts.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	return &worker{
		eng:      e,
		id:       domain.WorkerID(fmt.Sprintf("worker-%d", opts.Index)),
		settings: se,
	}, nil
}

type worker struct {
	eng      *Engine
	id       domain.WorkerID
	settings webrtc.SettingEngine
}

func (w *worker) ID() domain.WorkerID { return w.id }

func (w *worker) CreateRouter(_ context.Context, codecs []domain.MediaCodec) (engine.Router, error) {
	m := &webrtc.MediaEngine{}
	audioPT, videoPT := webrtc.PayloadType(111), webrtc.PayloadType(96)
	for _, c := range codecs {
		capability := webrtc.RTPCodecCapability{
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: fmtpLine(c.Parameters),
		}
		switch c.Kind {
		case domain.KindAudio:
			if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: capability, PayloadType: audioPT}, webrtc.RTPCodecTypeAudio); err != nil {
				return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
			}
			audioPT++
		case domain.KindVideo:
			if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: capability, PayloadType: videoPT}, webrtc.RTPCodecTypeVideo); err != nil {
				return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
			}
			videoPT++
		default:
			return nil, fmt.Errorf("unknown codec kind %q", c.Kind)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(w.settings))
	return &router{
		eng:    w.eng,
		id:     domain.RouterID(uuid.NewString()),
		api:    api,
		codecs: codecs,
	}, nil
}

func (w *worker) Close() {}

// fmtpLine renders codec parameters as an SDP fmtp attribute, keys sorted so
// the line is stable across runs.
func fmtpLine(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

type router struct {
	eng    *Engine
	id     domain.RouterID
	api    *webrtc.API
	codecs []domain.MediaCodec

	mu         sync.Mutex
	transports []*transport
	closed     bool
}

func (r *router) ID() domain.RouterID { return r.id }

func (r *router) Capabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{Codecs: r.codecs}
}

func (r *router) CreateTransport(_ context.Context, opts engine.TransportOptions) (engine.Transport, domain.TransportParameters, error) {
	pc, err := r.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, domain.TransportParameters{}, err
	}
	t := &transport{
		eng: r.eng,
		id:  domain.TransportID(uuid.NewString()),
		pc:  pc,
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.onStateChange(s)
	})
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	// No SDP exists before the client's offer arrives on connect; creation
	// only hands back the transport identity.
	return t, domain.TransportParameters{}, nil
}

// CanConsume checks that the receiver declares a codec compatible with the
// producer's: same kind and mime type, matching clock rate.
func (r *router) CanConsume(producer engine.Producer, caps domain.RTPCapabilities) bool {
	p, ok := producer.(*producerImpl)
	if !ok {
		return false
	}
	for _, c := range caps.Codecs {
		if c.Kind != p.kind {
			continue
		}
		if !strings.EqualFold(c.MimeType, p.codec.MimeType) {
			continue
		}
		if c.ClockRate == p.codec.ClockRate {
			return true
		}
	}
	return false
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := r.transports
	r.mu.Unlock()
	for _, t := range transports {
		t.Close()
	}
}

type transport struct {
	eng *Engine
	id  domain.TransportID
	pc  *webrtc.PeerConnection

	mu        sync.Mutex
	producers []*producerImpl
	consumers []*consumerImpl
	closed    bool
}

func (t *transport) ID() domain.TransportID { return t.id }

func (t *transport) onStateChange(s webrtc.PeerConnectionState) {
	var state domain.TransportState
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		state = domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		state = domain.TransportConnected
	case webrtc.PeerConnectionStateFailed:
		state = domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		t.Close()
		return
	default:
		return
	}
	t.eng.emit(engine.Event{Type: engine.EventTransportState, TransportID: t.id, State: state})
}

// Connect applies the client's offer and answers it, waiting for ICE
// gathering so the answer carries the candidates.
func (t *transport) Connect(ctx context.Context, remote domain.TransportParameters) (domain.TransportParameters, error) {
	if remote.SDP == "" {
		return domain.TransportParameters{}, fmt.Errorf("connect: empty remote sdp")
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remote.SDP}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return domain.TransportParameters{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.TransportParameters{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return domain.TransportParameters{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return domain.TransportParameters{}, ctx.Err()
	}
	local := t.pc.LocalDescription()
	if local == nil {
		return domain.TransportParameters{}, fmt.Errorf("connect: no local description after gathering")
	}
	return domain.TransportParameters{SDP: local.SDP}, nil
}

func (t *transport) Produce(_ context.Context, kind domain.Kind, params domain.RTPParameters, app domain.AppData) (engine.Producer, error) {
	codecType := webrtc.RTPCodecTypeAudio
	if kind == domain.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	if _, err := t.pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return nil, err
	}
	var codec domain.MediaCodec
	if len(params.Codecs) > 0 {
		codec = params.Codecs[0]
	}
	p := &producerImpl{
		eng:   t.eng,
		id:    domain.ProducerID(uuid.NewString()),
		kind:  kind,
		codec: codec,
		app:   app,
	}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *transport) Consume(_ context.Context, producer engine.Producer, caps domain.RTPCapabilities, app domain.AppData) (engine.Consumer, error) {
	p, ok := producer.(*producerImpl)
	if !ok {
		return nil, fmt.Errorf("consume: foreign producer handle")
	}
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  p.codec.MimeType,
		ClockRate: p.codec.ClockRate,
		Channels:  p.codec.Channels,
	}, string(p.id), "mediabridge")
	if err != nil {
		return nil, err
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	c := &consumerImpl{
		eng:        t.eng,
		id:         domain.ConsumerID(uuid.NewString()),
		kind:       p.kind,
		producerID: p.id,
		params:     domain.RTPParameters{Codecs: []domain.MediaCodec{p.codec}},
		pc:         t.pc,
		sender:     sender,
	}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.mu.Unlock()
	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "engine.pion").Str("transport", string(t.id)).Msg("peer connection close")
	}
	t.eng.emit(engine.Event{Type: engine.EventTransportClosed, TransportID: t.id})
}

type producerImpl struct {
	eng   *Engine
	id    domain.ProducerID
	kind  domain.Kind
	codec domain.MediaCodec
	app   domain.AppData

	mu     sync.Mutex
	paused bool
	closed bool
}

func (p *producerImpl) ID() domain.ProducerID   { return p.id }
func (p *producerImpl) Kind() domain.Kind       { return p.kind }
func (p *producerImpl) AppData() domain.AppData { return p.app }

func (p *producerImpl) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *producerImpl) Resume(_ context.Context) error {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	return nil
}

func (p *producerImpl) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.eng.emit(engine.Event{Type: engine.EventProducerClosed, ProducerID: p.id})
}

type consumerImpl struct {
	eng        *Engine
	id         domain.ConsumerID
	kind       domain.Kind
	producerID domain.ProducerID
	params     domain.RTPParameters
	pc         *webrtc.PeerConnection
	sender     *webrtc.RTPSender

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *consumerImpl) ID() domain.ConsumerID               { return c.id }
func (c *consumerImpl) Kind() domain.Kind                   { return c.kind }
func (c *consumerImpl) ProducerID() domain.ProducerID       { return c.producerID }
func (c *consumerImpl) RTPParameters() domain.RTPParameters { return c.params }

func (c *consumerImpl) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumerImpl) Resume(_ context.Context) error {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	return nil
}

func (c *consumerImpl) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if err := c.pc.RemoveTrack(c.sender); err != nil {
		log.Debug().Err(err).Str("module", "engine.pion").Str("consumer", string(c.id)).Msg("remove track")
	}
	c.eng.emit(engine.Event{Type: engine.EventConsumerClosed, ConsumerID: c.id})
}
