package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// Run consumes the engine's event stream until ctx is done. Event-driven
// removals are the idempotent fallback behind the proactive cascade in the
// explicit close paths: an entry already removed is simply gone.
func (o *Orchestrator) Run(ctx context.Context) {
	events := o.Engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handleEvent(ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventWorkerDied:
		o.onWorkerDied(ev.WorkerID)

	case engine.EventTransportState:
		o.onTransportState(ev.TransportID, ev.State)

	case engine.EventTransportClosed:
		// The engine already cascaded into the transport's children; only the
		// registry entries need to go.
		if producers, consumers, ok := o.Registry.UnregisterTransport(ev.TransportID); ok {
			for range producers {
				o.Metrics.ProducerClosed()
			}
			for range consumers {
				o.Metrics.ConsumerClosed()
			}
			o.Metrics.TransportClosed()
			log.Info().Str("module", "app").Str("transport", string(ev.TransportID)).Msg("transport closed by engine")
		}

	case engine.EventProducerClosed:
		if _, ok := o.Registry.UnregisterProducer(ev.ProducerID); ok {
			o.Metrics.ProducerClosed()
			log.Info().Str("module", "app").Str("producer", string(ev.ProducerID)).Msg("producer closed by engine")
		}

	case engine.EventConsumerClosed:
		if _, ok := o.Registry.UnregisterConsumer(ev.ConsumerID); ok {
			o.Metrics.ConsumerClosed()
			log.Info().Str("module", "app").Str("consumer", string(ev.ConsumerID)).Msg("consumer closed by engine")
		}
	}
}

func (o *Orchestrator) onTransportState(id domain.TransportID, state domain.TransportState) {
	o.Registry.SetTransportState(id, state)
	evt := log.Info()
	if state == domain.TransportFailed {
		evt = log.Error()
	}
	evt.Str("module", "app").Str("transport", string(id)).Str("state", string(state)).Msg("transport state change")
}

// onWorkerDied terminates the service after a short grace period. Resuming
// with a silently reduced pool would corrupt the allocation assumptions and
// route new rooms onto a nonexistent worker.
func (o *Orchestrator) onWorkerDied(id domain.WorkerID) {
	grace := o.GracePeriod
	if grace <= 0 {
		grace = 2 * time.Second
	}
	log.Error().Str("module", "app").Str("worker", string(id)).Dur("grace", grace).Msg("worker died, terminating service")
	time.AfterFunc(grace, func() { o.exit(1) })
}

// SetExitFunc overrides process termination on worker death. Test hook.
func (o *Orchestrator) SetExitFunc(fn func(int)) {
	o.exit = fn
}
