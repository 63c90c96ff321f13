package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine/enginetest"
)

const (
	eventWait = 2 * time.Second
	eventTick = 5 * time.Millisecond
)

func startRun(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go o.Run(ctx)
}

func TestEngineProducerClosedEvent(t *testing.T) {
	eng := enginetest.New()
	o := newTestOrchestrator(t, eng, 1)
	startRun(t, o)
	_, _, prod := setupSession(t, o, "room-a")

	_, pe, ok := o.Registry.FindProducer(prod.ProducerID)
	require.True(t, ok)

	// Engine-side close, as if the remote peer tore the track down.
	pe.Producer.Close()

	require.Eventually(t, func() bool {
		_, _, found := o.Registry.FindProducer(prod.ProducerID)
		return !found
	}, eventWait, eventTick, "event loop must drop the registry entry")

	// The explicit close that races in afterwards is a no-op.
	assert.NoError(t, o.CloseProducer(prod.ProducerID))
}

func TestEngineTransportClosedEventCascades(t *testing.T) {
	eng := enginetest.New()
	o := newTestOrchestrator(t, eng, 1)
	startRun(t, o)
	send, _, prod := setupSession(t, o, "room-a")

	_, te, ok := o.Registry.FindTransport(send.TransportID)
	require.True(t, ok)

	te.Transport.Close()

	require.Eventually(t, func() bool {
		_, _, foundT := o.Registry.FindTransport(send.TransportID)
		_, _, foundP := o.Registry.FindProducer(prod.ProducerID)
		return !foundT && !foundP
	}, eventWait, eventTick, "transport close must take its producers with it")

	assert.NoError(t, o.CloseTransport(send.TransportID))
}

func TestTransportStateEvent(t *testing.T) {
	eng := enginetest.New()
	o := newTestOrchestrator(t, eng, 1)
	startRun(t, o)
	_, _, err := o.CreateRoom(context.Background(), "room-a")
	require.NoError(t, err)
	tv, err := o.CreateTransport(context.Background(), "room-a", domain.DirectionSend, "alice")
	require.NoError(t, err)

	eng.EmitTransportState(tv.TransportID, domain.TransportFailed)

	require.Eventually(t, func() bool {
		_, entry, ok := o.Registry.FindTransport(tv.TransportID)
		return ok && entry.State == domain.TransportFailed
	}, eventWait, eventTick)
}

func TestWorkerDiedTerminates(t *testing.T) {
	eng := enginetest.New()
	o := newTestOrchestrator(t, eng, 1)
	o.GracePeriod = 10 * time.Millisecond

	exited := make(chan int, 1)
	o.SetExitFunc(func(code int) {
		select {
		case exited <- code:
		default:
		}
	})
	startRun(t, o)

	eng.KillWorker("worker-0")

	select {
	case code := <-exited:
		assert.Equal(t, 1, code, "worker death is fatal")
	case <-time.After(eventWait):
		t.Fatal("process did not terminate after worker death")
	}
}

func TestFeed(t *testing.T) {
	t.Run("subscriber sees only its room", func(t *testing.T) {
		f := NewFeed()
		events, cancel := f.Subscribe("room-a")
		defer cancel()

		f.Publish(FeedEvent{RoomID: "room-b", Type: "producer.added", ID: "p-other"})
		f.Publish(FeedEvent{RoomID: "room-a", Type: "producer.added", ID: "p-1"})

		select {
		case ev := <-events:
			assert.Equal(t, domain.RoomID("room-a"), ev.RoomID)
			assert.Equal(t, "p-1", ev.ID)
		case <-time.After(eventWait):
			t.Fatal("expected a feed event")
		}
		select {
		case ev := <-events:
			t.Fatalf("unexpected event for another room: %+v", ev)
		default:
		}
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		f := NewFeed()
		events, cancel := f.Subscribe("room-a")
		cancel()
		_, open := <-events
		assert.False(t, open)
		cancel() // repeated cancel is safe
	})

	t.Run("slow subscriber drops instead of blocking", func(t *testing.T) {
		f := NewFeed()
		_, cancel := f.Subscribe("room-a")
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 1000; i++ {
				f.Publish(FeedEvent{RoomID: "room-a", Type: "transport.added"})
			}
		}()
		select {
		case <-done:
		case <-time.After(eventWait):
			t.Fatal("publish blocked on a full subscriber")
		}
	})
}
