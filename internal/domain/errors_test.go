package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{ErrRoomNotFound, ErrTransportNotFound, ErrProducerNotFound, ErrConsumerNotFound} {
		assert.True(t, IsNotFound(err), "%v", err)
		assert.True(t, IsNotFound(fmt.Errorf("%w: some-id", err)), "wrapped %v", err)
	}
	for _, err := range []error{ErrUnavailable, ErrAllocation, ErrIncompatibleCapabilities, ErrEngineTimeout, ErrEngineFailure, ErrInvariant, errors.New("other")} {
		assert.False(t, IsNotFound(err), "%v", err)
	}
	assert.False(t, IsNotFound(nil))
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindAudio.Valid())
	assert.True(t, KindVideo.Valid())
	assert.False(t, Kind("screen").Valid())
	assert.False(t, Kind("").Valid())
}

func TestDirectionValid(t *testing.T) {
	assert.True(t, DirectionSend.Valid())
	assert.True(t, DirectionRecv.Valid())
	assert.False(t, Direction("both").Valid())
}

func TestTransportStateTerminal(t *testing.T) {
	assert.True(t, TransportClosed.Terminal())
	for _, s := range []TransportState{TransportCreated, TransportConnecting, TransportConnected, TransportFailed} {
		assert.False(t, s.Terminal(), "%v", s)
	}
}
