package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/sfu/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "auto", cfg.WorkerCount)
	assert.Equal(t, uint16(40000), cfg.RTCMinPort)
	assert.Equal(t, uint16(49999), cfg.RTCMaxPort)
	assert.Equal(t, "127.0.0.1", cfg.AnnouncedIP)
	assert.Positive(t, cfg.GracePeriod)
	assert.Positive(t, cfg.CallTimeout)
}

func TestWorkerPoolSize(t *testing.T) {
	tests := []struct {
		name  string
		count string
		want  int
	}{
		{"explicit count", "4", 4},
		{"garbage falls back to one", "many", 1},
		{"zero falls back to one", "0", 1},
		{"negative falls back to one", "-3", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{WorkerCount: tt.count}
			assert.Equal(t, tt.want, cfg.WorkerPoolSize())
		})
	}

	t.Run("auto is at least one", func(t *testing.T) {
		cfg := &Config{WorkerCount: "auto"}
		assert.GreaterOrEqual(t, cfg.WorkerPoolSize(), 1)
		empty := &Config{}
		assert.Equal(t, cfg.WorkerPoolSize(), empty.WorkerPoolSize())
	})
}

func TestMediaCodecs(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	codecs := cfg.MediaCodecs()
	require.NotEmpty(t, codecs)

	kinds := map[domain.Kind]bool{}
	mimes := map[string]bool{}
	for _, c := range codecs {
		assert.True(t, c.Kind.Valid(), "codec kind %q", c.Kind)
		kinds[c.Kind] = true
		mimes[c.MimeType] = true
	}
	assert.True(t, kinds[domain.KindAudio])
	assert.True(t, kinds[domain.KindVideo])
	assert.True(t, mimes["audio/opus"])
	assert.True(t, mimes["video/VP8"])

	for _, c := range codecs {
		if c.MimeType == "audio/opus" {
			assert.Equal(t, uint32(48000), c.ClockRate)
			assert.Equal(t, uint16(2), c.Channels)
		}
	}
}
