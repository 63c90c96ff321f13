package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/mediabridge/sfu/internal/domain"
)

// Codec is the config-file shape of one router media codec.
type Codec struct {
	Kind       string         `mapstructure:"kind"`
	MimeType   string         `mapstructure:"mime_type"`
	ClockRate  uint32         `mapstructure:"clock_rate"`
	Channels   uint16         `mapstructure:"channels"`
	Parameters map[string]any `mapstructure:"parameters"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	WorkerCount string        `mapstructure:"worker_count"`
	RTCMinPort  uint16        `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16        `mapstructure:"rtc_max_port"`
	AnnouncedIP string        `mapstructure:"announced_ip"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Codecs      []Codec       `mapstructure:"codecs"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("worker_count", "auto")
	v.SetDefault("rtc_min_port", 40000)
	v.SetDefault("rtc_max_port", 49999)
	v.SetDefault("announced_ip", "127.0.0.1")
	v.SetDefault("grace_period", "2s")
	v.SetDefault("call_timeout", "10s")
	v.SetDefault("codecs", defaultCodecs())

	// Missing config file is fine; defaults cover a local run.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// WorkerPoolSize resolves the worker_count knob: "auto" means half the CPU
// cores, at least one.
func (c *Config) WorkerPoolSize() int {
	if c.WorkerCount == "" || c.WorkerCount == "auto" {
		n := runtime.NumCPU() / 2
		if n < 1 {
			n = 1
		}
		return n
	}
	n, err := strconv.Atoi(c.WorkerCount)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// MediaCodecs converts the configured codec set to domain form.
func (c *Config) MediaCodecs() []domain.MediaCodec {
	out := make([]domain.MediaCodec, 0, len(c.Codecs))
	for _, cc := range c.Codecs {
		out = append(out, domain.MediaCodec{
			Kind:       domain.Kind(cc.Kind),
			MimeType:   cc.MimeType,
			ClockRate:  cc.ClockRate,
			Channels:   cc.Channels,
			Parameters: cc.Parameters,
		})
	}
	return out
}

func defaultCodecs() []map[string]any {
	return []map[string]any{
		{
			"kind":       "audio",
			"mime_type":  "audio/opus",
			"clock_rate": 48000,
			"channels":   2,
			"parameters": map[string]any{"useinbandfec": 1},
		},
		{
			"kind":       "video",
			"mime_type":  "video/VP8",
			"clock_rate": 90000,
			"parameters": map[string]any{"x-google-start-bitrate": 1000},
		},
		{
			"kind":       "video",
			"mime_type":  "video/VP9",
			"clock_rate": 90000,
			"parameters": map[string]any{"profile-id": 2, "x-google-start-bitrate": 1000},
		},
		{
			"kind":       "video",
			"mime_type":  "video/H264",
			"clock_rate": 90000,
			"parameters": map[string]any{
				"packetization-mode":      1,
				"profile-level-id":        "42e01f",
				"level-asymmetry-allowed": 1,
				"x-google-start-bitrate":  1000,
			},
		},
	}
}
