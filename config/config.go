// Package config holds the process-wide configuration record described
// by this module's specification: the option table a deployment tunes
// the channel router with, loaded from the environment the way
// cmd/prism/main.go's envOr loads its own addresses and flags.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ChannelType distinguishes the pipeline topology the channel serves,
// mirroring channel_type from the option table. The router itself is
// agnostic to this value; it's forwarded for the consumer's own
// routing/dashboarding purposes.
type ChannelType string

const (
	ChannelTypeVideo ChannelType = "video"
	ChannelTypeAudio ChannelType = "audio"
	ChannelTypeMixed ChannelType = "mixed"
)

// ChannelRole distinguishes whether this process's channel acts as an
// ingest point or a distribution point in the broader pipeline.
type ChannelRole string

const (
	ChannelRoleIngest       ChannelRole = "ingest"
	ChannelRoleDistribution ChannelRole = "distribution"
)

// Config is the full option table from spec section 6: logging, the
// executor's threading model, Connection construction defaults, and the
// knobs this module treats as opaque/forwarded — buffer pool sizing and
// stream geometry defaults belong to collaborators outside the router's
// scope, but a deployment still configures them in one place.
type Config struct {
	LogLevel string
	LogFile  string

	ChannelType ChannelType
	ChannelRole ChannelRole

	InlineHandlers bool
	NumThreads     int

	Adapter string
	Host    string
	Port    int

	BufferDelay time.Duration
	TxTimeout   time.Duration

	LargeBufferPoolSize int
	SmallBufferPoolSize int
	LargeBufferSize     int
	SmallBufferSize     int

	VideoWidth     int
	VideoHeight    int
	VideoFrameRate float64
	AudioSampleHz  int
	AudioChannels  int
}

// Default returns the option table's documented defaults.
func Default() Config {
	return Config{
		LogLevel:    "info",
		ChannelType: ChannelTypeVideo,
		ChannelRole: ChannelRoleIngest,
		NumThreads:  0,
		Adapter:     "0.0.0.0",
		Host:        "0.0.0.0",
		Port:        6000,

		BufferDelay: 200 * time.Millisecond,
		TxTimeout:   5 * time.Second,

		LargeBufferPoolSize: 64,
		SmallBufferPoolSize: 256,
		LargeBufferSize:     188 * 7 * 64,
		SmallBufferSize:     1500,

		VideoWidth:     1920,
		VideoHeight:    1080,
		VideoFrameRate: 29.97,
		AudioSampleHz:  48000,
		AudioChannels:  2,
	}
}

// LoadFromEnv overlays Default with whatever CHANNELD_-prefixed
// environment variables are set, in the style of cmd/prism/main.go's
// envOr: each field has its own fallback, never a bulk unmarshal.
func LoadFromEnv() Config {
	c := Default()

	c.LogLevel = envOr("CHANNELD_LOG_LEVEL", c.LogLevel)
	c.LogFile = envOr("CHANNELD_LOG_FILE", c.LogFile)

	c.ChannelType = ChannelType(envOr("CHANNELD_CHANNEL_TYPE", string(c.ChannelType)))
	c.ChannelRole = ChannelRole(envOr("CHANNELD_CHANNEL_ROLE", string(c.ChannelRole)))

	c.InlineHandlers = envBoolOr("CHANNELD_INLINE_HANDLERS", c.InlineHandlers)
	c.NumThreads = envIntOr("CHANNELD_NUM_THREADS", c.NumThreads)

	c.Adapter = envOr("CHANNELD_ADAPTER", c.Adapter)
	c.Host = envOr("CHANNELD_HOST", c.Host)
	c.Port = envIntOr("CHANNELD_PORT", c.Port)

	c.BufferDelay = envDurationOr("CHANNELD_BUFFER_DELAY", c.BufferDelay)
	c.TxTimeout = envDurationOr("CHANNELD_TX_TIMEOUT", c.TxTimeout)

	c.LargeBufferPoolSize = envIntOr("CHANNELD_LARGE_BUFFER_POOL_SIZE", c.LargeBufferPoolSize)
	c.SmallBufferPoolSize = envIntOr("CHANNELD_SMALL_BUFFER_POOL_SIZE", c.SmallBufferPoolSize)
	c.LargeBufferSize = envIntOr("CHANNELD_LARGE_BUFFER_SIZE", c.LargeBufferSize)
	c.SmallBufferSize = envIntOr("CHANNELD_SMALL_BUFFER_SIZE", c.SmallBufferSize)

	c.VideoWidth = envIntOr("CHANNELD_VIDEO_WIDTH", c.VideoWidth)
	c.VideoHeight = envIntOr("CHANNELD_VIDEO_HEIGHT", c.VideoHeight)
	c.AudioSampleHz = envIntOr("CHANNELD_AUDIO_SAMPLE_HZ", c.AudioSampleHz)
	c.AudioChannels = envIntOr("CHANNELD_AUDIO_CHANNELS", c.AudioChannels)

	return c
}

// SlogLevel parses LogLevel into a slog.Level, defaulting to Info on an
// unrecognized value.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
