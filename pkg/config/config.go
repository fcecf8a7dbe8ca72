package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"chat-playback-engine/pkg/constants"
	"chat-playback-engine/pkg/playback"
	"chat-playback-engine/pkg/viewport"
)

type Config struct {
	RedisURL      string
	InstanceID    string
	Port          string
	LogLevel      string
	EventsStream  string
	StatsKey      string
	ScenariosFile string
	Slots         []string
	EventBuffer   int

	TypingWPM         int
	JitterMaxMS       int64
	JitterSeed        int64
	PauseMS           int64
	PreDelayMS        int64
	TypingIndicatorMS int64
	InputStartDelayMS int64
	InputSettleMS     int64
	AdvanceDelayMS    int64
	AutoAdvance       bool

	ScrollThresholdPX float64
	ResizeThresholdPX float64
	ScrollDebounceMS  int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() *Config {
	config := &Config{
		RedisURL:      getEnv("REDIS_URL", ""),
		InstanceID:    getEnv("INSTANCE_ID", generateInstanceID()),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EventsStream:  getEnv(constants.EnvEventsStream, constants.PlaybackEventsStream),
		StatsKey:      getEnv(constants.EnvStatsKey, constants.PlaybackStatsKey),
		ScenariosFile: getEnv(constants.EnvScenariosFile, ""),
		Slots:         getEnvList(constants.EnvSlots, []string{"hero", "overview", "features"}),
		EventBuffer:   getEnvInt(constants.EnvEventBuffer, 256),

		TypingWPM:         getEnvInt(constants.EnvTypingWPM, constants.DefaultTypingWPM),
		JitterMaxMS:       getEnvInt64(constants.EnvJitterMax, constants.DefaultJitterMaxMS),
		JitterSeed:        getEnvInt64(constants.EnvJitterSeed, 0),
		PauseMS:           getEnvInt64(constants.EnvPause, constants.DefaultPauseMS),
		PreDelayMS:        getEnvInt64(constants.EnvPreDelay, constants.DefaultPreDelayMS),
		TypingIndicatorMS: getEnvInt64(constants.EnvTypingIndicator, constants.DefaultTypingIndicatorMS),
		InputStartDelayMS: getEnvInt64(constants.EnvInputStartDelay, constants.DefaultInputStartDelayMS),
		InputSettleMS:     getEnvInt64(constants.EnvInputSettle, constants.DefaultInputSettleMS),
		AdvanceDelayMS:    getEnvInt64(constants.EnvAdvanceDelay, constants.DefaultAdvanceDelayMS),
		AutoAdvance:       getEnvBool(constants.EnvAutoAdvance, true),

		ScrollThresholdPX: getEnvFloat(constants.EnvScrollThreshold, constants.DefaultScrollThresholdPX),
		ResizeThresholdPX: getEnvFloat(constants.EnvResizeThreshold, constants.DefaultResizeThresholdPX),
		ScrollDebounceMS:  getEnvInt64(constants.EnvScrollDebounce, constants.DefaultScrollDebounceMS),
	}

	return config
}

// RedisEnabled reports whether attribution events go to Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func (c *Config) AdvanceDelay() time.Duration {
	return constants.MillisecondsToDuration(c.AdvanceDelayMS)
}

// PlaybackTiming returns the scheduler delays.
func (c *Config) PlaybackTiming() playback.Timing {
	return playback.Timing{
		WPM:             c.TypingWPM,
		Pause:           constants.MillisecondsToDuration(c.PauseMS),
		JitterMax:       constants.MillisecondsToDuration(c.JitterMaxMS),
		JitterSeed:      c.JitterSeed,
		PreDelay:        constants.MillisecondsToDuration(c.PreDelayMS),
		TypingIndicator: constants.MillisecondsToDuration(c.TypingIndicatorMS),
		InputStartDelay: constants.MillisecondsToDuration(c.InputStartDelayMS),
		InputSettle:     constants.MillisecondsToDuration(c.InputSettleMS),
	}
}

// HostConfig returns the playback host settings for slot.
func (c *Config) HostConfig(slot string) playback.HostConfig {
	return playback.HostConfig{
		Slot:         slot,
		InstanceID:   c.InstanceID,
		Timing:       c.PlaybackTiming(),
		AutoAdvance:  c.AutoAdvance,
		AdvanceDelay: c.AdvanceDelay(),
	}
}

// Viewport returns the follower thresholds for stream clients.
func (c *Config) Viewport() viewport.Config {
	return viewport.Config{
		Threshold:       c.ScrollThresholdPX,
		ResizeThreshold: c.ResizeThresholdPX,
		Debounce:        constants.MillisecondsToDuration(c.ScrollDebounceMS),
	}
}

// Scale divides every playback delay by speed, for fast terminal previews.
func (c *Config) Scale(speed float64) {
	if speed <= 0 || speed == 1 {
		return
	}
	scale := func(ms int64) int64 { return int64(float64(ms) / speed) }
	c.TypingWPM = int(float64(c.TypingWPM) * speed)
	c.JitterMaxMS = scale(c.JitterMaxMS)
	c.PauseMS = scale(c.PauseMS)
	c.PreDelayMS = scale(c.PreDelayMS)
	c.TypingIndicatorMS = scale(c.TypingIndicatorMS)
	c.InputStartDelayMS = scale(c.InputStartDelayMS)
	c.InputSettleMS = scale(c.InputSettleMS)
	c.AdvanceDelayMS = scale(c.AdvanceDelayMS)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname + "-" + uuid.New().String()[:8]
}
