package constants

import "time"

// Typing cadence
const (
	// DefaultTypingWPM - Words per minute used to derive the per-character delay
	DefaultTypingWPM = 180

	// CharsPerWord - Average characters per word for the wpm conversion
	CharsPerWord = 5

	// DefaultJitterMaxMS - Upper bound of random jitter added to each character
	DefaultJitterMaxMS = 20

	// DefaultPauseMS - Extra dwell after a character listed in a turn's pause table
	DefaultPauseMS = 150
)

// Turn scheduling delays
const (
	// DefaultPreDelayMS - Wait before a turn becomes observable when it sets none
	DefaultPreDelayMS = 100

	// DefaultTypingIndicatorMS - "Thinking" time shown before a remote turn reveals
	DefaultTypingIndicatorMS = 600

	// DefaultInputStartDelayMS - Wait before the first character lands in the input box
	DefaultInputStartDelayMS = 100

	// DefaultInputSettleMS - Send button press between a finished input and its submission
	DefaultInputSettleMS = 200

	// DefaultAdvanceDelayMS - Hold on a completed scenario before the next one starts
	DefaultAdvanceDelayMS = 2000
)

// Viewport following
const (
	// DefaultScrollThresholdPX - Distance from the bottom still treated as "at bottom"
	DefaultScrollThresholdPX = 100

	// DefaultResizeThresholdPX - Height changes at or below this are ignored
	DefaultResizeThresholdPX = 2

	// DefaultScrollDebounceMS - Debounce applied to auto-scroll commands
	DefaultScrollDebounceMS = 50
)

// Redis key names
const (
	PlaybackEventsStream = "playback_events"
	PlaybackStatsKey     = "playback_stats"
)

// Configuration environment variable names
const (
	EnvTypingWPM       = "TYPING_WPM"
	EnvJitterMax       = "JITTER_MAX_MS"
	EnvJitterSeed      = "JITTER_SEED"
	EnvPause           = "PAUSE_MS"
	EnvPreDelay        = "PRE_DELAY_MS"
	EnvTypingIndicator = "TYPING_INDICATOR_MS"
	EnvInputStartDelay = "INPUT_START_DELAY_MS"
	EnvInputSettle     = "INPUT_SETTLE_MS"
	EnvAdvanceDelay    = "ADVANCE_DELAY_MS"
	EnvScrollThreshold = "SCROLL_THRESHOLD_PX"
	EnvResizeThreshold = "RESIZE_THRESHOLD_PX"
	EnvScrollDebounce  = "SCROLL_DEBOUNCE_MS"
	EnvEventsStream    = "EVENTS_STREAM"
	EnvStatsKey        = "STATS_KEY"
	EnvScenariosFile   = "SCENARIOS_FILE"
	EnvSlots           = "SLOTS"
	EnvAutoAdvance     = "AUTO_ADVANCE"
	EnvEventBuffer     = "EVENT_BUFFER"
)

// MillisecondsToDuration converts a millisecond count to a Duration.
func MillisecondsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// CharDelay returns the nominal per-character delay for a typing speed.
func CharDelay(wpm int) time.Duration {
	if wpm <= 0 {
		wpm = DefaultTypingWPM
	}
	return time.Duration(float64(time.Minute) / float64(wpm*CharsPerWord))
}
