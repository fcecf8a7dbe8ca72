package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.RedisEnabled())
	assert.NotEmpty(t, cfg.InstanceID)
	assert.Equal(t, []string{"hero", "overview", "features"}, cfg.Slots)
	assert.True(t, cfg.AutoAdvance)
	assert.Equal(t, 2*time.Second, cfg.AdvanceDelay())

	timing := cfg.PlaybackTiming()
	assert.Equal(t, 180, timing.WPM)
	assert.Equal(t, 150*time.Millisecond, timing.Pause)
	assert.Equal(t, 20*time.Millisecond, timing.JitterMax)
	assert.Equal(t, 600*time.Millisecond, timing.TypingIndicator)
	assert.Equal(t, 200*time.Millisecond, timing.InputSettle)

	vp := cfg.Viewport()
	assert.Equal(t, 100.0, vp.Threshold)
	assert.Equal(t, 2.0, vp.ResizeThreshold)
	assert.Equal(t, 50*time.Millisecond, vp.Debounce)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("SLOTS", " hero , ,pricing")
	t.Setenv("AUTO_ADVANCE", "false")
	t.Setenv("TYPING_WPM", "240")
	t.Setenv("JITTER_SEED", "42")
	t.Setenv("SCROLL_THRESHOLD_PX", "64.5")
	t.Setenv("PAUSE_MS", "not-a-number")

	cfg := FromEnv()
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"hero", "pricing"}, cfg.Slots)
	assert.False(t, cfg.AutoAdvance)
	assert.Equal(t, 240, cfg.TypingWPM)
	assert.Equal(t, int64(42), cfg.PlaybackTiming().JitterSeed)
	assert.Equal(t, 64.5, cfg.ScrollThresholdPX)
	assert.Equal(t, int64(150), cfg.PauseMS, "unparsable values keep the default")

	host := cfg.HostConfig("hero")
	assert.Equal(t, "hero", host.Slot)
	assert.Equal(t, cfg.InstanceID, host.InstanceID)
	assert.False(t, host.AutoAdvance)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, godotenv.Write(map[string]string{"PORT": "9191"}, filepath.Join(dir, ".env")))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg := Load()
	assert.Equal(t, "9191", cfg.Port)
}

func TestScale(t *testing.T) {
	cfg := FromEnv()
	cfg.Scale(2)

	assert.Equal(t, 360, cfg.TypingWPM)
	assert.Equal(t, int64(300), cfg.TypingIndicatorMS)
	assert.Equal(t, int64(1000), cfg.AdvanceDelayMS)

	cfg.Scale(0)
	assert.Equal(t, 360, cfg.TypingWPM)
}
