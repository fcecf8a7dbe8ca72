// Package reveal grows a displayed prefix of a fixed string over time to
// simulate a person typing it.
package reveal

import (
	"math/rand"
	"sort"
	"time"

	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/constants"
)

// JitterFunc returns the random extra delay added to one character.
type JitterFunc func() time.Duration

// NoJitter adds no randomness.
func NoJitter() time.Duration { return 0 }

// UniformJitter draws from [0, max) using r. The returned func must be
// called from a single timeline since rand.Rand is not safe for concurrent use.
func UniformJitter(r *rand.Rand, max time.Duration) JitterFunc {
	if max <= 0 {
		return NoJitter
	}
	return func() time.Duration {
		return time.Duration(r.Int63n(int64(max)))
	}
}

// Config controls reveal cadence.
type Config struct {
	WPM int
	// Pause is added after each character whose index is in the pause table.
	Pause time.Duration
	// StartDelay precedes the first character. Zero means one character delay.
	StartDelay time.Duration
	Jitter     JitterFunc
}

// DefaultConfig returns the cadence used by the demo.
func DefaultConfig() Config {
	return Config{
		WPM:   constants.DefaultTypingWPM,
		Pause: constants.DefaultPauseMS * time.Millisecond,
	}
}

// ProgressFunc receives the displayed prefix after every step.
type ProgressFunc func(prefix string, length int)

// Timer reveals one string at a time. Restarting cancels the previous run.
//
// A Timer holds no lock of its own: every call and every callback must happen
// on one logical timeline. Sessions serialise this through the Scheduler they
// hand in.
type Timer struct {
	sched clock.Scheduler
	cfg   Config

	run     uint64
	content []rune
	pauses  map[int]struct{}
	index   int
	running bool
	pending clock.Timer

	onProgress ProgressFunc
	onDone     func()
}

// New returns an idle Timer scheduling on sched.
func New(sched clock.Scheduler, cfg Config) *Timer {
	if cfg.WPM <= 0 {
		cfg.WPM = constants.DefaultTypingWPM
	}
	if cfg.Jitter == nil {
		cfg.Jitter = NoJitter
	}
	return &Timer{sched: sched, cfg: cfg}
}

// CharDelay is the nominal delay between two characters.
func (t *Timer) CharDelay() time.Duration {
	return constants.CharDelay(t.cfg.WPM)
}

// Start begins revealing content from an empty prefix. Pause offsets are rune
// indices; the dwell happens after the character at that index is shown.
// onDone runs exactly once when the full content is displayed.
func (t *Timer) Start(content string, pauseOffsets []int, onProgress ProgressFunc, onDone func()) {
	t.Stop()

	t.run++
	t.content = []rune(content)
	t.pauses = make(map[int]struct{}, len(pauseOffsets))
	for _, off := range pauseOffsets {
		if off >= 0 && off <= len(t.content) {
			t.pauses[off] = struct{}{}
		}
	}
	t.index = 0
	t.running = true
	t.onProgress = onProgress
	t.onDone = onDone

	t.emit()

	if len(t.content) == 0 {
		t.finish()
		return
	}

	delay := t.cfg.StartDelay
	if delay <= 0 {
		delay = t.CharDelay() + t.cfg.Jitter()
	}
	t.schedule(delay)
}

// Stop cancels any pending step. The displayed prefix is kept.
func (t *Timer) Stop() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if t.running {
		t.running = false
		t.run++
	}
}

// Running reports whether a reveal is in progress.
func (t *Timer) Running() bool {
	return t.running
}

// Index returns how many characters are displayed.
func (t *Timer) Index() int {
	return t.index
}

// Displayed returns the current prefix.
func (t *Timer) Displayed() string {
	return string(t.content[:t.index])
}

func (t *Timer) schedule(delay time.Duration) {
	run := t.run
	t.pending = t.sched.AfterFunc(delay, func() {
		if run != t.run || !t.running {
			return
		}
		t.pending = nil
		t.step()
	})
}

func (t *Timer) step() {
	t.index++
	t.emit()

	if t.index >= len(t.content) {
		t.finish()
		return
	}

	delay := t.CharDelay() + t.cfg.Jitter()
	if _, ok := t.pauses[t.index-1]; ok {
		delay += t.cfg.Pause
	}
	t.schedule(delay)
}

func (t *Timer) emit() {
	if t.onProgress != nil {
		t.onProgress(string(t.content[:t.index]), t.index)
	}
}

func (t *Timer) finish() {
	t.running = false
	done := t.onDone
	t.onDone = nil
	if done != nil {
		done()
	}
}

// NormalizeOffsets sorts offsets, removes duplicates and drops values outside
// [0, length]. It reports how many values were dropped.
func NormalizeOffsets(offsets []int, length int) ([]int, int) {
	if len(offsets) == 0 {
		return nil, 0
	}
	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)

	out := make([]int, 0, len(sorted))
	dropped := 0
	for _, off := range sorted {
		if off < 0 || off > length {
			dropped++
			continue
		}
		if n := len(out); n > 0 && out[n-1] == off {
			continue
		}
		out = append(out, off)
	}
	return out, dropped
}
