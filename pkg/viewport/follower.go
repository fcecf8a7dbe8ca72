// Package viewport keeps a scrolling transcript pinned to its newest content
// unless the reader has scrolled away from the bottom.
package viewport

import (
	"math"
	"sync"
	"time"

	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/constants"
	"chat-playback-engine/pkg/metrics"
)

// Geometry is the scroll state reported by the renderer, in pixels.
type Geometry struct {
	ScrollTop      float64 `json:"scroll_top"`
	ViewportHeight float64 `json:"viewport_height"`
	ContentHeight  float64 `json:"content_height"`
}

// Bottom returns the scroll offset that shows the end of the content.
func (g Geometry) Bottom() float64 {
	return math.Max(0, g.ContentHeight-g.ViewportHeight)
}

// Scroller moves the rendered viewport.
type Scroller interface {
	ScrollTo(top float64)
}

// ScrollFunc adapts a function to Scroller.
type ScrollFunc func(top float64)

func (f ScrollFunc) ScrollTo(top float64) { f(top) }

// Config controls how eagerly the follower scrolls.
type Config struct {
	// Threshold is how far from the bottom still counts as at the bottom.
	Threshold float64
	// ResizeThreshold ignores item height changes at or below this size.
	ResizeThreshold float64
	// Debounce coalesces bursts of resizes into one scroll. Zero scrolls at once.
	Debounce time.Duration
}

// DefaultConfig returns the thresholds used by the demo.
func DefaultConfig() Config {
	return Config{
		Threshold:       constants.DefaultScrollThresholdPX,
		ResizeThreshold: constants.DefaultResizeThresholdPX,
		Debounce:        constants.DefaultScrollDebounceMS * time.Millisecond,
	}
}

// Follower tracks whether the reader is at the bottom of the transcript and
// issues scroll commands when content grows underneath them. It only reads
// geometry; it never looks at transcript state.
type Follower struct {
	sched    clock.Scheduler
	cfg      Config
	scroller Scroller
	metrics  *metrics.Metrics

	mu       sync.Mutex
	geom     Geometry
	atBottom bool
	heights  map[string]float64
	seq      uint64
	pending  clock.Timer
}

// New returns a follower that starts at the bottom. metrics may be nil.
func New(sched clock.Scheduler, cfg Config, scroller Scroller, metrics *metrics.Metrics) *Follower {
	return &Follower{
		sched:    sched,
		cfg:      cfg,
		scroller: scroller,
		metrics:  metrics,
		atBottom: true,
		heights:  make(map[string]float64),
	}
}

// IsAtBottom reports whether auto-follow is enabled.
func (f *Follower) IsAtBottom() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atBottom
}

// Geometry returns the last known geometry.
func (f *Follower) Geometry() Geometry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.geom
}

// OnScroll records a scroll by the reader. Scrolling away from the bottom
// disables auto-follow; scrolling back within the threshold re-enables it.
func (f *Follower) OnScroll(g Geometry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geom = g
	f.atBottom = f.isAtBottom(g)
}

func (f *Follower) isAtBottom(g Geometry) bool {
	return g.ContentHeight-(g.ScrollTop+g.ViewportHeight) <= f.cfg.Threshold
}

// OnContentResize records a new total content height. It scrolls to the new
// bottom only if the reader was at the bottom before the change, and reports
// whether a scroll was issued or scheduled.
func (f *Follower) OnContentResize(contentHeight float64) bool {
	f.mu.Lock()
	wasAtBottom := f.atBottom
	f.geom.ContentHeight = contentHeight
	if !wasAtBottom {
		f.mu.Unlock()
		return false
	}
	target := f.geom.Bottom()
	if f.cfg.Debounce <= 0 {
		f.scrolledLocked(target)
		f.mu.Unlock()
		f.scroll(target)
		return true
	}
	f.scheduleLocked()
	f.mu.Unlock()
	return true
}

// OnItemResize records the rendered height of one transcript item together
// with the resulting content height. Changes within ResizeThreshold of the
// last known height are ignored.
func (f *Follower) OnItemResize(id string, height, contentHeight float64) bool {
	f.mu.Lock()
	prev, known := f.heights[id]
	if known && math.Abs(height-prev) <= f.cfg.ResizeThreshold {
		f.mu.Unlock()
		return false
	}
	f.heights[id] = height
	f.mu.Unlock()
	return f.OnContentResize(contentHeight)
}

// Remove forgets an item that is no longer rendered.
func (f *Follower) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.heights, id)
}

// Reset forgets every item and re-enables auto-follow, for a new transcript.
func (f *Follower) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
	f.heights = make(map[string]float64)
	f.atBottom = true
	f.geom.ScrollTop = 0
	f.geom.ContentHeight = 0
}

// Stop cancels a pending scroll.
func (f *Follower) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
}

func (f *Follower) scheduleLocked() {
	f.cancelLocked()
	seq := f.seq
	f.pending = f.sched.AfterFunc(f.cfg.Debounce, func() {
		f.mu.Lock()
		if seq != f.seq || !f.atBottom {
			f.mu.Unlock()
			return
		}
		f.pending = nil
		target := f.geom.Bottom()
		f.scrolledLocked(target)
		f.mu.Unlock()
		f.scroll(target)
	})
}

func (f *Follower) cancelLocked() {
	f.seq++
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
}

func (f *Follower) scrolledLocked(target float64) {
	f.geom.ScrollTop = target
}

func (f *Follower) scroll(target float64) {
	if f.metrics != nil {
		f.metrics.AutoScrolls.Inc()
	}
	f.scroller.ScrollTo(target)
}
