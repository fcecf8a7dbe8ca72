package playback

import (
	"sync"
	"time"

	"chat-playback-engine/pkg/clock"
)

// timerSet owns every timer a session schedules, including those of its
// reveal timers and input typist. Callbacks run with the session lock held.
// cancelAll bumps the epoch, so a callback that was already on its way when
// the set was cancelled finds a stale epoch and returns without touching state.
type timerSet struct {
	clk     clock.Clock
	mu      *sync.Mutex
	fired   func()
	epoch   uint64
	nextID  uint64
	pending map[uint64]clock.Timer
}

type ownedTimer struct {
	set *timerSet
	id  uint64
}

func newTimerSet(clk clock.Clock, mu *sync.Mutex, fired func()) *timerSet {
	return &timerSet{
		clk:     clk,
		mu:      mu,
		fired:   fired,
		pending: make(map[uint64]clock.Timer),
	}
}

// AfterFunc must be called with the session lock held.
func (ts *timerSet) AfterFunc(d time.Duration, f func()) clock.Timer {
	ts.nextID++
	id, epoch := ts.nextID, ts.epoch
	ts.pending[id] = ts.clk.AfterFunc(d, func() { ts.fire(id, epoch, f) })
	return &ownedTimer{set: ts, id: id}
}

func (ts *timerSet) fire(id, epoch uint64, f func()) {
	ts.mu.Lock()
	if epoch != ts.epoch {
		ts.mu.Unlock()
		return
	}
	if _, ok := ts.pending[id]; !ok {
		ts.mu.Unlock()
		return
	}
	delete(ts.pending, id)
	f()
	ts.mu.Unlock()

	if ts.fired != nil {
		ts.fired()
	}
}

// Stop must be called with the session lock held.
func (t *ownedTimer) Stop() bool {
	inner, ok := t.set.pending[t.id]
	if !ok {
		return false
	}
	delete(t.set.pending, t.id)
	inner.Stop()
	return true
}

// cancelAll must be called with the session lock held.
func (ts *timerSet) cancelAll() int {
	ts.epoch++
	n := len(ts.pending)
	for id, t := range ts.pending {
		t.Stop()
		delete(ts.pending, id)
	}
	return n
}

func (ts *timerSet) count() int {
	return len(ts.pending)
}
