package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called.
// Due callbacks run synchronously on the goroutine calling Advance, ordered by
// deadline and then by scheduling order. Callbacks may schedule further timers;
// those fire within the same Advance call if they fall due before its target.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	when    time.Time
	seq     uint64
	fn      func()
	stopped bool
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, pending := range t.m.timers {
		if pending == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
}

// popDue removes and returns the earliest timer due at or before target and
// moves the clock to its deadline.
func (m *Manual) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
	t := m.timers[0]
	if t.when.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	if t.when.After(m.now) {
		m.now = t.when
	}
	return t
}

// Pending returns the number of scheduled timers that have not fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Next returns the delay until the earliest pending timer.
func (m *Manual) Next() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return 0, false
	}
	earliest := m.timers[0].when
	for _, t := range m.timers[1:] {
		if t.when.Before(earliest) {
			earliest = t.when
		}
	}
	return earliest.Sub(m.now), true
}

// RunUntilIdle fires timers one deadline at a time until none are pending or
// limit of simulated time has elapsed. It returns the simulated time spent.
func (m *Manual) RunUntilIdle(limit time.Duration) time.Duration {
	var elapsed time.Duration
	for {
		next, ok := m.Next()
		if !ok || elapsed+next > limit {
			return elapsed
		}
		m.Advance(next)
		elapsed += next
	}
}
