package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)

	var fired []string
	m.AfterFunc(30*time.Millisecond, func() { fired = append(fired, "c") })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "b") })

	m.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, m.Pending())

	m.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, epoch.Add(30*time.Millisecond), m.Now())
}

func TestManual_ChainedTimersWithinOneAdvance(t *testing.T) {
	m := NewManual(epoch)

	var at []time.Duration
	var tick func()
	tick = func() {
		at = append(at, m.Now().Sub(epoch))
		if len(at) < 3 {
			m.AfterFunc(5*time.Millisecond, tick)
		}
	}
	m.AfterFunc(5*time.Millisecond, tick)

	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}, at)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(epoch)

	fired := false
	timer := m.AfterFunc(time.Millisecond, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(time.Second)
	assert.False(t, fired)
}

func TestManual_RunUntilIdle(t *testing.T) {
	m := NewManual(epoch)

	count := 0
	m.AfterFunc(time.Second, func() { count++ })
	m.AfterFunc(3*time.Second, func() { count++ })

	spent := m.RunUntilIdle(2 * time.Second)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Second, spent)

	m.RunUntilIdle(time.Minute)
	assert.Equal(t, 2, count)

	_, ok := m.Next()
	require.False(t, ok)
}
