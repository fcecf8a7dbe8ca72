package attribution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func event(typ models.EventType, scenarioID int) models.PlaybackEvent {
	return models.PlaybackEvent{
		ID:           "ev-" + string(typ),
		Type:         typ,
		Slot:         "hero",
		InstanceID:   "test-instance",
		SessionID:    "session-1",
		ScenarioID:   scenarioID,
		ScenarioName: "Standup",
		OccurredAt:   time.UnixMilli(1709289000000).UTC(),
	}
}

func TestRedisSink_RecordAndStats(t *testing.T) {
	rdb := setupTestRedis(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	sink := NewRedisSink(rdb, "", "", testLogger(), m)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, event(models.EventShown, 1)))
	require.NoError(t, sink.Record(ctx, event(models.EventShown, 1)))
	require.NoError(t, sink.Record(ctx, event(models.EventCompleted, 1)))
	require.NoError(t, sink.Record(ctx, event(models.EventShown, 7)))

	length, err := rdb.XLen(ctx, "playback_events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(4), length)

	counter, err := rdb.HGet(ctx, "playback_stats", "1:shown").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter)

	stats, err := sink.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{models.EventShown: 2, models.EventCompleted: 1}, stats.ByScenario[1])
	assert.Equal(t, Counts{models.EventShown: 1}, stats.ByScenario[7])
	assert.Equal(t, int64(3), stats.Totals[models.EventShown])
}

func TestRedisSink_Recent(t *testing.T) {
	rdb := setupTestRedis(t)
	sink := NewRedisSink(rdb, "events", "stats", testLogger(), metrics.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	first := event(models.EventShown, 1)
	second := event(models.EventLocalInput, 1)
	second.TurnID = "1-0"
	require.NoError(t, sink.Record(ctx, first))
	require.NoError(t, sink.Record(ctx, second))

	events, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second, events[0])
	assert.Equal(t, first, events[1])

	events, err = sink.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRedisSink_RejectsUntypedEvent(t *testing.T) {
	rdb := setupTestRedis(t)
	sink := NewRedisSink(rdb, "", "", testLogger(), metrics.NewMetrics(prometheus.NewRegistry()))
	err := sink.Record(context.Background(), models.PlaybackEvent{})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(testLogger())
	ctx := context.Background()

	for i := 0; i < logSinkHistory+5; i++ {
		require.NoError(t, sink.Record(ctx, event(models.EventShown, 2)))
	}
	require.NoError(t, sink.Record(ctx, event(models.EventStopped, 2)))

	stats, err := sink.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(logSinkHistory+5), stats.ByScenario[2][models.EventShown])
	assert.Equal(t, int64(1), stats.Totals[models.EventStopped])

	recent, err := sink.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, models.EventStopped, recent[0].Type)

	all, err := sink.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, logSinkHistory)
}

type blockingSink struct {
	release chan struct{}

	mu     sync.Mutex
	events []models.PlaybackEvent
}

func (s *blockingSink) Record(ctx context.Context, event models.PlaybackEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAsync_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	async := NewAsync(sink, 2, testLogger(), m)

	// Nothing drains yet, so only the buffer fills.
	for i := 0; i < 5; i++ {
		async.Publish(event(models.EventShown, 1))
	}
	assert.Equal(t, int64(3), async.Dropped())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsDropped))

	close(sink.release)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- async.Run(ctx) }()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

type failingSink struct{}

func (failingSink) Record(context.Context, models.PlaybackEvent) error {
	return errors.New("redis unavailable")
}

func TestAsync_SinkErrorsDoNotStopRecorder(t *testing.T) {
	async := NewAsync(failingSink{}, 4, testLogger(), metrics.NewMetrics(prometheus.NewRegistry()))
	async.Publish(event(models.EventShown, 1))
	async.Publish(event(models.EventCompleted, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, async.Run(ctx))
	assert.Zero(t, async.Dropped())
}
