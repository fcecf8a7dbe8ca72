package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/constants"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
)

// DefaultStreamMaxLen caps the events stream.
const DefaultStreamMaxLen = 10000

// RedisSink appends events to a Redis stream and keeps per scenario counters
// in a hash, both in one pipeline.
type RedisSink struct {
	rdb      *redis.Client
	stream   string
	statsKey string
	maxLen   int64
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewRedisSink uses the default key names when stream or statsKey are empty.
func NewRedisSink(rdb *redis.Client, stream, statsKey string, logger *logrus.Logger, metrics *metrics.Metrics) *RedisSink {
	if stream == "" {
		stream = constants.PlaybackEventsStream
	}
	if statsKey == "" {
		statsKey = constants.PlaybackStatsKey
	}
	return &RedisSink{
		rdb:      rdb,
		stream:   stream,
		statsKey: statsKey,
		maxLen:   DefaultStreamMaxLen,
		logger:   logger,
		metrics:  metrics,
	}
}

func statsField(scenarioID int, typ models.EventType) string {
	return fmt.Sprintf("%d:%s", scenarioID, typ)
}

// Record stores one event.
func (s *RedisSink) Record(ctx context.Context, event models.PlaybackEvent) error {
	if err := validate(event); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		s.metrics.EventSinkDuration.WithLabelValues("record").Observe(time.Since(start).Seconds())
	}()

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal playback event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]interface{}{
			"event_id":    event.ID,
			"type":        string(event.Type),
			"slot":        event.Slot,
			"instance_id": event.InstanceID,
			"session_id":  event.SessionID,
			"scenario_id": event.ScenarioID,
			"turn_id":     event.TurnID,
			"occurred_at": event.OccurredAt.UnixMilli(),
			"event_data":  string(eventData),
		},
	})
	pipe.HIncrBy(ctx, s.statsKey, statsField(event.ScenarioID, event.Type), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"session_id": event.SessionID,
		}).Error("Failed to record playback event")
		return fmt.Errorf("failed to record playback event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"event_type":  event.Type,
		"slot":        event.Slot,
		"scenario_id": event.ScenarioID,
		"session_id":  event.SessionID,
	}).Debug("Recorded playback event")
	return nil
}

// Stats reads the counters hash.
func (s *RedisSink) Stats(ctx context.Context) (Stats, error) {
	start := time.Now()
	defer func() {
		s.metrics.EventSinkDuration.WithLabelValues("stats").Observe(time.Since(start).Seconds())
	}()

	fields, err := s.rdb.HGetAll(ctx, s.statsKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read playback stats: %w", err)
	}

	stats := newStats()
	for field, value := range fields {
		idStr, typ, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			s.logger.WithField("field", field).Warn("Skipping malformed stats counter")
			continue
		}
		stats.add(id, models.EventType(typ), n)
	}
	return stats, nil
}

// Recent returns up to count of the newest events, newest first.
func (s *RedisSink) Recent(ctx context.Context, count int64) ([]models.PlaybackEvent, error) {
	messages, err := s.rdb.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read playback events: %w", err)
	}

	events := make([]models.PlaybackEvent, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["event_data"].(string)
		if !ok {
			continue
		}
		var event models.PlaybackEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			s.logger.WithError(err).WithField("message_id", msg.ID).Warn("Skipping malformed playback event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
