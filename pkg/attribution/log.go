package attribution

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/models"
)

const logSinkHistory = 256

// LogSink writes events to the logger and keeps counters and a short history
// in memory. It is used when no Redis is configured.
type LogSink struct {
	logger *logrus.Logger

	mu     sync.Mutex
	stats  Stats
	recent []models.PlaybackEvent
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger, stats: newStats()}
}

func (s *LogSink) Record(_ context.Context, event models.PlaybackEvent) error {
	if err := validate(event); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.add(event.ScenarioID, event.Type, 1)
	s.recent = append(s.recent, event)
	if len(s.recent) > logSinkHistory {
		s.recent = s.recent[len(s.recent)-logSinkHistory:]
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"event_type":    event.Type,
		"slot":          event.Slot,
		"scenario_id":   event.ScenarioID,
		"scenario_name": event.ScenarioName,
		"session_id":    event.SessionID,
		"turn_id":       event.TurnID,
	}).Info("Playback event")
	return nil
}

func (s *LogSink) Stats(context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := newStats()
	for id, counts := range s.stats.ByScenario {
		for typ, n := range counts {
			out.add(id, typ, n)
		}
	}
	return out, nil
}

func (s *LogSink) Recent(_ context.Context, count int64) ([]models.PlaybackEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.recent))
	if count > 0 && count < n {
		n = count
	}
	out := make([]models.PlaybackEvent, 0, n)
	for i := len(s.recent) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}
