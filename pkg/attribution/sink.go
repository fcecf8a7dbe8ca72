// Package attribution records which demos were shown, completed and
// interacted with, so marketing pages can attribute signups to a variant.
package attribution

import (
	"context"
	"errors"

	"chat-playback-engine/pkg/models"
)

var ErrInvalidEvent = errors.New("attribution: event has no type")

// Sink persists playback events.
type Sink interface {
	Record(ctx context.Context, event models.PlaybackEvent) error
}

// Store is a Sink that can also report what it recorded.
type Store interface {
	Sink
	Stats(ctx context.Context) (Stats, error)
	Recent(ctx context.Context, count int64) ([]models.PlaybackEvent, error)
}

// Counts maps an event type to how often it was recorded.
type Counts map[models.EventType]int64

// Stats aggregates recorded events per scenario id.
type Stats struct {
	ByScenario map[int]Counts `json:"by_scenario"`
	Totals     Counts         `json:"totals"`
}

func newStats() Stats {
	return Stats{ByScenario: make(map[int]Counts), Totals: make(Counts)}
}

func (s Stats) add(scenarioID int, typ models.EventType, n int64) {
	counts, ok := s.ByScenario[scenarioID]
	if !ok {
		counts = make(Counts)
		s.ByScenario[scenarioID] = counts
	}
	counts[typ] += n
	s.Totals[typ] += n
}

func validate(event models.PlaybackEvent) error {
	if event.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}
