package attribution

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
)

const recordTimeout = 3 * time.Second

// Async decouples the playback timeline from the sink. Publish never blocks:
// when the buffer is full the event is dropped and counted.
type Async struct {
	sink    Sink
	events  chan models.PlaybackEvent
	logger  *logrus.Logger
	metrics *metrics.Metrics
	dropped atomic.Int64
}

func NewAsync(sink Sink, buffer int, logger *logrus.Logger, metrics *metrics.Metrics) *Async {
	if buffer < 1 {
		buffer = 1
	}
	return &Async{
		sink:    sink,
		events:  make(chan models.PlaybackEvent, buffer),
		logger:  logger,
		metrics: metrics,
	}
}

// Publish queues event for recording.
func (a *Async) Publish(event models.PlaybackEvent) {
	select {
	case a.events <- event:
	default:
		a.dropped.Add(1)
		a.metrics.EventsDropped.Inc()
		a.logger.WithFields(logrus.Fields{
			"event_type": event.Type,
			"session_id": event.SessionID,
		}).Warn("Event buffer full, dropping playback event")
	}
}

// Dropped returns how many events were dropped.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Run records queued events until ctx is done, then flushes what is left.
func (a *Async) Run(ctx context.Context) error {
	a.logger.Info("Starting playback event recorder")
	for {
		select {
		case <-ctx.Done():
			a.drain()
			a.logger.Info("Playback event recorder stopped")
			return nil
		case event := <-a.events:
			a.record(ctx, event)
		}
	}
}

func (a *Async) drain() {
	for {
		select {
		case event := <-a.events:
			a.record(context.Background(), event)
		default:
			return
		}
	}
}

func (a *Async) record(ctx context.Context, event models.PlaybackEvent) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := a.sink.Record(ctx, event); err != nil {
		a.logger.WithError(err).WithField("event_type", event.Type).Error("Failed to record playback event")
	}
}
