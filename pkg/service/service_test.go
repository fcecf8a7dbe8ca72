package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-playback-engine/pkg/attribution"
	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/config"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/scenarios"
)

func newTestService(t *testing.T, pinger func(context.Context) error) (*Service, *clock.Manual, *attribution.LogSink) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	catalog, err := scenarios.Default(logger)
	require.NoError(t, err)

	cfg := &config.Config{
		InstanceID:  "test-instance",
		Slots:       []string{"hero", "overview", "hero"},
		EventBuffer: 16,
		TypingWPM:   180,
		JitterSeed:  1,
	}
	clk := clock.NewManual(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	sink := attribution.NewLogSink(logger)
	svc := NewService(cfg, catalog, sink, pinger, clk, logger, metrics.NewMetrics(prometheus.NewRegistry()))
	return svc, clk, sink
}

func TestService_Hosts(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	hosts := svc.Hosts()
	require.Len(t, hosts, 2, "duplicate slots are ignored")
	assert.Equal(t, "hero", hosts[0].Slot())
	assert.Equal(t, "overview", hosts[1].Slot())

	_, ok := svc.Host("pricing")
	assert.False(t, ok)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestService_RunRecordsEventsAndStopsHosts(t *testing.T) {
	svc, clk, sink := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, nil) }()

	hero, ok := svc.Host("hero")
	require.True(t, ok)
	require.True(t, hero.Activate(0))
	clk.Advance(time.Second)

	assert.Eventually(t, func() bool {
		stats, err := sink.Stats(context.Background())
		return err == nil && stats.Totals["shown"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, playing := hero.Snapshot()
	assert.False(t, playing)
	assert.Zero(t, clk.Pending())
}

func TestService_Ping(t *testing.T) {
	svc, _, _ := newTestService(t, func(context.Context) error { return errors.New("down") })
	assert.EqualError(t, svc.Ping(context.Background()), "down")
}
