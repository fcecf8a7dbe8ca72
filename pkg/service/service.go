package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"chat-playback-engine/pkg/attribution"
	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/config"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/playback"
	"chat-playback-engine/pkg/scenarios"
)

const shutdownTimeout = 10 * time.Second

// Service owns one playback host per demo slot and the attribution recorder
// they publish to.
type Service struct {
	config   *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	catalog  *scenarios.Catalog
	store    attribution.Store
	recorder *attribution.Async
	pinger   func(context.Context) error
	clk      clock.Clock
	slots    []string
	hosts    map[string]*playback.Host
}

// NewService builds a host for every configured slot. Hosts start inactive.
// pinger checks the attribution backend and may be nil.
func NewService(cfg *config.Config, catalog *scenarios.Catalog, store attribution.Store, pinger func(context.Context) error, clk clock.Clock, logger *logrus.Logger, metrics *metrics.Metrics) *Service {
	recorder := attribution.NewAsync(store, cfg.EventBuffer, logger, metrics)

	s := &Service{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		catalog:  catalog,
		store:    store,
		recorder: recorder,
		pinger:   pinger,
		clk:      clk,
		hosts:    make(map[string]*playback.Host, len(cfg.Slots)),
	}
	for _, slot := range cfg.Slots {
		if _, dup := s.hosts[slot]; dup {
			logger.WithField("slot", slot).Warn("Ignoring duplicate slot")
			continue
		}
		s.slots = append(s.slots, slot)
		s.hosts[slot] = playback.NewHost(cfg.HostConfig(slot), catalog, clk, recorder, logger, metrics)
	}
	return s
}

// Run records attribution events and serves srv until ctx is done, then shuts
// the server down and stops every host.
func (s *Service) Run(ctx context.Context, srv *http.Server) error {
	s.logger.WithFields(logrus.Fields{
		"instance_id": s.config.InstanceID,
		"slots":       s.slots,
		"scenarios":   s.catalog.Len(),
	}).Info("Starting chat playback service")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.recorder.Run(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			s.logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	s.Close()
	s.logger.Info("Chat playback service stopped")
	return err
}

// Close stops every host.
func (s *Service) Close() {
	for _, slot := range s.slots {
		s.hosts[slot].Close()
	}
}

// Host returns the host for slot.
func (s *Service) Host(slot string) (*playback.Host, bool) {
	h, ok := s.hosts[slot]
	return h, ok
}

// Hosts returns every host in configuration order.
func (s *Service) Hosts() []*playback.Host {
	out := make([]*playback.Host, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, s.hosts[slot])
	}
	return out
}

func (s *Service) Catalog() *scenarios.Catalog {
	return s.catalog
}

func (s *Service) Store() attribution.Store {
	return s.store
}

func (s *Service) Config() *config.Config {
	return s.config
}

func (s *Service) Clock() clock.Clock {
	return s.clk
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// DroppedEvents returns how many attribution events were dropped.
func (s *Service) DroppedEvents() int64 {
	return s.recorder.Dropped()
}

// Ping checks the attribution backend.
func (s *Service) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger(ctx)
}
