package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chat-playback-engine/pkg/attribution"
	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/playback"
	"chat-playback-engine/pkg/terminal"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a scenario in the terminal",
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().Int("scenario", 0, "Scenario index to play")
	playCmd.Flags().Int64("seed", 0, "Jitter seed for reproducible timing (0 is random)")
	playCmd.Flags().Float64("speed", 1, "Playback speed multiplier")
	playCmd.Flags().Bool("loop", false, "Keep advancing through the catalog")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, _ []string) error {
	index, _ := cmd.Flags().GetInt("scenario")
	seed, _ := cmd.Flags().GetInt64("seed")
	speed, _ := cmd.Flags().GetFloat64("speed")
	loop, _ := cmd.Flags().GetBool("loop")

	// Terminal output is the transcript; keep logs out of the way.
	if logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}

	catalog, err := loadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	if _, resolved, err := catalog.Resolve(index); err != nil {
		logger.WithError(err).Warn("Falling back to the first scenario")
		index = resolved
	}

	cfg.Scale(speed)
	if seed != 0 {
		cfg.JitterSeed = seed
	}
	cfg.AutoAdvance = loop

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metrics.NewMetrics(prometheus.NewRegistry())
	recorder := attribution.NewAsync(attribution.NewLogSink(logger), cfg.EventBuffer, logger, metrics)
	go recorder.Run(ctx)

	host := playback.NewHost(cfg.HostConfig("cli"), catalog, clock.Real(), recorder, logger, metrics)
	defer host.Close()

	updates, unsubscribe := host.Subscribe(256)
	defer unsubscribe()

	printer := terminal.NewPrinter(cmd.OutOrStdout())
	host.Activate(index)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if printer.Handle(u) && !loop {
				return nil
			}
		}
	}
}
