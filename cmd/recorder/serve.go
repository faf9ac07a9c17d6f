package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/p2precorder/internal/adapters/http"
	"github.com/dkeye/p2precorder/internal/adapters/rtc"
	"github.com/dkeye/p2precorder/internal/app/capture"
	"github.com/dkeye/p2precorder/internal/app/signaling"
	"github.com/dkeye/p2precorder/internal/config"
	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/dkeye/p2precorder/internal/metrics"
)

func serve(cmd *cobra.Command, role domain.Role) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.Level())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.MustRegister(reg)

	api, err := rtc.NewAPI(rtc.NewLoggerFactory(log.Logger))
	if err != nil {
		return fmt.Errorf("webrtc api: %w", err)
	}

	var source core.MediaSource
	if role == domain.RoleOfferer {
		source = &rtc.FileSource{
			VideoFile: cfg.Media.VideoFile,
			AudioFile: cfg.Media.AudioFile,
			Loop:      cfg.Media.Loop,
		}
	}
	coord := signaling.NewCoordinator(role, rtc.NewFactory(api), source, signaling.Config{
		Connection:    cfg.Connection(),
		GatherTimeout: cfg.GatherTimeout,
	})

	hub := router.NewHub(cfg.ReadLimit, cfg.PingPeriod)
	printer := newExchangePrinter(os.Stdout, coord)
	coord.OnUpdate(func(s signaling.Snapshot) {
		hub.Broadcast("session", s)
		if cfg.Stdin {
			printer.Notify(s)
		}
	})

	deps := router.Deps{
		Coordinator: coord,
		Hub:         hub,
		Limiter:     router.NewRateLimiter(cfg.ImportLimit, cfg.ImportWindow),
		Gatherer:    reg,
	}
	var rec *capture.Recorder
	if role == domain.RoleAnswerer {
		store := capture.NewArtifactStore(router.ArtifactPrefix)
		rec = capture.NewRecorder(capture.Config{
			Timeslice: cfg.Recorder.Timeslice,
			Filename:  cfg.Recorder.Filename,
		}, capture.NewWebMEncoder, store)
		deps.Recorder = rec
		deps.Artifacts = store
	}

	if _, err := coord.Activate(ctx); err != nil {
		// the failure is kept in the session snapshot; the operator can reset
		log.Error().Err(err).Str("role", role.String()).Msg("session activation failed")
	}
	if cfg.Stdin {
		go printer.Run(ctx)
		go readStdin(ctx, os.Stdin, coord)
	}

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("role", role.String()).Msg("recorder started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if rec != nil {
		rec.Abort()
	}
	coord.Deactivate()
	log.Info().Msg("Server exited gracefully")
	return nil
}
