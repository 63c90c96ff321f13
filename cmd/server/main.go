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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/mediabridge/sfu/internal/adapters/http"
	"github.com/mediabridge/sfu/internal/app"
	"github.com/mediabridge/sfu/internal/config"
	"github.com/mediabridge/sfu/internal/engine/pion"
	"github.com/mediabridge/sfu/internal/pool"
	"github.com/mediabridge/sfu/internal/registry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	eng := pion.New()

	// Fail-fast: a partial pool is not acceptable.
	workers, err := pool.New(ctx, eng, pool.Options{
		Size:        cfg.WorkerPoolSize(),
		RTCMinPort:  cfg.RTCMinPort,
		RTCMaxPort:  cfg.RTCMaxPort,
		AnnouncedIP: cfg.AnnouncedIP,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("worker pool bootstrap failed")
	}

	metrics := app.NewMetrics(prometheus.DefaultRegisterer)
	metrics.SetWorkers(workers.Size())

	orch := app.NewOrchestrator(eng, workers, pool.LeastLoaded{}, registry.New(), cfg.MediaCodecs(), metrics)
	orch.CallTimeout = cfg.CallTimeout
	orch.GracePeriod = cfg.GracePeriod
	go orch.Run(ctx)

	r := router.SetupRouter(cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", workers.Size()).
			Uint16("rtc_min_port", cfg.RTCMinPort).Uint16("rtc_max_port", cfg.RTCMaxPort).
			Str("announced_ip", cfg.AnnouncedIP).Msg("sfu signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	orch.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
