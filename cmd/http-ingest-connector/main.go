// Command http-ingest-connector runs the HTTP ingestion engine as a
// standalone process, outside of its usual host framework. Most
// deployments embed the orchestrator package directly inside a
// connector host; this binary exists for local runs and
// smoke-testing a configuration file.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3e-network/http-ingest-connector/internal/config"
	"github.com/r3e-network/http-ingest-connector/internal/logging"
	"github.com/r3e-network/http-ingest-connector/internal/metrics"
	"github.com/r3e-network/http-ingest-connector/internal/orchestrator"
)

func main() {
	log := logrus.WithField("app", "http-ingest-connector")

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadYAMLFile(configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := config.ApplyEnvOverrides(cfg, os.Getenv("ENV_FILE")); err != nil {
		log.WithError(err).Fatal("apply env overrides")
	}
	if ce := cfg.Validate(); ce.HasErrors() {
		log.WithError(ce).Fatal("invalid config")
	}

	logger := logging.New("http-ingest-connector", cfg.Logging.Level, cfg.Logging.Format)
	sink := metrics.New()

	engine, err := orchestrator.Start(cfg, orchestrator.Options{
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		log.WithError(err).Fatal("start engine")
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: sink.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go runPollLoop(ctx, engine, logger)

	<-sigCh
	log.Info("shutting down")
	cancel()
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// runPollLoop drives poll() on a fixed cadence until ctx is canceled,
// the way a host connector framework repeatedly invokes poll() between
// its own scheduling ticks.
func runPollLoop(ctx context.Context, engine *orchestrator.Engine, logger *logging.Logger) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := engine.Poll(ctx)
			if err != nil {
				logger.WithError(err).Warn("poll failed")
				continue
			}
			if len(batch.Records) > 0 {
				logger.WithField("records", len(batch.Records)).Debug("poll produced records")
			}
		}
	}
}
