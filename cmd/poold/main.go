// Command poold runs the mining pool daemon: it loads a YAML config,
// wires up the daemon/wallet RPC clients, the bbolt store, one Stratum
// listener per configured port, the template refresher, the block
// unlocker, and the optional federation node, then serves metrics over
// HTTP until interrupted. Grounded on original_source/src/server.rs's
// init(), the Rust entrypoint this pool was distilled from; the teacher's
// retrieved pack had no main of its own to adapt.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/app"
	"github.com/cnpool/poolcore/internal/config"
	"github.com/cnpool/poolcore/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pool's YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9100", "listen address for the Prometheus metrics endpoint")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "poold: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *metricsAddr, logger); err != nil {
		logger.Fatal("poold exited with error", zap.Error(err))
	}
}

func run(configPath, metricsAddr string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("construct app: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		a.Stop()
		return fmt.Errorf("start app: %w", err)
	}
	logger.Info("pool started", zap.Int("port_count", len(cfg.Ports)))

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server started", zap.String("addr", metricsAddr))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	return a.Stop()
}
