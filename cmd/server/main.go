// Command server runs the GPS tracking ingestion and broadcast
// service: a WebSocket hub that ingests telemetry, persists it to
// PostgreSQL, and rebroadcasts it to connected observers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netconsulting/geotracker/internal/broadcast"
	"github.com/netconsulting/geotracker/internal/config"
	"github.com/netconsulting/geotracker/internal/duplicate"
	"github.com/netconsulting/geotracker/internal/hub"
	"github.com/netconsulting/geotracker/internal/metrics"
	"github.com/netconsulting/geotracker/internal/store"
	"github.com/netconsulting/geotracker/internal/transport"
)

const defaultGracefulTimeout = 30 * time.Second

func buildLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting geotracker service", zap.Int("wsPort", cfg.Hub.WSPort))

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	metrics.MustRegister(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(cfg.Database, logger)
	if err := st.Init(ctx); err != nil {
		// The store degrades to memory-only operation on connectivity
		// failure; only a schema bootstrap failure is fatal, since that
		// indicates a misconfigured database rather than a transient
		// outage.
		if !errors.Is(err, store.ErrDegraded) {
			logger.Fatal("store schema bootstrap failed", zap.Error(err))
		}
		logger.Warn("store unavailable at startup, continuing in degraded mode", zap.Error(err))
	}
	defer st.Close()

	dup := duplicate.New(st, cfg.Duplicate, logger)

	var mirror hub.Broadcaster
	var mqttSink *broadcast.MQTTSink
	if cfg.MQTT.Enabled {
		sink, err := broadcast.NewMQTTSink(cfg.MQTT, logger)
		if err != nil {
			logger.Warn("mqtt mirror unavailable, continuing without it", zap.Error(err))
		} else {
			mqttSink = sink
			mirror = sink
		}
	}

	h := hub.New(cfg.Hub, cfg.Reset, cfg.Retention, st, dup, mirror, logger)
	if err := h.Bootstrap(ctx); err != nil {
		logger.Warn("hub bootstrap from history failed, starting with empty state", zap.Error(err))
	}
	go h.Run(ctx)

	wsServer := transport.New(h, transport.Config{
		Addr:         fmt.Sprintf(":%d", cfg.Hub.WSPort),
		LimiterRate:  cfg.Hub.RateLimitPerSecond,
		LimiterBurst: cfg.Hub.RateLimitBurst,
	}, logger)

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	adminMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := `{"status":"healthy"}`
		if !st.Available() {
			body = `{"status":"degraded","reason":"store unavailable"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	adminServer := &http.Server{Addr: ":9090", Handler: adminMux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("websocket server listening", zap.Int("port", cfg.Hub.WSPort))
		if err := wsServer.Start(ctx); err != nil {
			logger.Error("websocket server exited with error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("admin server listening", zap.String("addr", adminServer.Addr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server exited with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("caught signal, shutting down", zap.String("signal", sig.String()))

	gracefulShutdown(cancel, wsServer, adminServer, mqttSink, logger)
}

func gracefulShutdown(cancel context.CancelFunc, wsServer *transport.Server, adminServer *http.Server, mqttSink *broadcast.MQTTSink, logger *zap.Logger) {
	cancel()

	ctx, done := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer done()

	if err := wsServer.Shutdown(); err != nil {
		logger.Warn("websocket server shutdown encountered an error", zap.Error(err))
	}
	if err := adminServer.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		logger.Warn("admin server shutdown encountered an error", zap.Error(err))
	}
	if mqttSink != nil {
		mqttSink.Close()
	}

	logger.Info("graceful shutdown complete")
}
