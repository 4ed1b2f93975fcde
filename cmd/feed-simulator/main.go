package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/provider"
	"github.com/radieske/sports-wager-engine/internal/feed-simulator/hub"
	"github.com/radieske/sports-wager-engine/internal/feed-simulator/scenario"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
)

// Métricas Prometheus para monitoramento de conexões e mensagens
var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_ws_connections",
		Help: "Clientes WebSocket conectados",
	})
	wsMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_ws_messages_sent_total",
		Help: "Total de mensagens WS enviadas",
	})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LoggerOptions())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(wsConnections, wsMessagesSent)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seed := cfg.SimulatorSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sc := scenario.New(seed, scenario.DefaultCatalog, cfg.SimulatorInterval, time.Now)
	h := hub.New(log, wsConnections, wsMessagesSent)

	// Gera o ciclo das partidas e envia o XML do fornecedor a cada tick
	go func() {
		ticker := time.NewTicker(cfg.SimulatorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, m := range sc.Step() {
				raw, err := provider.Encode(m)
				if err != nil {
					log.Error("encode feed message", zap.String("type", m.Type), zap.Error(err))
					continue
				}
				h.Broadcast(raw)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, nil)

	go func() {
		log.Info("feed simulator running",
			zap.String("addr", srv.Addr),
			zap.Duration("interval", cfg.SimulatorInterval),
			zap.Int64("seed", seed),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdown, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = srv.Shutdown(shutdown)
	_ = msrv.Shutdown(shutdown)
}
