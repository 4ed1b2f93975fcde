package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	gateway "github.com/radieske/sports-wager-engine/internal/api-gateway"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LoggerOptions())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := gateway.New(log, gateway.Targets{Odds: cfg.OddsURL, Wallet: cfg.WalletURL, Bet: cfg.BetURL})
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, nil)

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
		_ = msrv.Shutdown(shutdown)
	}()

	log.Info("api-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("odds", cfg.OddsURL), zap.String("wallet", cfg.WalletURL), zap.String("bet", cfg.BetURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
	log.Info("api-gateway stopped")
}
