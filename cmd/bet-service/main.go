package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	bethttp "github.com/radieske/sports-wager-engine/internal/bet-service/http"
	"github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/builder"
	"github.com/radieske/sports-wager-engine/internal/wagering/cashout"
	"github.com/radieske/sports-wager-engine/internal/wagering/odds"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/risk"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/postgres"
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

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresPool())
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisOptions())
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	st := postgres.New(pg)
	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}

	limits := risk.DefaultLimits()
	if cfg.RiskConfigPath != "" {
		if limits, err = risk.LoadLimits(cfg.RiskConfigPath); err != nil {
			log.Fatal("risk limits", zap.String("path", cfg.RiskConfigPath), zap.Error(err))
		}
	}

	// Métricas Prometheus
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_slips_placed_total", Help: "bilhetes aceitos"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_slips_rejected_total", Help: "bilhetes recusados por motivo"}, []string{"reason"})
	cashouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_cashouts_total", Help: "cashouts executados"})
	prometheus.MustRegister(placed, rejected, cashouts)

	rules := payout.Rules{TaxRate: cfg.TaxRate, CashoutMargin: cfg.CashoutMargin}
	pub := pubsub.NewRedisBroadcaster(rdb, cfg.RedisUpdatesChannel)

	b := builder.New(log, st, odds.NewCatalog(st), risk.NewEngine(log, st, limits), pub, builder.Config{
		MinStake: cfg.MinStake,
		MaxStake: cfg.MaxStake,
		Rules:    rules,
	})
	b.OnPlaced = placed.Inc
	b.OnRejected = func(reason string) { rejected.WithLabelValues(reason).Inc() }

	co := cashout.New(log, st, pub, rules)
	co.OnExecuted = cashouts.Inc

	limiter := httpx.NewUserLimiter(cfg.UserRateLimit, cfg.UserRateBurst)
	api := bethttp.NewServer(log, b, co, st, limiter)
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"pg":    pg.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(shutdown)
		_ = msrv.Shutdown(shutdown)
	}()

	log.Info("bet-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("bet-service stopped")
}
