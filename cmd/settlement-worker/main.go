package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/settlement"
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

	if cfg.Env == "local" || cfg.Env == "dev" {
		tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(tctx, log, cfg.KafkaBrokers, cfg.TopicSettlementJobs, cfg.TopicSettlementJobsDLQ); err != nil {
			log.Warn("kafka topic bootstrap failed", zap.Error(err))
		}
		tcancel()
	}

	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSettlementJobsDLQ)
	defer dlq.Close()

	// Métricas Prometheus
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_slips_settled_total", Help: "bilhetes liquidados por resultado"}, []string{"result"})
	legsClosed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_legs_closed_total", Help: "pernas fechadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(settled, legsClosed, errorsBy)
	onError := func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	eng := settlement.New(log, st, pubsub.NewRedisBroadcaster(rdb, cfg.RedisUpdatesChannel), settlement.LogNotifier{Log: log}, settlement.Config{
		Rules:          payout.Rules{TaxRate: cfg.TaxRate, CashoutMargin: cfg.CashoutMargin},
		LoyaltyEnabled: cfg.LoyaltyEnabled,
		PointsPerSlip:  cfg.PointsPerSlip,
		Parallelism:    cfg.SettlementParallelism,
	})
	eng.OnSettled = func(result string) { settled.WithLabelValues(result).Inc() }
	eng.OnLegsClosed = func(n int) { legsClosed.Add(float64(n)) }
	eng.OnError = onError

	consumer := &kafka.Consumer{
		Log: log,
		Config: kafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.TopicSettlementJobs,
			GroupID: "settlement-worker",
			Readers: cfg.SettlementConsumers,
			Retries: cfg.SettlementRetries,
			Backoff: time.Second,
			DLQ:     dlq,
		},
		Handle:  eng.KafkaHandler(),
		OnError: onError,
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"pg":    pg.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	log.Info("settlement-worker started", zap.Int("readers", cfg.SettlementConsumers))
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("settlement worker stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")

	shutdown, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = msrv.Shutdown(shutdown)
}
