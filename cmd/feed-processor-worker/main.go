package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	oddscache "github.com/radieske/sports-wager-engine/internal/odds-service/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/feed"
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

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres e Redis
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
		if err := kafka.EnsureTopics(tctx, log, cfg.KafkaBrokers,
			cfg.TopicFeedEvents, cfg.TopicFeedEventsDLQ, cfg.TopicSettlementJobs); err != nil {
			log.Warn("kafka topic bootstrap failed", zap.Error(err))
		}
		tcancel()
	}

	// Fila de liquidação e DLQ do feed
	jobs := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSettlementJobs)
	defer jobs.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicFeedEventsDLQ)
	defer dlq.Close()

	// Métricas Prometheus para monitoramento do processamento
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_proc_messages_handled_total", Help: "mensagens aplicadas por tipo"}, []string{"type"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_proc_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(handled, errorsBy)
	onError := func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	// Updates de odds e status seguem para o odds-service/ws via Redis Pub/Sub
	pub := pubsub.NewRedisBroadcaster(rdb, cfg.RedisUpdatesChannel)

	proc := feed.New(log, st, settlement.NewKafkaQueue(jobs), pub, feed.Config{
		TwoUpTournaments: cfg.TwoUpTournaments,
		TwoUpMarkets:     cfg.TwoUpMarkets,
	}).WithCache(oddscache.NewFixtureCache(rdb, cfg.FixtureCacheTTL))
	proc.OnHandled = func(t string) { handled.WithLabelValues(t).Inc() }
	proc.OnError = onError

	consumer := &kafka.Consumer{
		Log: log,
		Config: kafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.TopicFeedEvents,
			GroupID: "feed-processor",
			// ordem por partida depende da partição: um reader por partição no máximo
			Readers: cfg.FeedConsumers,
			Retries: 3,
			Backoff: 500 * time.Millisecond,
			DLQ:     dlq,
		},
		Handle:  proc.KafkaHandler(),
		OnError: onError,
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"pg":    pg.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	log.Info("feed-processor started", zap.Int("readers", cfg.FeedConsumers))
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("feed-processor stopped")

	shutdown, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = msrv.Shutdown(shutdown)
}
