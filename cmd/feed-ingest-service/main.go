package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/archive"
	"github.com/radieske/sports-wager-engine/internal/feed-ingest/publisher"
	"github.com/radieske/sports-wager-engine/internal/feed-ingest/service"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
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

	log.Info("Kafka brokers", zap.String("brokers", cfg.KafkaBrokers))

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Env == "local" || cfg.Env == "dev" {
		tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(tctx, log, cfg.KafkaBrokers, cfg.TopicFeedEvents); err != nil {
			log.Warn("kafka topic bootstrap failed", zap.Error(err))
		}
		tcancel()
	}

	// Kafka Publisher (chave = partida)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicFeedEvents)
	defer writer.Close()
	pub := publisher.NewKafkaPublisher(writer, log)

	// Métricas
	received := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_ingest_messages_received_total", Help: "mensagens do fornecedor por tipo"}, []string{"type"})
	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_ingest_messages_published_total", Help: "mensagens publicadas no kafka"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_ingest_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(received, published, errorsBy)

	wsClient := &service.WSClient{
		URL:         cfg.FeedWSURL,
		Log:         log,
		Publisher:   pub,
		OnReceived:  func(t string) { received.WithLabelValues(t).Inc() },
		OnPublished: published.Inc,
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Arquivo S3 das mensagens cruas (opcional)
	if cfg.ArchiveBucket != "" {
		arc, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatal("archive init", zap.Error(err))
		}
		wsClient.Archive = arc
		log.Info("raw feed archive enabled", zap.String("bucket", cfg.ArchiveBucket))
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, nil)

	wsClient.Start(ctx)
	log.Info("shutdown signal received")

	shutdown, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = msrv.Shutdown(shutdown)
}
