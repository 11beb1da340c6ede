package main

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dapurkita/ordersync/pkg/idempotency"
	"github.com/dapurkita/ordersync/pkg/logging"
	"github.com/dapurkita/ordersync/pkg/shutdown"
	"github.com/dapurkita/ordersync/pkg/tracing"

	"github.com/dapurkita/ordersync/internal/notification"
	"github.com/dapurkita/ordersync/internal/order/infrastructure/localstore"
)

func main() {
	_ = godotenv.Load()
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	redisAddr := env("REDIS_ADDR", "localhost:6379")
	kafkaBrokers := []string{env("KAFKA_ADDR", "localhost:9092")}
	otlpEndpoint := env("OTLP_ENDPOINT", "localhost:4317")
	topic := env("OUTBOX_TOPIC", "order.events")
	group := env("CONSUMER_GROUP", "notification-service")

	tp, err := tracing.Init(ctx, "notification-service", otlpEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := notification.NewStore(log, localstore.NewRedisKV(rdb))
	idem := idempotency.NewStore(rdb, idempotency.DefaultTTL)
	consumer := notification.NewConsumer(log, kafkaBrokers, topic, group, store, idem)

	log.Info("notification consumer starting", "topic", topic, "group", group)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("notification-service shutdown complete")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
