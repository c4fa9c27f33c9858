// Command worker projects order status events into Redis and resets picking
// sessions that exceeded the timeout.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/config"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/events"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-warehouse-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/observability"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-worker"
	observability.SetupLogging(service, cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OTELEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup")
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxConns: 4})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Sweeper transitions are published like any other.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 256)
	prod.Start(ctx)

	svc := fulfillment.New(postgres.NewStore(db), fulfillment.Config{
		MaxOrdersPerPicker: cfg.MaxOrdersPerPicker,
		SessionTimeout:     cfg.SessionTimeout,
		Notifier:           events.NewPublisher(prod, service),
	})

	projector := &events.Projector{
		Dedup: redisx.NewDeduper(rdb, "projector"),
		Views: redisx.NewStatusCache(rdb),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderStatusChanged, cfg.WorkerConcurrency)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		log.Info().Str("group", cfg.WorkerGroup).Str("topic", orders.TopicOrderStatusChanged).
			Int("workers", cfg.WorkerConcurrency).Msg("projector started")
		if err := cons.Start(ctx, projector.Handle); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		sweep(ctx, svc, cfg.SweepInterval)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down worker...")
	cancel()
	<-done
	<-done
	prod.Close()
	prod.WaitClosed()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = shutdownTracing(ctx2)
}

func sweep(ctx context.Context, svc *fulfillment.Service, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	ctx = fulfillment.WithActor(ctx, "stuck-order-sweeper")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.SweepStuckOrders(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweeper: run failed")
				continue
			}
			if n > 0 {
				log.Info().Int("reset", n).Msg("sweeper: reset stuck orders")
			}
		}
	}
}
