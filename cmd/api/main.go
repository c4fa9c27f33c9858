package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/config"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/events"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-warehouse-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/memstore"
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
	observability.SetupLogging(cfg.ServiceName, cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup")
	}

	// Store
	var store orders.Store
	switch cfg.Store {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on exit")
		store = memstore.New()
	default:
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{})
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		store = postgres.NewStore(db)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, cache calls will fail over to the store")
	}
	statusCache := redisx.NewStatusCache(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	prod.Start(ctx)

	svc := fulfillment.New(store, fulfillment.Config{
		MaxOrdersPerPicker: cfg.MaxOrdersPerPicker,
		SessionTimeout:     cfg.SessionTimeout,
		Notifier: events.Fanout{
			events.NewPublisher(prod, cfg.ServiceName),
			events.CacheWriter{Views: statusCache},
		},
	})

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Svc:   svc,
		Cache: statusCache,
		Idem:  redisx.NewIdempotency(rdb),
	}).Register(router)
	(&httpx.InventoryHandler{Svc: svc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
	if err := shutdownTracing(ctx2); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
