package main

import (
	"context"
	"net/http"
	"os"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/venue-orders/internal/config"
	"github.com/dmehra2102/venue-orders/internal/db"
	"github.com/dmehra2102/venue-orders/internal/order/application"
	"github.com/dmehra2102/venue-orders/internal/order/infrastructure/catalog"
	orderkafka "github.com/dmehra2102/venue-orders/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/venue-orders/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/venue-orders/pkg/logging"
	"github.com/dmehra2102/venue-orders/pkg/shutdown"
	"github.com/dmehra2102/venue-orders/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "order-consumer", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.PGURL, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}
	pool, err := db.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Price oracle
	var oracle application.PriceOracle
	switch cfg.PriceOracle {
	case config.OracleMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Error("mongo connect failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := client.Ping(ctx, nil); err != nil {
			log.Error("mongo ping failed", "err", err)
			os.Exit(1)
		}
		oracle = catalog.NewMongoOracle(client.Database(cfg.MongoDatabase), cfg.MongoProducts)
	default:
		oracle = catalog.NewHTTPOracle(cfg.CatalogURL, &http.Client{Timeout: cfg.OracleTimeout})
	}
	log.Info("price oracle", "kind", cfg.PriceOracle)

	repo := orderpg.NewRepository(log, pool)
	processor := application.NewProcessor(log, repo, repo, oracle, cfg.OracleTimeout)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.ConsumerWorkers; i++ {
		reader := orderkafka.NewReader(cfg.KafkaBrokers, cfg.OrderTopic, cfg.ConsumerGroup)
		consumer := orderkafka.NewConsumer(log.With("worker", i), reader, processor, cfg.ConsumerRetries, cfg.ConsumerBackoff)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	log.Info("consuming", "topic", cfg.OrderTopic, "group", cfg.ConsumerGroup, "workers", cfg.ConsumerWorkers)

	if err := g.Wait(); err != nil {
		log.Error("order-consumer stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("order-consumer shutdown complete")
}
