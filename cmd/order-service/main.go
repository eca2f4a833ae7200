package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/venue-orders/internal/config"
	"github.com/dmehra2102/venue-orders/internal/db"
	"github.com/dmehra2102/venue-orders/internal/order/application"
	orderhttp "github.com/dmehra2102/venue-orders/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/venue-orders/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/venue-orders/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/venue-orders/internal/payment/application"
	paymenthttp "github.com/dmehra2102/venue-orders/internal/payment/infrastructure/http"
	"github.com/dmehra2102/venue-orders/internal/payment/infrastructure/vnpay"
	"github.com/dmehra2102/venue-orders/pkg/auth"
	"github.com/dmehra2102/venue-orders/pkg/idempotency"
	"github.com/dmehra2102/venue-orders/pkg/logging"
	"github.com/dmehra2102/venue-orders/pkg/outbox"
	"github.com/dmehra2102/venue-orders/pkg/shutdown"
	"github.com/dmehra2102/venue-orders/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateAPI()
	}
	log := logging.New(cfg.LogLevel)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	// Amounts go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Postgres
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

	// Idempotency keys
	var idem application.IdempotencyKeys
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis ping failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		idem = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	} else {
		log.Warn("REDIS_ADDR not set, idempotency keys disabled")
	}

	// Kafka producer
	writer := orderkafka.NewWriter(cfg.KafkaBrokers, cfg.OrderTopic)
	defer writer.Close()

	repo := orderpg.NewRepository(log, pool)

	var (
		dispatcher application.CommandDispatcher
		relay      *outbox.Relay
	)
	switch cfg.CommandDispatch {
	case config.DispatchDirect:
		dispatcher = application.NewDirectDispatcher(log, writer, repo)
	default:
		store := orderpg.NewOutboxStore(log, pool)
		dispatcher = store
		relay = outbox.NewRelay(log, store, outbox.NewDispatcher(log, writer, ""), cfg.ServiceName+"-relay")
	}
	log.Info("command dispatch", "mode", cfg.CommandDispatch)

	orders := orderhttp.NewHandler(log,
		application.NewService(log, dispatcher, idem),
		application.NewQueryService(repo, repo),
	)

	gateway := vnpay.NewClient(vnpay.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
		APIURL:     cfg.VNPay.APIURL,
	}, &http.Client{Timeout: cfg.GatewayTimeout})
	payments := paymenthttp.NewHandler(log,
		paymentapp.NewService(log, repo, gateway, cfg.GatewayTimeout),
		cfg.FrontendURL,
	)

	authMW := auth.Middleware([]byte(cfg.JWTSecret))

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.With(authMW).Mount("/orders", orders.Routes())
	r.Mount("/payment", payments.Routes(authMW))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracetime)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("order-service stopped with error", "err", err)
	}
	log.Info("order-service shutdown complete")
}
