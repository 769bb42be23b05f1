package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/foodshare/internal/config"
	invapp "github.com/dmehra2102/foodshare/internal/inventory/application"
	invgrpc "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/grpc"
	invhttp "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/http"
	invkafka "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/kafka"
	invpg "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/foodshare/internal/order/application"
	orderhttp "github.com/dmehra2102/foodshare/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/foodshare/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/foodshare/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/foodshare/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/foodshare/pkg/httpx"
	"github.com/dmehra2102/foodshare/pkg/idempotency"
	"github.com/dmehra2102/foodshare/pkg/logging"
	"github.com/dmehra2102/foodshare/pkg/outbox"
	"github.com/dmehra2102/foodshare/pkg/shutdown"
	"github.com/dmehra2102/foodshare/pkg/tracing"
)

const serviceName = "fulfillment-service"

type stores struct {
	uow    application.UnitOfWork
	stock  invapp.StockRepository
	outbox outbox.Store
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	st, err := openStores(ctx, log, cfg)
	if err != nil {
		log.Error("store setup failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer st.close()

	// Redis backs idempotency; without it duplicate requests are not filtered and the
	// donation consumer stays off.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	var idem *idempotency.Store
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, idempotency disabled", "addr", cfg.RedisAddr, "err", err)
	} else {
		idem = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	}

	orderSvc := application.NewService(log, st.uow)
	invSvc := invapp.NewService(log, st.stock, cfg.LowStockThreshold)

	writer := orderkafka.NewWriter(log, cfg.KafkaBrokers)
	defer writer.Close()

	if cfg.RelayEnabled {
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, st.outbox, dispatch, serviceName+"-"+uuid.NewString())
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	if idem != nil {
		consumer := invkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.DonationTopic, cfg.DonationGroup, invSvc, idem)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("donation consumer stopped", "err", err)
			}
		}()
	}

	gs, err := invgrpc.Run(log, cfg.GRPCAddr, invgrpc.NewServer(log, invSvc))
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	defer gs.GracefulStop()

	r := chi.NewRouter()
	r.Use(httpx.RequestID(log))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	orderhttp.NewHandler(log, orderSvc, idem).Register(r)
	invhttp.NewHandler(log, invSvc).Register(r)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("fulfillment-service shutdown complete")
}

func openStores(ctx context.Context, log *slog.Logger, cfg config.Config) (stores, error) {
	if cfg.Store == config.StoreMemory {
		mem := memory.NewStore()
		for name, qty := range cfg.SeedStock {
			mem.SetStock(name, qty)
		}
		return stores{uow: mem, stock: mem, outbox: mem.OutboxStore(), close: func() {}}, nil
	}

	pool, err := orderpg.NewPool(ctx, cfg.PGURL, cfg.PGMaxConns)
	if err != nil {
		return stores{}, err
	}
	if err := orderpg.Migrate(ctx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	stock := invpg.NewRepository(log, pool)
	for name, qty := range cfg.SeedStock {
		if err := stock.SetStock(ctx, name, qty); err != nil {
			pool.Close()
			return stores{}, err
		}
	}
	return stores{
		uow:    orderpg.NewUnitOfWork(log, pool),
		stock:  stock,
		outbox: orderpg.NewOutboxStore(log, pool),
		close:  pool.Close,
	}, nil
}
