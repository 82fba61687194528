package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/reviews"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/sweep"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	engine, policy, err := coreFromEnv()
	if err != nil {
		panic(err)
	}

	st, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer st.close()

	m := metrics.NewBooking(prometheus.DefaultRegisterer)
	bookingSvc := booking.NewService(st.store, engine, policy, logger, m)
	catalogSvc := catalog.NewService(st.store, logger)
	reviewSvc := reviews.NewService(st.store)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var sink outbox.Sink = outbox.NewLogSink(logger)
	if len(brokers) > 0 {
		kafkaSink := outbox.NewKafkaSink(kafkax.NewWriter(brokers))
		defer func() { _ = kafkaSink.Close() }()
		sink = kafkaSink
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events are only logged")
	}
	publishEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		panic(err)
	}
	publisher := outbox.NewPublisher(st.batcher, sink, logger, m, outbox.PublisherConfig{
		PollEvery: publishEvery,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	sweepCfg, err := sweepFromEnv()
	if err != nil {
		panic(err)
	}
	worker, err := sweep.NewWorker(bookingSvc, logger, sweepCfg)
	if err != nil {
		panic(err)
	}
	go worker.Run(ctx)

	checks := append([]runtime.ReadyCheck{}, st.checks...)
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", handlers.NewRouter(handlers.Handlers{
		Appointments: handlers.NewAppointmentHandler(bookingSvc, logger),
		Catalog:      handlers.NewCatalogHandler(catalogSvc, logger),
		Reviews:      handlers.NewReviewHandler(reviewSvc, logger),
	}, logger))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", st.driver, "approval_policy", policy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func coreFromEnv() (*availability.Engine, lifecycle.Policy, error) {
	step, err := config.Int("SLOT_STEP_MINUTES", 30)
	if err != nil {
		return nil, "", err
	}
	if step <= 0 {
		step = 30
	}
	loc, err := time.LoadLocation(config.String("SCHEDULE_TIMEZONE", "UTC"))
	if err != nil {
		return nil, "", err
	}
	policy, err := lifecycle.ParsePolicy(config.String("APPROVAL_POLICY", string(lifecycle.PolicyBoth)))
	if err != nil {
		return nil, "", err
	}
	return availability.NewEngine(time.Duration(step)*time.Minute, loc, time.Now), policy, nil
}

func sweepFromEnv() (sweep.Config, error) {
	batch, err := config.Int("SWEEP_BATCH_SIZE", 100)
	if err != nil {
		return sweep.Config{}, err
	}
	timeout, err := config.Duration("SWEEP_TIMEOUT", 30*time.Second)
	if err != nil {
		return sweep.Config{}, err
	}
	return sweep.Config{
		Schedule:  config.String("SWEEP_SCHEDULE", "@every 1m"),
		BatchSize: batch,
		Timeout:   timeout,
	}, nil
}

// appStore is everything the services need from one backing store.
type appStore interface {
	booking.Store
	catalog.Store
	reviews.Store
}

type storeBundle struct {
	driver  string
	store   appStore
	batcher outbox.Batcher
	checks  []runtime.ReadyCheck
	close   func()
}

func openStore(ctx context.Context, logger *slog.Logger) (storeBundle, error) {
	driver := config.String("STORAGE_DRIVER", "postgres")
	if driver == "memory" {
		logger.Warn("using in-memory storage; data is lost on restart")
		mem := storage.NewMemory()
		return storeBundle{driver: driver, store: mem, batcher: mem, close: func() {}}, nil
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return storeBundle{}, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return storeBundle{}, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		return storeBundle{}, err
	}
	return storeBundle{
		driver:  "postgres",
		store:   storage.NewPostgres(pool),
		batcher: outbox.NewPostgresBatcher(pool),
		checks:  []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		close:   pool.Close,
	}, nil
}
