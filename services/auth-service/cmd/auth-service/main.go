package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/handlers"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/storage"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/token"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/users"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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

	store, checks, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer closeStore()

	signer, err := buildSigner(logger)
	if err != nil {
		logger.Error("jwt signer init failed", "err", err)
		panic(err)
	}
	ttl, err := config.Duration("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		panic(err)
	}
	cost, err := config.Int("BCRYPT_COST", 0)
	if err != nil {
		panic(err)
	}
	issuer := token.NewIssuer(signer, config.String("JWT_ISSUER", "apptbook-auth"), ttl, time.Now)
	svc := users.NewService(store, logger, cost, time.Now)
	router := handlers.New(svc, issuer, logger).Router()

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", router)
	mux.Handle("/.well-known/", router)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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

func openStore(ctx context.Context, logger *slog.Logger) (users.Store, []runtime.ReadyCheck, func(), error) {
	if config.String("STORAGE_DRIVER", "postgres") == "memory" {
		logger.Warn("using in-memory storage; accounts are lost on restart")
		return storage.NewMemory(), nil, func() {}, nil
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.Open(ctx, dbURL, db.DefaultOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	return storage.NewUserRepository(pool), checks, pool.Close, nil
}

// buildSigner prefers RS256 keys so the gateway can verify through JWKS.
// JWT_SECRET is the local development fallback.
func buildSigner(logger *slog.Logger) (token.Signer, error) {
	if pems := config.String("JWT_PRIVATE_KEYS_PEM", ""); pems != "" {
		s, err := token.NewRS256Signer(pems, config.String("JWT_ACTIVE_KID", ""))
		if err != nil {
			return nil, err
		}
		logger.Info("jwt signer ready", "alg", "RS256", "kid", s.ActiveKid(), "keys", len(s.JWKS()))
		return s, nil
	}
	logger.Warn("JWT_PRIVATE_KEYS_PEM not set; signing with HS256")
	return token.NewHS256Signer(config.String("JWT_SECRET", "dev-secret"))
}
