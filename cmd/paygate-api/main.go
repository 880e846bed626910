package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearledger/paygate/internal/chain"
	"github.com/clearledger/paygate/internal/chain/cached"
	"github.com/clearledger/paygate/internal/chain/evmrpc"
	"github.com/clearledger/paygate/internal/governance"
	"github.com/clearledger/paygate/internal/httpx"
	"github.com/clearledger/paygate/internal/ledger"
	"github.com/clearledger/paygate/internal/ledger/custodyhttp"
	"github.com/clearledger/paygate/internal/ledger/ledgermock"
	"github.com/clearledger/paygate/internal/order"
	logsqlite "github.com/clearledger/paygate/internal/order/orderlog/sqlite"
	"github.com/clearledger/paygate/internal/pkg/cache"
	"github.com/clearledger/paygate/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "paygate-api"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	// Durable order transition log.
	logRepo, err := logsqlite.Open(getEnv("ORDER_LOG_PATH", "./data/orders.db"))
	if err != nil {
		slog.Error("failed to open order log", "error", err)
		os.Exit(1)
	}
	defer logRepo.Close()

	// Close out claims interrupted by the previous shutdown before
	// accepting new ones.
	reopened, err := order.RecoverInFlight(ctx, logRepo)
	if err != nil {
		slog.Error("failed to recover in-flight claims", "error", err)
		os.Exit(1)
	}
	if len(reopened) > 0 {
		slog.Warn("recovered interrupted claims, reconcile against ledger before reuse", "order_ids", reopened)
	}

	// Settlement authority: remote custody service, or the in-memory mock
	// for local development.
	var ledgerClient ledger.Client
	var signer governance.Signer
	switch mode := getEnv("LEDGER_MODE", "custody"); mode {
	case "custody":
		custody := custodyhttp.New(getEnv("CUSTODY_BASE_URL", "http://localhost:7090"))
		ledgerClient, signer = custody, custody
	case "mock":
		mock := ledgermock.New()
		ledgerClient, signer = mock, mock
		slog.Warn("running with the in-memory mock ledger; settlements are not real")
	default:
		slog.Error("unknown LEDGER_MODE", "mode", mode)
		os.Exit(1)
	}

	// Chain read surface, optionally cached through Redis.
	var reader chain.Reader = evmrpc.New(
		getEnv("ETH_RPC_URL", "http://localhost:8545"),
		getEnv("TOKEN_ADDRESS", "0xf1E56D0Ffc2E6425213b701a467918923A4f8c13"),
		getEnv("BALLOT_ADDRESS", "0x110557Da3cE276AD14915aD72a993Aa8c548C7E5"),
	)
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		reader = cached.New(reader, cache.NewRedisCache(redisAddr, "paygate"))
	}

	registry := order.NewRegistry(logRepo)
	dispatcher := order.NewDispatcher(registry, ledgerClient, logRepo)

	reaper := order.NewReaper(registry,
		getDuration("CLAIM_TIMEOUT", 2*time.Minute),
		getDuration("REAP_INTERVAL", 15*time.Second),
		logRepo,
	)
	go reaper.Run(ctx)

	handler := httpx.NewHandler(registry, dispatcher, reader, governance.NewService(signer, reader))
	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: httpx.NewRouter(handler),
	}

	go func() {
		slog.Info("paygate api running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using fallback", "key", key, "value", value, "fallback", fallback.String())
		return fallback
	}
	return d
}
