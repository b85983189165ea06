package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/api"
	"github.com/atmx/contracts-engine/internal/coordinator"
	"github.com/atmx/contracts-engine/internal/engine"
	"github.com/atmx/contracts-engine/internal/feed"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/ledger"
	"github.com/atmx/contracts-engine/internal/risklimit"
	"github.com/atmx/contracts-engine/internal/store"
	"github.com/atmx/contracts-engine/internal/tcp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	tcpAddr := os.Getenv("TCP_ADDR")
	if tcpAddr == "" {
		tcpAddr = ":9009"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else if path := os.Getenv("SNAPSHOT_PATH"); path != "" {
		slog.Info("using file snapshot store", "path", path)
		st = store.NewFileStore(path)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core subsystems ---
	eng := engine.New()
	led := ledger.New(logger)
	mapper := idmap.New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if doc, ok, err := st.LoadSnapshot(ctx); err != nil {
		slog.Error("failed to load snapshot", "err", err)
		os.Exit(1)
	} else if ok {
		if err := eng.LoadState(doc.Markets); err != nil {
			slog.Error("failed to restore engine state", "err", err)
			os.Exit(1)
		}
		led.LoadState(doc.Accounts)
		mapper.LoadState(doc.Mapper.Map, doc.Mapper.NextId)
		slog.Info("restored snapshot", "markets", len(doc.Markets), "accounts", len(doc.Accounts))
	}
	cancel()

	// --- Risk limits ---
	maxPerMarket := decimalEnv("MAX_EXPOSURE_PER_MARKET", 1000)
	maxPerSubject := decimalEnv("MAX_EXPOSURE_PER_SUBJECT", 5000)
	limiter := risklimit.New(maxPerMarket, maxPerSubject)

	debugAudit := os.Getenv("DEBUG_AUDIT") != "false"
	coord := coordinator.New(eng, led, limiter, logger, coordinator.WithDebugAudit(debugAudit))

	// --- Market-data feed ---
	hub := feed.New(eng, logger)
	go hub.Run()

	// --- Periodic snapshot persistence ---
	go runSnapshotLoop(context.Background(), st, eng, led, mapper, logger)

	// --- TCP listener (the engine's primary, mutating protocol) ---
	tcpServer := tcp.New(tcpAddr, coord, mapper, logger, hub)
	go func() {
		slog.Info("contracts-engine tcp listening", "addr", tcpAddr)
		if err := tcpServer.Run(context.Background()); err != nil {
			slog.Error("tcp server error", "err", err)
			os.Exit(1)
		}
	}()

	// --- HTTP read-side API ---
	apiSvc := api.NewService(coord, mapper)
	router := api.NewRouter(apiSvc, hub.HandleWS)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("contracts-engine http listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down contracts-engine...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := saveSnapshot(saveCtx, st, eng, led, mapper); err != nil {
		slog.Error("final snapshot save failed", "err", err)
	}

	fmt.Println("contracts-engine stopped")
}

// runSnapshotLoop periodically persists the whole engine state, the
// background counterpart to the final save on shutdown. Five seconds
// matches the TCP server's single-worker cadence closely enough to bound
// how much history a crash could lose without saving on every command.
func runSnapshotLoop(ctx context.Context, st store.Store, eng *engine.Engine, led *ledger.Ledger, mapper *idmap.Mapper, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveSnapshot(ctx, st, eng, led, mapper); err != nil {
				log.Warn("periodic snapshot save failed", "err", err)
			}
		}
	}
}

func saveSnapshot(ctx context.Context, st store.Store, eng *engine.Engine, led *ledger.Ledger, mapper *idmap.Mapper) error {
	doc := store.Document{
		Markets:  eng.DumpState(),
		Accounts: led.DumpState(),
		Mapper:   mapper.DumpState(),
	}
	return st.SaveSnapshot(ctx, doc)
}

func decimalEnv(key string, fallback int64) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return decimal.NewFromInt(fallback)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return decimal.NewFromInt(n)
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return d
	}
	return decimal.NewFromInt(fallback)
}
