package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/config"
	"github.com/atmx/trading-game/internal/logging"
	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/quotes"
	"github.com/atmx/trading-game/internal/store"
	"github.com/atmx/trading-game/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Redis (shared by store cache and quote book) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Store ---
	st, closeStore, err := openStore(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	cleanup = append(cleanup, closeStore...)

	// --- Quote book ---
	var book quotes.Book = quotes.NewMemoryBook()
	if rdb != nil {
		book = quotes.NewRedisBook(rdb, "tradinggame:quotes", logger)
		logger.Info("redis quote book enabled")
	}
	if cfg.QuoteCacheTTL > 0 {
		cached, err := quotes.NewCachedBook(book, cfg.QuoteCacheTTL)
		if err != nil {
			logger.Fatal("quote cache", zap.Error(err))
		}
		cleanup = append(cleanup, cached.Close)
		book = cached
	}

	// --- Audit sinks ---
	hub := audit.NewHub(logger)
	go hub.Run(ctx.Done())
	sinks := audit.Multi{audit.NewLogSink(logger), hub}

	if len(cfg.KafkaBrokers) > 0 {
		ks := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		cleanup = append(cleanup, func() { ks.Close() })
		sinks = append(sinks, ks)

		consumer := quotes.NewConsumer(cfg.KafkaBrokers, cfg.KafkaQuotesTopic, cfg.KafkaGroupID, book, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("quote consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("kafka enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("quotes_topic", cfg.KafkaQuotesTopic),
			zap.String("events_topic", cfg.KafkaEventsTopic),
		)
	}

	// --- Trade service ---
	svc := trade.NewService(st, book, cfg.Gateway(), sinks, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trading-game"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live audit events.
		r.Get("/ws", hub.HandleWS)
		svc.Routes(r)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigin, ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("trading-game listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	logger.Info("shutting down trading-game")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	cancel()
	logger.Info("trading-game stopped")
}

// openStore picks the persistence backend: PostgreSQL when DATABASE_URL is
// set, else Pebble when PEBBLE_PATH is set, else memory. Durable stores are
// wrapped with the Redis cache when rdb is non-nil.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *zap.Logger) (store.Store, []func(), error) {
	var st store.Store
	var cleanup []func()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		st = pg
		logger.Info("connected to PostgreSQL")

	case cfg.PebblePath != "":
		pb, err := store.OpenPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { pb.Close() })
		st = pb
		logger.Info("pebble store opened", zap.String("path", cfg.PebblePath))

	default:
		logger.Warn("DATABASE_URL and PEBBLE_PATH not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, nil
	}

	if rdb != nil {
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		logger.Info("redis cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}
	return st, cleanup, nil
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
