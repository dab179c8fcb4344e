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

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nftx/trade-engine/internal/api"
	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/market"
	"github.com/nftx/trade-engine/internal/metrics"
	"github.com/nftx/trade-engine/internal/store"
)

// engineAddress is the custody account the engine holds assets and
// escrowed funds under.
var engineAddress = common.HexToAddress("0x0000000000000000000000000000000000000e9e")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Settings ---
	cfg := config.New()
	if v := os.Getenv("FEE_BPS"); v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Error("invalid FEE_BPS", "err", err)
			os.Exit(1)
		}
		if err := cfg.SetFeeBps(bps); err != nil {
			slog.Error("invalid FEE_BPS", "err", err)
			os.Exit(1)
		}
	}
	if v := os.Getenv("FEE_BENEFICIARY"); v != "" {
		if !common.IsHexAddress(v) {
			slog.Error("invalid FEE_BENEFICIARY", "value", v)
			os.Exit(1)
		}
		cfg.SetFeeBeneficiary(common.HexToAddress(v))
	}
	if v := os.Getenv("OPERATOR_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			slog.Error("invalid OPERATOR_ADDRESS", "value", v)
			os.Exit(1)
		}
		cfg.SetOperator(common.HexToAddress(v))
	}

	// --- Event journal ---
	var journal store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		journal = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			journal = store.NewCachedStore(journal, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (events will not persist)")
		journal = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Chain world ---
	// The in-memory world stands in for real chain adapters; it is also the
	// snapshot/revert provider the engine's atomicity relies on.
	world := chain.NewMemory(engineAddress)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Engine ---
	engine := market.New(cfg, market.Deps{
		Assets:    world.Assets(),
		Tokens:    world.Tokens(),
		Native:    world.Native(),
		Royalties: world.Royalties(),
		World:     world,
		Self:      engineAddress,
		Sink:      event.MultiSink{wsHub, store.NewSink(journal), metrics.Sink{}},
	})

	svc := api.NewService(engine, cfg, journal)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Caller-Address, X-Origin-Address")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time lifecycle events.
		r.Get("/ws", wsHub.HandleWS)

		// Listings.
		r.Get("/orders", svc.ListOrders)
		r.Post("/orders", svc.CreateListing)
		r.Get("/orders/{orderID}", svc.GetOrder)
		r.Get("/orders/{orderID}/price", svc.GetOrderPrice)
		r.Put("/orders/{orderID}/price", svc.Reprice)
		r.Delete("/orders/{orderID}", svc.CancelOrder)
		r.Post("/orders/{orderID}/buy", svc.Buy)

		// Offers.
		r.Get("/offers", svc.ListOffers)
		r.Post("/offers", svc.CreateOffer)
		r.Get("/offers/{offerID}", svc.GetOffer)
		r.Post("/offers/{offerID}/accept", svc.AcceptOffer)
		r.Delete("/offers/{offerID}", svc.CancelOffer)

		// Auctions.
		r.Get("/auctions", svc.ListAuctions)
		r.Post("/auctions", svc.CreateAuction)
		r.Get("/auctions/{auctionID}", svc.GetAuction)
		r.Post("/auctions/{auctionID}/bids", svc.Bid)
		r.Post("/auctions/{auctionID}/settle", svc.SettleAuction)

		// Event feed.
		r.Get("/events", svc.ListEvents)
		r.Get("/events/collection/{address}", svc.ListCollectionEvents)

		// Operator admin.
		r.Post("/admin/pause", svc.SetPaused)
		r.Put("/admin/fee", svc.SetFee)
		r.Post("/admin/tokens/{address}", svc.AllowToken)
		r.Delete("/admin/tokens/{address}", svc.RevokeToken)
		r.Put("/admin/royalties/{address}", svc.SetRoyalty)
		r.Delete("/admin/offers/{offerID}", svc.AdminCancelOffer)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trade-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trade-engine stopped")
}
