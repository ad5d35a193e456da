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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/storefront/internal/middleware/logging"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/search"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/tokens"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db_init_error", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("db_migrate_error", "error", err)
		os.Exit(1)
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := events.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Error("kafka_init_error", "error", err)
			os.Exit(1)
		}
		pub = prod
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS not set")
	}

	// Search is optional; the catalog falls back to the database.
	var searcher service.ProductSearcher
	if cfg.ESURL != "" {
		es, err := search.NewClient(initCtx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			logger.Warn("es_unavailable", "error", err)
		} else {
			ix := search.NewIndex(es, cfg.ESIndex)
			if err := ix.EnsureIndex(initCtx); err != nil {
				logger.Warn("es_index_error", "index", cfg.ESIndex, "error", err)
			}
			searcher = ix
		}
	}

	var guests cart.Store
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(initCtx).Err(); err != nil {
			logger.Error("redis_init_error", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		guests = cart.NewRedisStore(rdb, cfg.GuestCartTTL)
	} else {
		logger.Warn("redis_disabled", "reason", "guest carts kept in memory")
		guests = cart.NewMemoryStore(cfg.GuestCartTTL)
	}

	r := repo.New(gdb)
	ts := tokens.NewService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	m := metrics.New()
	rc := cart.NewReconciler(cart.Pricing{
		TaxRate:          cfg.TaxRate,
		FreeShippingOver: cfg.FreeShippingOver,
		ShippingFee:      cfg.ShippingFee,
	})

	sessions := &service.SessionService{Repo: r, Tokens: ts, Hasher: hash.New(cfg.BcryptCost), Events: pub, Metrics: m}
	carts := &cart.Service{Reconciler: rc, Accounts: &cart.AccountStore{Repo: r}, Guests: guests, Products: r, Events: pub, Metrics: m}
	catalog := &service.CatalogService{Repo: r, Search: searcher, Events: pub}
	orders := &service.OrderService{Repo: r, Reconciler: rc, Events: pub, Metrics: m}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.Secure(), loggingmw.RequestLogger(logger), m.Middleware())
	if cfg.CSRFEnabled {
		e.Use(csrf.Middleware(csrf.Config{
			SessionCookies: []string{auth.AccessCookie, auth.RefreshCookie, httpserver.GuestCartCookie},
			SkipPaths:      []string{"/health/live", "/health/ready", "/metrics"},
		}))
	}

	httpserver.Register(e, &httpserver.Deps{
		DB:      gdb,
		Guard:   auth.NewGuard(ts),
		Metrics: m,
		Auth:    &httpserver.AuthHTTP{Sessions: sessions, Carts: carts},
		Cart:    &httpserver.CartHTTP{Carts: carts, GuestTTL: cfg.GuestCartTTL},
		Catalog: &httpserver.CatalogHTTP{Catalog: catalog},
		Orders:  &httpserver.OrdersHTTP{Orders: orders},
		Admin:   &httpserver.AdminHTTP{Sessions: sessions},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if err := pub.Close(); err != nil {
		logger.Error("kafka_close_error", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis_close_error", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_error", "error", err)
	}

	logger.Info("shutdown_complete")
}
