package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardapio/internal/cart"
	"cardapio/internal/config"
	"cardapio/internal/handlers"
	"cardapio/internal/metrics"
	"cardapio/internal/middleware"
	"cardapio/internal/models"
	"cardapio/internal/repositories"
	"cardapio/internal/services"
	"cardapio/internal/session"
	"cardapio/pkg/logger"
	"cardapio/pkg/rabbitmq"
	"cardapio/pkg/supabase"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	go func() {
		log.WithField("addr", cfg.AppPort).Info("Starting server")
		if err := a.fiber.Listen(cfg.AppPort); err != nil {
			log.WithError(err).Error("Server stopped")
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := a.shutdown(10 * time.Second); err != nil {
		log.WithError(err).Warn("Shutdown finished with errors")
	}
	log.Info("Server gracefully stopped")
}

// app is the wired application with everything that needs closing.
type app struct {
	fiber   *fiber.App
	cron    *cron.Cron
	closers []func() error
}

func (a *app) shutdown(timeout time.Duration) error {
	var errs []error
	if err := a.fiber.ShutdownWithTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("fiber shutdown: %w", err))
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	// Close in reverse order of creation.
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// backend bundles the storage and identity implementations of one BACKEND.
type backend struct {
	menu     repositories.MenuRepository
	orders   repositories.OrderRepository
	images   repositories.ImageStore
	provider services.AuthProvider
	// reconcile is nil when the backend cannot list other users' orders.
	reconcile repositories.OrderRepository
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			for i := len(a.closers) - 1; i >= 0; i-- {
				_ = a.closers[i]()
			}
		}
	}()

	// --- Initialize Repositories ---
	var be *backend
	switch cfg.Backend {
	case config.BackendSupabase:
		be, err = newSupabaseBackend(cfg, log)
	default:
		be, err = newDatabaseBackend(cfg, log)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, be.closers...)

	var cache repositories.MenuCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
		cache = repositories.NewRedisMenuCache(rdb, cfg.MenuCacheTTL)
		log.Component("redis").WithField("addr", opts.Addr).Info("menu cache enabled")
	}

	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log.Component("rabbitmq"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
		a.closers = append(a.closers, mq.Close)
		publisher = mq

		// Kitchen consumer for placed orders.
		if _, err := mq.Consume(ctx, services.OrderPlacedHandler(log.Component("kitchen"))); err != nil {
			return nil, fmt.Errorf("failed to start RabbitMQ consumer: %w", err)
		}
	}

	// --- Initialize Services ---
	authService := services.NewAuthService(be.provider, services.NewTokenVerifier(cfg.TokenSecret()), log.Component("auth"))
	menuService := services.NewMenuService(be.menu, be.images, cache, log.Component("menu"))
	orderService := services.NewOrderService(be.orders, publisher, services.OrderConfig{
		StepTimeout: cfg.OrderStepTimeout,
		Compensate:  cfg.OrderCompensate,
		Currency:    cfg.Currency,
	}, log.Component("orders"))
	orderService.Observe(func(_ *cart.Cart, state services.SubmitState) {
		log.Component("orders").WithField("state", state.String()).Debug("submission state")
	})
	sessions := session.NewManager(authService, log.Component("session"))
	a.closers = append(a.closers, func() error { sessions.Close(); return nil })

	// --- Background Jobs ---
	a.cron = cron.New()
	if cfg.SessionSweepSchedule != "" {
		if _, err := authService.Schedule(a.cron, cfg.SessionSweepSchedule); err != nil {
			return nil, err
		}
	}
	if cfg.ReconcileSchedule != "" && be.reconcile != nil {
		reconciler := services.NewReconciler(be.reconcile, cfg.ReconcileGrace, log.Component("reconciler"))
		if _, err := reconciler.Schedule(a.cron, cfg.ReconcileSchedule, time.Minute); err != nil {
			return nil, err
		}
	} else if cfg.ReconcileSchedule != "" {
		log.Component("reconciler").Warn("SUPABASE_SERVICE_ROLE_KEY is not set; orphaned orders will not be reconciled")
	}
	a.cron.Start()

	// --- Initialize Fiber App ---
	a.fiber = fiber.New(fiber.Config{
		AppName:               "cardapio",
		DisableStartupMessage: true,
	})

	// --- Middleware ---
	a.fiber.Use(recover.New())
	a.fiber.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	a.fiber.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	a.fiber.Use(metrics.Middleware())

	// --- Health Check and Metrics ---
	a.fiber.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"time":    time.Now().Format(time.RFC3339),
			"backend": cfg.Backend,
			"events":  publisher != nil,
			"cache":   cache != nil,
		})
	})
	a.fiber.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if cfg.Backend == config.BackendDatabase {
		a.fiber.Static("/images", cfg.ImagesDir)
	}

	// --- API Routes ---
	apiV1 := a.fiber.Group("/api/v1")
	requireSession := middleware.SessionRequired(authService, sessions, log.Component("middleware"))

	handlers.NewAuthHandler(authService, log.Component("auth")).RegisterRoutes(apiV1, requireSession)

	protectedRoutes := apiV1.Group("", requireSession)
	handlers.NewMenuHandler(menuService, log.Component("menu")).RegisterRoutes(protectedRoutes)
	handlers.NewCartHandler(menuService, cfg.Currency, log.Component("cart")).RegisterRoutes(protectedRoutes)
	handlers.NewOrderHandler(orderService, log.Component("orders")).RegisterRoutes(protectedRoutes)

	return a, nil
}

func newDatabaseBackend(cfg config.Config, log *logger.Logger) (*backend, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.MenuItem{}, &models.Order{}, &models.OrderItem{}, &models.User{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	log.Component("database").WithField("driver", cfg.DatabaseDriver).Info("database connected")

	orders := repositories.NewGORMOrderRepository(db)
	issuer := services.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	return &backend{
		menu:      repositories.NewGORMMenuRepository(db),
		orders:    orders,
		images:    repositories.NewLocalImageStore(cfg.ImagesDir, cfg.PublicBaseURL+"/images"),
		provider:  services.NewLocalAuthProvider(repositories.NewGORMUserRepository(db), issuer),
		reconcile: orders,
		closers:   []func() error{sqlDB.Close},
	}, nil
}

func newSupabaseBackend(cfg config.Config, log *logger.Logger) (*backend, error) {
	client, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseAnonKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	orders := repositories.NewSupabaseOrderRepository(client)
	be := &backend{
		menu:     repositories.NewSupabaseMenuRepository(client),
		orders:   orders,
		images:   repositories.NewSupabaseImageStore(client, cfg.MenuImagesBucket),
		provider: services.NewSupabaseAuthProvider(client),
	}
	if cfg.SupabasePlaceOrderRPC != "" {
		be.orders = repositories.NewSupabaseRPCOrderRepository(orders, cfg.SupabasePlaceOrderRPC)
	}

	if cfg.SupabaseServiceKey != "" {
		service, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseServiceKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create supabase service client: %w", err)
		}
		be.reconcile = repositories.NewSupabaseOrderRepository(service)
	}

	log.Component("supabase").WithFields(logrus.Fields{
		"url":              cfg.SupabaseURL,
		"place_order_rpc":  cfg.SupabasePlaceOrderRPC,
		"reconcile_orders": be.reconcile != nil,
	}).Info("supabase backend configured")
	return be, nil
}
