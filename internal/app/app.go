// Package app wires configuration, shared infrastructure and the feature
// modules into a runnable HTTP application.
package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/casalinda/server/internal/module/cart"
	"github.com/casalinda/server/internal/module/order"
	"github.com/casalinda/server/internal/module/payment"
	"github.com/casalinda/server/internal/module/payment/gateway"
	"github.com/casalinda/server/internal/module/storage"
	sharedcache "github.com/casalinda/server/internal/shared/cache"
	"github.com/casalinda/server/internal/shared/config"
	"github.com/casalinda/server/internal/shared/database"
	"github.com/casalinda/server/internal/shared/events"
	"github.com/casalinda/server/internal/shared/logger"
	"github.com/casalinda/server/internal/shared/metrics"
	"github.com/casalinda/server/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	eventBus *events.Bus
	metrics  *metrics.Metrics

	// Modules
	orderHandler   *order.Handler
	orderService   *order.Service
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
	cartHandler    *cart.Handler
	storageHandler *storage.Handler
}

// LoadConfig loads the application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:   cfg,
		logger:   log,
		eventBus: events.NewBus(log),
		metrics:  metrics.New("casalinda"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.redis = redisClient

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	app.initModules()
	app.router = app.setupRouter()

	return app, nil
}

// migrate applies the schema for all module models.
func (a *App) migrate() error {
	if err := a.db.AutoMigrate(
		&order.Order{},
		&order.OrderItem{},
		&order.StatusHistoryEntry{},
		&order.Communication{},
		&order.TrackingEntry{},
		&payment.Payment{},
		&payment.GatewayEvent{},
	); err != nil {
		return err
	}

	// One awaiting-payment order per customer, enforced at the database
	// as well. AutoMigrate cannot express a partial index.
	return a.db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_pending_per_customer
		 ON orders (customer_id) WHERE payment_status = 'pending'`,
	).Error
}

// initModules constructs every feature module and their cross-module
// adapters.
func (a *App) initModules() {
	locker := sharedcache.NewLocker(a.redis, a.config.Order.LockTTL)

	// Order module
	orderRepo := order.NewRepository(a.db)
	guard := order.NewPendingGuard(orderRepo, order.NewStateMachine(),
		a.config.Order.ExpiryWindow, a.logger)
	a.orderService = order.NewService(orderRepo, guard, locker,
		a.eventBus, a.metrics, a.config.Order, a.logger)
	a.eventBus.Register(order.NewEventHandler(orderRepo, a.logger))

	// Cart module
	cartService := cart.NewService(cart.NewStore(a.redis))
	a.cartHandler = cart.NewHandler(cartService)

	a.orderHandler = order.NewHandler(a.orderService, &cartSource{carts: cartService})

	// Payment module
	gatewayClient := gateway.NewClient(a.config.Gateway, a.metrics, a.logger)
	paymentService := payment.NewService(payment.NewRepository(a.db),
		gatewayClient, &orderDirector{orders: a.orderService}, a.metrics, a.logger)
	a.paymentHandler = payment.NewHandler(paymentService)
	a.webhookHandler = payment.NewWebhookHandler(paymentService,
		a.config.Gateway.CallbackSecret, a.logger)

	// Attachment storage is optional; without configuration the
	// attachment routes are simply not registered.
	if storageClient, err := storage.NewClient(a.config.Storage); err != nil {
		a.logger.Warn("attachment storage disabled", zap.Error(err))
	} else {
		a.storageHandler = storage.NewHandler(storageClient)
	}
}

// setupRouter creates and configures the gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", a.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	verifier := middleware.NewJWTVerifier(a.config.Auth.JWTSecret, a.config.Auth.Issuer)

	api := r.Group("/api/v1")

	// Processor callbacks are unauthenticated.
	webhooks := api.Group("/payments")
	a.webhookHandler.RegisterRoutes(webhooks)

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(verifier))
	{
		a.orderHandler.RegisterProtectedRoutes(protected)
		a.paymentHandler.RegisterProtectedRoutes(protected)
		a.cartHandler.RegisterProtectedRoutes(protected)
		if a.storageHandler != nil {
			a.storageHandler.RegisterProtectedRoutes(protected)
		}
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAuth(verifier), middleware.RequireAdmin())
	{
		a.orderHandler.RegisterAdminRoutes(admin)
		a.paymentHandler.RegisterAdminRoutes(admin)
	}

	return r
}

func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases application resources.
func (a *App) Stop() {
	if err := sharedcache.Close(a.redis); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
