package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/handlers"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/cache"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/events"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/health"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/metrics"
	repository "github.com/aaravmahajanofficial/agri-marketplace/internal/repositories"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/telemetry"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/transport"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/sendgrid"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/stripe"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Logger setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load config
	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		slog.Error("❌ Error initializing tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	feeRate, err := decimal.NewFromString(cfg.Pricing.FeeRate)
	if err != nil || feeRate.IsNegative() {
		slog.Error("❌ Invalid platform fee rate", slog.String("feeRate", cfg.Pricing.FeeRate))
		os.Exit(1)
	}

	// Database setup
	repos, archive, err := repository.New(ctx, cfg)
	if err != nil {
		slog.Error("❌ Error accessing the database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Redis setup
	redisClient, err := repository.NewRedisClient(ctx, cfg)
	if redisClient == nil {
		slog.Error("❌ Error configuring redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err != nil {
		// carts keep working in memory, only persistence across restarts is lost
		slog.Warn("⚠️ Redis is unreachable, carts will not survive a restart", slog.String("error", err.Error()))
	}

	var adapter transport.Adapter
	switch cfg.Transport.Mode {
	case "redis":
		adapter = transport.NewRedisAdapter(redisClient, cfg.Transport.Prefix, cfg.Transport.Buffer)
	default:
		adapter = transport.NewMemoryAdapter(cfg.Transport.Buffer)
	}

	var emailService sendgrid.EmailService
	if cfg.SendGrid.APIKey != "" {
		emailService = sendgrid.NewEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	}

	publisher := events.NewPublisher(cfg.Kafka)
	cacheStore := cache.NewRedisCache(redisClient, &cfg.Cache)
	marketClient := marketapi.NewClient(cfg.MarketAPI, validator.New())
	stripeClient := stripe.NewStripeClient(cfg.Stripe.APIKey)

	productService := service.NewProductService(marketClient, cacheStore, cfg.Cache.DefaultTTL)
	productHandler := handlers.NewProductHandler(productService)
	cartService := service.NewCartService(cacheStore, productService, feeRate, cfg.Cache.CartTTL)
	cartHandler := handlers.NewCartHandler(cartService)
	orderService := service.NewOrderService(marketClient, cartService, stripeClient, publisher, cfg.Stripe.Currency)
	orderHandler := handlers.NewOrderHandler(orderService)
	chatService := service.NewChatService(adapter, archive, cartService, emailService, publisher)
	chatHandler := handlers.NewChatHandler(chatService)
	authMiddleware := middleware.NewAuthMiddleware([]byte(cfg.Security.JWTKey))
	rateLimiter := repository.NewRateLimitRepo(redisClient, cfg.RateConfig)

	healthChecker, err := health.NewHealthHandler(cfg, &health.Endpoints{Market: marketClient})
	if err != nil {
		slog.Error("❌ Error creating health checks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("storage initialized",
		slog.String("env", cfg.Env),
		slog.String("transport", cfg.Transport.Mode),
		slog.String("feeRate", feeRate.String()),
		slog.String("version", "1.0.0"))

	// Chat consumer loop
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := chatService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("❌ Chat consumer stopped", slog.String("error", err.Error()))
		}
	}()

	// Setup router
	routerMux := http.NewServeMux()
	routerMux.HandleFunc("GET /api/v1/products", authMiddleware.Authenticate(productHandler.ListProducts()))
	routerMux.HandleFunc("GET /api/v1/cart", authMiddleware.Authenticate(cartHandler.GetCart()))
	routerMux.HandleFunc("DELETE /api/v1/cart", authMiddleware.Authenticate(cartHandler.ClearCart()))
	routerMux.HandleFunc("GET /api/v1/cart/total", authMiddleware.Authenticate(cartHandler.GetTotal()))
	routerMux.HandleFunc("POST /api/v1/cart/items", authMiddleware.Authenticate(cartHandler.AddItem()))
	routerMux.HandleFunc("PUT /api/v1/cart/items/{productId}", authMiddleware.Authenticate(cartHandler.UpdateQuantity()))
	routerMux.HandleFunc("DELETE /api/v1/cart/items/{productId}", authMiddleware.Authenticate(cartHandler.RemoveItem()))
	routerMux.HandleFunc("POST /api/v1/chats", authMiddleware.Authenticate(chatHandler.OpenChat()))
	routerMux.HandleFunc("GET /api/v1/chats", authMiddleware.Authenticate(chatHandler.ListChats()))
	routerMux.HandleFunc("GET /api/v1/chats/{id}", authMiddleware.Authenticate(chatHandler.GetChat()))
	routerMux.HandleFunc("POST /api/v1/chats/{id}/offers", authMiddleware.Authenticate(middleware.RateLimit(rateLimiter, "offers", chatHandler.ProposeOffer())))
	routerMux.HandleFunc("POST /api/v1/chats/{id}/accept", authMiddleware.Authenticate(chatHandler.AcceptDeal()))
	routerMux.HandleFunc("POST /api/v1/chats/{id}/reject", authMiddleware.Authenticate(chatHandler.RejectDeal()))
	routerMux.HandleFunc("POST /api/v1/chats/{id}/messages", authMiddleware.Authenticate(middleware.RateLimit(rateLimiter, "messages", chatHandler.SendMessage())))
	routerMux.HandleFunc("GET /api/v1/orders", authMiddleware.Authenticate(orderHandler.ListOrders()))
	routerMux.HandleFunc("POST /api/v1/orders", authMiddleware.Authenticate(orderHandler.Checkout()))
	routerMux.HandleFunc("PUT /api/v1/orders/{id}", authMiddleware.Authenticate(orderHandler.UpdateOrder()))
	routerMux.HandleFunc("POST /api/v1/orders/{id}/cancel", authMiddleware.Authenticate(orderHandler.CancelOrder()))
	routerMux.Handle("GET /metrics", metrics.Handler())
	routerMux.Handle("GET /health", healthChecker.Handler())

	// Middleware chaining, metrics must wrap the mux directly to see the route pattern
	var handler http.Handler = routerMux
	handler = metrics.Middleware(handler)
	handler = middleware.Logging(handler)
	handler = otelhttp.NewHandler(handler, "agri-marketplace")

	// Setup http server
	server := http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	slog.Info("🚀 Server is starting...", slog.String("address", cfg.HTTPServer.Addr))

	go func() { // Starts the HTTP server in a new goroutine so it doesn't block the main thread.
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("❌ Failed to start server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	slog.Warn("🛑 Shutdown signal received. Preparing to stop the server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("⚠️ Server shutdown encountered an issue", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Server shut down gracefully. All connections closed.")
	}

	if err := adapter.Close(); err != nil {
		slog.Error("⚠️ Error closing chat transport", slog.String("error", err.Error()))
	}
	<-consumerDone

	if err := publisher.Close(); err != nil {
		slog.Error("⚠️ Error closing event publisher", slog.String("error", err.Error()))
	}

	if err := redisClient.Close(); err != nil {
		slog.Error("⚠️ Error closing redis connection", slog.String("error", err.Error()))
	}

	if err := repos.Close(); err != nil {
		slog.Error("⚠️ Error closing database connection", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Database connection closed")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("⚠️ Error flushing traces", slog.String("error", err.Error()))
	}
}
