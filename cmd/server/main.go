package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/cache"
	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/database"
	"github.com/staylet/rental-booking-backend/internal/events"
	"github.com/staylet/rental-booking-backend/internal/handlers"
	"github.com/staylet/rental-booking-backend/internal/middleware"
	"github.com/staylet/rental-booking-backend/internal/services"
	"github.com/staylet/rental-booking-backend/pkg/jwt"
	"github.com/staylet/rental-booking-backend/pkg/payment"
	"github.com/staylet/rental-booking-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

const producerName = "rental-booking-backend"

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Staylet rental booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db, logger); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Repositories
	bookingRepository := database.NewBookingRepository(db.DB)
	listingRepository := database.NewListingRepository(db.DB)
	checkoutSessionRepository := database.NewCheckoutSessionRepository(db.DB)

	// Availability cache (Redis when configured)
	var availabilityCache cache.AvailabilityCache = cache.NopAvailabilityCache{}
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		availabilityCache = cache.NewRedisAvailabilityCache(rdb, cfg.Redis.CacheTTL)
		logger.WithField("addr", cfg.Redis.Addr).Info("Availability cache enabled")
	} else {
		logger.Info("Availability cache disabled (REDIS_ADDR not set)")
	}

	// Booking events (Kafka when configured)
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, producerName)
		logger.WithField("brokers", cfg.Kafka.Brokers).Info("Booking events enabled")
	} else {
		logger.Info("Booking events disabled (KAFKA_BROKERS not set)")
	}

	// Payment gateway
	var gateway payment.Gateway = payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:      cfg.Payment.SecretKey,
		PublishableKey: cfg.Payment.PublishableKey,
		WebhookSecret:  cfg.Payment.WebhookSecret,
	})
	gateway = payment.NewBreakerGateway(gateway, cfg.Payment.Timeout, logger)

	// SMS gateway
	var smsGateway sms.SMSGateway
	if cfg.SMS.Method == "url" {
		logger.Info("Using Dialog URL method (GET request with esmsqk)")
		smsGateway = sms.NewDialogURLGateway(cfg.SMS.ESMSQK, cfg.SMS.Mask)
	} else {
		logger.Info("Using Dialog API v2 method (POST with authentication)")
		smsGateway = sms.NewDialogGateway(sms.DialogConfig{
			APIURL:   cfg.SMS.APIURL,
			Username: cfg.SMS.Username,
			Password: cfg.SMS.Password,
			Mask:     cfg.SMS.Mask,
		})
	}
	if cfg.SMS.Mode != "production" {
		logger.Info("SMS Gateway in development mode (no actual SMS will be sent)")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	rateLimitService := services.NewRateLimitService(db, cfg.RateLimit)

	var auditService *services.AuditService
	if cfg.Security.EnableAuditLog {
		auditService = services.NewAuditService(db)
	}

	notificationService := services.NewNotificationService(smsGateway, cfg.SMS.Mode, logger)
	identityService := services.NewIdentityService(jwtService, bookingRepository, logger)
	availabilityService := services.NewAvailabilityService(bookingRepository, listingRepository, availabilityCache, logger)
	stayQuoter := services.NewStayQuoter(listingRepository, cfg.Booking)

	bookingService := services.NewBookingService(
		bookingRepository,
		listingRepository,
		identityService,
		availabilityService,
		stayQuoter,
		rateLimitService,
		auditService,
		notificationService,
		publisher,
		cfg.Booking,
		logger,
	)

	checkoutService := services.NewCheckoutService(
		gateway,
		bookingRepository,
		checkoutSessionRepository,
		availabilityService,
		stayQuoter,
		auditService,
		notificationService,
		publisher,
		cfg.Payment,
		logger,
	)

	expirationService := services.NewCheckoutExpirationService(checkoutSessionRepository, logger)
	cronService := services.NewCronService(expirationService, rateLimitService, auditService, cfg.Security.AuditRetentionDays, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Cron service started")

	logger.Info("Services initialized")

	// Initialize handlers
	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	listingHandler := handlers.NewListingHandler(listingRepository, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, availabilityService, logger)
	paymentHandler := handlers.NewPaymentHandler(checkoutService, identityService, logger)
	adminHandler := handlers.NewAdminHandler(cronService, logger)

	// Initialize Gin router
	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		listings := v1.Group("/listings")
		{
			listings.GET("", listingHandler.ListListings)
			listings.GET("/:id", listingHandler.GetListing)
		}

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", middleware.OptionalAuth(identityService), bookingHandler.CreateBooking)
			bookings.GET("/unavailable-dates/:listingId", bookingHandler.GetUnavailableDates)
			bookings.POST("/track", bookingHandler.TrackBooking)
			bookings.POST("/guest-cancel", bookingHandler.GuestCancelBooking)

			protected := bookings.Group("")
			protected.Use(middleware.AuthMiddleware(jwtService))
			{
				protected.GET("/my-bookings", bookingHandler.GetMyBookings)
				protected.PUT("/:id/cancel", bookingHandler.CancelBooking)
			}
		}

		payments := v1.Group("/payments")
		{
			payments.GET("/config", paymentHandler.GetConfig)
			payments.POST("/create-checkout-session", middleware.OptionalAuth(identityService), paymentHandler.CreateCheckoutSession)
			payments.POST("/verify-session", paymentHandler.VerifySession)
			payments.POST("/webhook", paymentHandler.Webhook)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService), middleware.RequireRole("admin"))
		{
			admin.GET("/cron/status", adminHandler.GetCronStatus)
			admin.POST("/cron/expire-checkouts", adminHandler.ExpireCheckouts)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping cron service...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	if err := publisher.Close(); err != nil {
		logger.WithError(err).Warn("Failed to flush booking events")
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
