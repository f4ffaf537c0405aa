package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zapgpt/backend/internal/api"
	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/config"
	"zapgpt/backend/pkg/di"
	apperrors "zapgpt/backend/pkg/errors"
	"zapgpt/backend/pkg/health"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/pkg/middleware"
	"zapgpt/backend/shared/observability"
	"zapgpt/backend/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.New()

	appLogger := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	logger.SetGlobal(appLogger)

	db, err := setupDatabase(cfg)
	if err != nil {
		appLogger.Error("Failed to set up database", "error", err.Error())
		os.Exit(1)
	}

	shutdownTracing := observability.SetupTracing("zapgpt-backend", appLogger)
	defer shutdownTracing()
	if cfg.Metrics.Enabled {
		observability.SetupMetrics(cfg.Metrics.Port, appLogger)
	}

	transport := whatsapp.NewBridgeTransport(cfg.WhatsApp.BridgeURL, appLogger)
	container, err := di.New(db, cfg, appLogger, transport)
	if err != nil {
		appLogger.Error("Failed to wire application", "error", err.Error())
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.RegisterCheck("database", func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	})

	engine := setupRouter(cfg, appLogger, container, checker)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		appLogger.Info("Server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server stopped unexpectedly", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("Shutting down")

	// Stop live sessions first so pending bursts are dropped cleanly,
	// then drain the HTTP server.
	shutdownSessions(container, appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", "error", err.Error())
	}
}

func setupDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Bot{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

func setupRouter(cfg *config.Config, appLogger *logger.Logger, container *di.Container, checker *health.Checker) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(apperrors.Recovery(appLogger))
	engine.Use(apperrors.ErrorHandler(appLogger))
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.Warn("Failed to set trusted proxies", "error", err.Error())
	}

	limiter := middleware.NewRateLimiter(appLogger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
	})

	authHandler := api.NewAuthHandler(container.UserService, appLogger)
	userHandler := api.NewUserHandler(container.UserService, appLogger)
	botHandler := api.NewBotHandler(container.BotService, container.UserService, container.ConversationService, container.Manager, appLogger)
	conversationHandler := api.NewConversationHandler(container.ConversationService, appLogger)

	engine.GET("/health", checker.Handler())

	apiGroup := engine.Group("/api")
	{
		auth := apiGroup.Group("/auth")
		auth.Use(limiter.Middleware())
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", api.AuthRequired(container.JWTService), authHandler.Me)

		protected := apiGroup.Group("")
		protected.Use(api.AuthRequired(container.JWTService))

		protected.GET("/stats", userHandler.Stats)
		protected.PATCH("/user/profile", userHandler.UpdateProfile)
		protected.PUT("/user/api-keys", userHandler.UpdateAPIKeys)

		protected.POST("/bots", botHandler.Create)
		protected.GET("/bots", botHandler.List)
		protected.GET("/bots/:id", botHandler.Get)
		protected.PATCH("/bots/:id", botHandler.Update)
		protected.DELETE("/bots/:id", botHandler.Delete)
		protected.POST("/bots/:id/connect", botHandler.Connect)
		protected.POST("/bots/:id/disconnect", botHandler.Disconnect)
		protected.GET("/bots/:id/events", botHandler.Events)
		protected.GET("/bots/:id/conversations", botHandler.Conversations)

		protected.GET("/conversations", conversationHandler.List)
		protected.GET("/conversations/:id/messages", conversationHandler.Messages)
	}

	engine.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 5 && c.Request.URL.Path[:5] == "/api/" {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found", "path": c.Request.URL.Path})
		}
	})

	return engine
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// shutdownSessions stops every running bot session and flips its flags
// offline so the dashboard does not show ghost connections after a
// restart.
func shutdownSessions(container *di.Container, appLogger *logger.Logger) {
	var bots []models.Bot
	if err := container.DB.Where("is_connected = ?", true).Find(&bots).Error; err != nil {
		appLogger.Warn("Failed to list connected bots during shutdown", "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, bot := range bots {
		if err := container.Manager.StopSession(ctx, bot.ID); err != nil {
			appLogger.Warn("Failed stopping session", "botID", bot.ID, "error", err.Error())
		}
		if err := container.BotService.UpdateFlags(bot.ID, false, false); err != nil {
			appLogger.Warn("Failed to persist offline flags", "botID", bot.ID, "error", err.Error())
		}
	}
}
