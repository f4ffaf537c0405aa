package di

import (
	"context"
	"time"

	"zapgpt/backend/ai"
	"zapgpt/backend/internal/service"
	"zapgpt/backend/pkg/cache"
	"zapgpt/backend/pkg/config"
	"zapgpt/backend/pkg/jwt"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/pkg/secrets"
	"zapgpt/backend/shared/observability"
	"zapgpt/backend/shared/redis"
	"zapgpt/backend/whatsapp"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB                  *gorm.DB
	Config              *config.Config
	Logger              *logger.Logger
	JWTService          *jwt.Service
	Cache               service.Cache
	Secrets             *secrets.VaultManager
	Metrics             *observability.EngineMetrics
	UserService         *service.UserService
	BotService          *service.BotService
	ConversationService *service.ConversationService
	Router              *ai.Router
	Manager             *whatsapp.Manager
}

// New wires the application graph. transport is injected so tests can
// substitute a fake bridge.
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger, transport whatsapp.Transport) (*Container, error) {
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Redis when configured, in-process TTL cache otherwise.
	var svcCache service.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable, falling back to in-process cache", "addr", cfg.Redis.Addr, "error", err.Error())
		} else {
			svcCache = service.NewRedisCache(client, cfg.Cache.StatsTTL)
		}
	}
	if svcCache == nil {
		svcCache = service.NewMemoryCache(cache.New(cfg.Cache.MaxSize, time.Minute), cfg.Cache.StatsTTL)
	}

	vault, err := secrets.NewVaultManager(log)
	if err != nil {
		log.Warn("vault unavailable, shared credentials disabled", "error", err.Error())
		vault = nil
	}

	var metrics *observability.EngineMetrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewEngineMetrics()
	}

	userService := service.NewUserService(db, jwtService, svcCache)
	botService := service.NewBotService(db)
	conversationService := service.NewConversationService(db)
	engineStore := service.NewEngineStore(botService, userService, conversationService)

	router := ai.NewRouter(ai.RouterOptions{
		Greeting:        cfg.AI.Greeting,
		RunPollInterval: cfg.AI.RunPollInterval,
		RunMaxPolls:     cfg.AI.RunMaxPolls,
	})

	var secretSource whatsapp.SecretSource
	if vault != nil {
		secretSource = vault
	}

	manager := whatsapp.NewManager(transport, engineStore, router, secretSource, whatsapp.Config{
		BufferWindow:     cfg.WhatsApp.BufferWindow,
		MaxRetries:       cfg.WhatsApp.MaxRetries,
		SendDelayPerChar: cfg.WhatsApp.SendDelayPerChar,
		ApologyText:      cfg.WhatsApp.ApologyText,
	}, log, metrics)

	return &Container{
		DB:                  db,
		Config:              cfg,
		Logger:              log,
		JWTService:          jwtService,
		Cache:               svcCache,
		Secrets:             vault,
		Metrics:             metrics,
		UserService:         userService,
		BotService:          botService,
		ConversationService: conversationService,
		Router:              router,
		Manager:             manager,
	}, nil
}
