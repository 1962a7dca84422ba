package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"diary-client/internal/config"
	"diary-client/internal/domain"
	apihttp "diary-client/internal/http"
	"diary-client/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	users := service.NewUserDirectory(logger)
	seeds, err := cfg.ParseStubUsers()
	if err != nil {
		logger.Fatal("stub users", zap.Error(err))
	}
	for _, u := range seeds {
		if _, err := users.CreateUser(ctx, service.CreateUserInput{
			Email:    u.Email,
			Password: u.Password,
			Name:     u.Name,
			Role:     domain.Role(u.Role),
		}); err != nil {
			logger.Fatal("seed user", zap.String("email", u.Email), zap.Error(err))
		}
	}
	if len(seeds) == 0 {
		logger.Warn("no STUB_USERS configured, every login will fail")
	}

	var (
		revoked service.RevokedTokenStore
		limiter service.LoginRateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			revoked = service.NewRedisRevokedTokenStore(redisClient)
			limiter = service.NewRedisLoginRateLimiter(redisClient, cfg.LoginRateWindow, cfg.LoginRateMax)
		}
		cancel()
	}

	if limiter == nil {
		limiter = service.NewMemoryLoginRateLimiter(cfg.LoginRateWindow, cfg.LoginRateMax)
	}

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		revoked,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	authHandler := apihttp.NewAuthHandler(logger, users, jwtSvc, limiter)
	router := apihttp.NewRouter(logger, authHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting stub api", zap.String("port", cfg.HTTPPort), zap.Int("users", len(seeds)))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
