// Command server starts the chatwave HTTP + websocket backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/cache"
	"github.com/pkondratev/chatwave/internal/chat"
	"github.com/pkondratev/chatwave/internal/config"
	"github.com/pkondratev/chatwave/internal/db"
	"github.com/pkondratev/chatwave/internal/middleware"
	"github.com/pkondratev/chatwave/internal/migrate"
	"github.com/pkondratev/chatwave/internal/realtime"
	"github.com/pkondratev/chatwave/internal/user"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	database, err := db.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer database.Close()
	logger.Info("connected to postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Accounts
	userRepo := user.NewRepository(database)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService, logger)

	// Chat persistence + realtime core
	chatRepo := chat.NewRepository(database)
	chatHandler := chat.NewHandler(chatRepo, logger)
	history := cache.NewHistory(logger, redisClient, chatRepo, cfg.HistoryLimit)

	hub := realtime.NewHub(logger, chatRepo, chatRepo, history, cfg.HistoryLimit)
	go hub.Run(ctx)
	wsHandler := realtime.NewHandler(hub, logger)

	auth := middleware.NewAuth(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/ws", wsHandler.ServeWs)
		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Post("/api/messages/read", chatHandler.MarkRead)
	})

	server := &http.Server{Addr: cfg.Addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
}
