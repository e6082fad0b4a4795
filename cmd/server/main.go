package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"profilesite/internal/config"
	"profilesite/internal/db"
	"profilesite/internal/handlers"
	"profilesite/internal/logger"
	"profilesite/internal/router"
	"profilesite/internal/services"
	"profilesite/internal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	// Initialize Database
	conn, err := db.Init(cfg)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("Failed to initialize database")
	}

	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		logger.L.Warn().Msg("ADMIN_EMAIL / ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	limiter := services.NewRateLimiter(cfg.RateLimitSweep)
	cache, err := utils.NewCache(500)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("Failed to create cache")
	}

	postStore := db.NewPostStore(conn)
	commentStore := db.NewCommentStore(conn)

	processor := services.NewImageProcessor(0)
	storage := services.NewImageStorage(cfg.UploadDir, cfg.UploadURLPrefix, processor)
	fetcher := services.NewRemoteFetcher(cfg.RemoteFetchTimeout)

	postService := services.NewPostService(postStore, cache)
	commentService := services.NewCommentService(commentStore, postStore, limiter, services.RateLimitConfig{
		Window:      cfg.CommentRateWindow,
		MaxRequests: cfg.CommentRateMax,
	})
	adminAuth := services.NewAdminAuth(cfg.AdminEmail, cfg.AdminPasswordHash)

	r := router.New(cfg, router.Handlers{
		Auth:     handlers.NewAuthHandler(adminAuth),
		Posts:    handlers.NewPostHandler(postService),
		Comments: handlers.NewCommentHandler(commentService),
		Images:   handlers.NewImageHandler(storage, fetcher, cfg.MaxUploadBytes),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.L.Info().Str("port", cfg.Port).Msg("profilesite server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error().Err(err).Msg("Server forced to shutdown")
	}

	limiter.Stop()
	if err := db.Close(conn); err != nil {
		logger.L.Error().Err(err).Msg("Failed to close database")
	}
	logger.L.Info().Msg("Server exited")
}
