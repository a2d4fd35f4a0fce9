package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"carvalue-api/internal/app"
	"carvalue-api/internal/config"
	"carvalue-api/internal/handler"
	"carvalue-api/internal/logging"
	"carvalue-api/internal/middleware"
	"carvalue-api/internal/router"
)

func main() {
	cfg := config.MustLoad()

	logger, err := logging.New(cfg.App.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	logger.Info(ctx, "starting", "service", cfg.App.Name, "version", cfg.App.Version, "environment", cfg.App.Environment)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn(ctx, "error during close", "error", err)
		}
	}()

	a.Cleanup.Start()

	cacheType := "none"
	if a.Cache != nil {
		cacheType = cfg.Cache.Type
	}

	r := router.New(router.Config{
		Handler:       handler.New(cfg.App.Name, cfg.App.Version, a.Checks...),
		IntakeHandler: handler.NewIntakeHandler(a.Machine),
		AdminHandler:  handler.NewAdminHandler(a.Listings, a.Cleanup, a.Cache, cfg.ListingDB.Type, cacheType),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:     cfg.App.APIKeys,
			PublicPaths: middleware.DefaultPublicPaths,
		}),
		Logger: logger,
	})
	if len(cfg.App.APIKeys) == 0 {
		logger.Warn(ctx, "API_KEYS is empty, authentication is disabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error(ctx, "server error", "error", err)
	}
	logger.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown error", "error", err)
	}

	logger.Info(ctx, "server stopped")
}
