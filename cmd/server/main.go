package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sumire/channelsync/internal/config"
	"github.com/sumire/channelsync/internal/directory"
	"github.com/sumire/channelsync/internal/handler"
	"github.com/sumire/channelsync/internal/service"
	"github.com/sumire/channelsync/internal/store"
	"github.com/sumire/channelsync/internal/youtube"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	dir := directory.NewClient(cfg.BackendURL, cfg.BackendToken, nil)
	channelSvc := service.NewChannelService(st, dir)

	var (
		exchanger service.TokenExchanger
		refresher service.TokenRefresher
	)
	if cfg.DirectGoogle() {
		google := service.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
		exchanger = google
		refresher = google
		slog.Info("token exchange mode", "mode", "direct")
	} else {
		exchanger = service.NewBackendExchanger(dir)
		refresher = dir
		slog.Info("token exchange mode", "mode", "backend")
	}

	adapter := youtube.NewAdapter(channelSvc)
	refreshSvc := service.NewRefreshService(channelSvc, refresher)
	connectSvc := service.NewConnectService(channelSvc, exchanger, adapter, cfg.ConnectTimeout)

	channelHandler := handler.NewChannelHandler(channelSvc, refreshSvc, connectSvc, adapter, cfg.TokenExpiryLeeway)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return handler.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")
	api.GET("/oauth/callback", channelHandler.OAuthCallback)

	protected := api.Group("", handler.SessionAuth([]byte(cfg.JWTSecret)))
	protected.GET("/channels", channelHandler.List)
	protected.POST("/channels", channelHandler.Save)
	protected.DELETE("/channels/:id", channelHandler.Remove)
	protected.POST("/channels/authenticate", channelHandler.Authenticate)
	protected.POST("/channels/connect", channelHandler.Connect)
	protected.GET("/channels/connect/:state", channelHandler.ConnectWait)
	protected.POST("/channels/refresh", channelHandler.RefreshAll)
	protected.POST("/channels/:id/refresh", channelHandler.RefreshOne)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildStore selects the Postgres store when DATABASE_URL is set, otherwise
// the JSON file store.
func buildStore(cfg config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Info("using file store", "path", cfg.StorePath)
		return store.NewFileStore(cfg.StorePath), func() {}, nil
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pg, err := store.NewPostgresStore(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("using postgres store")
	return pg, func() { db.Close() }, nil
}
