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
	"github.com/lmittmann/tint"

	"github.com/sumire/triage/internal/analyzer"
	"github.com/sumire/triage/internal/config"
	"github.com/sumire/triage/internal/handler"
	"github.com/sumire/triage/internal/repository"
	"github.com/sumire/triage/internal/service"
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

	initLogger(cfg.Debug)

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := repository.Migrate(context.Background(), db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("database ready")

	ticketRepo := repository.NewTicketRepository(db)
	resultRepo := repository.NewResultRepository(db)

	triageAnalyzer, err := analyzer.New(analyzer.Config{
		APIKey:        cfg.AnthropicAPIKey,
		Model:         cfg.AnthropicModel,
		PromptVersion: cfg.PromptVersion,
		PromptsDir:    cfg.PromptsDir,
		Timeout:       cfg.AnalyzeTimeout,
	})
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}

	ticketSvc := service.NewTicketService(ticketRepo, resultRepo, triageAnalyzer)
	ticketHandler := handler.NewTicketHandler(ticketSvc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(cfg.Debug)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(handler.RequestLogger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	ticketHandler.Register(e.Group("/api/v1"))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     e,
		ReadTimeout: 10 * time.Second,
		// Processing blocks the request for up to three analyzer attempts
		// plus backoff, so the write timeout must outlast that schedule.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
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

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// initLogger installs the process-wide slog handler: colorized console output
// in debug mode, JSON in production.
func initLogger(debug bool) {
	var h slog.Handler
	if debug {
		h = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.DateTime,
		})
	} else {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(h))
}
