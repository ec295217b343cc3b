// Command dramaload runs the Telegram bot that fetches streaming-video
// download links, solving the grid-image challenge in a headless browser with
// the operator's help, plus a small operational HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/api/handlers"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/bot"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/chat"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/config"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/logging"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/scrape"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/store"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/version"
)

func main() {
	_ = godotenv.Load()

	logger := logging.SetDefault()
	cfg := config.Load()

	logger.Info("starting dramaload", "version", version.Get().String(), "port", cfg.Port)

	if cfg.TelegramToken == "" {
		logger.Error("TELEGRAM_API_KEY is not set")
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions surviving from a previous process have no browser behind them.
	if err := st.ClearSessions(ctx); err != nil {
		logger.Error("failed to clear stale sessions", "error", err)
		os.Exit(1)
	}

	tg, err := chat.NewTelegram(cfg.TelegramToken, logger)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	resolver := scrape.New(cfg.BaseURL, logger)
	b := bot.New(tg, st, resolver, cfg, logger)

	srv := newStatusServer(cfg, st)
	go func() {
		logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", "error", err)
		}
	}()

	// Blocks until a signal arrives, then waits for in-flight sessions.
	b.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func newStatusServer(cfg *config.Config, st *store.Store) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(60, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("Dramaload", version.Get().Version)
	humaConfig.Info.Description = "Operational status for the dramaload bot"
	api := humachi.New(r, humaConfig)

	healthHandler := handlers.NewHealthHandler(st)
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health and active session count",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*handlers.HealthOutput, error) {
		resp := healthHandler.Handle(ctx)
		return &handlers.HealthOutput{Body: *resp}, nil
	})

	sessionsHandler := handlers.NewSessionsHandler(st)
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
		Description: "Returns the live session registry",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *struct{}) (*handlers.SessionsOutput, error) {
		resp, err := sessionsHandler.Handle(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list sessions", err)
		}
		return &handlers.SessionsOutput{Body: *resp}, nil
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
