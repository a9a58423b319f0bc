package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/conversation"
	"feedbackhub/internal/database"
	"feedbackhub/internal/email"
	"feedbackhub/internal/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Str("driver", database.DetectDriver(cfg.DatabaseURL)).Msg("Database connection established successfully")

	wc := database.NewWriteClientFromDB(db)
	if err := database.CreateTables(ctx, wc); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create tables")
	}

	threads, err := database.NewThreadStore(wc)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create thread store")
	}
	replies, err := database.NewReplyStore(wc)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create reply store")
	}
	projects, err := database.NewProjectStore(wc)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create project store")
	}

	rt, err := server.OpenRealtime(ctx, cfg, replies, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start realtime feed")
	}
	logger.Info().Str("backend", cfg.RealtimeBackend).Msg("Realtime feed started")

	opts := []conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithPublisher(rt.Publisher),
		conversation.WithDashboardURL(cfg.DashboardURL),
	}
	if cfg.SendGridAPIKey != "" {
		opts = append(opts, conversation.WithNotifier(email.NewEmailService(cfg.SendGridAPIKey, cfg.NotifyFromEmail)))
	} else {
		logger.Warn().Msg("SENDGRID_API_KEY not set, reply notifications disabled")
	}

	svc, err := conversation.NewService(threads, replies, projects, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create conversation service")
	}

	// Create and initialize server
	srv := server.New(cfg, db, logger, server.Services{
		Conversations: svc,
		Authorizer:    svc,
		Projects:      projects,
		Feed:          rt.Feed,
	})
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	// Ending the feed first lets open streams return before the server drains
	if err := rt.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close realtime feed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	svc.Wait()
	if err := db.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}
