package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"guestboard/internal/app"
	"guestboard/internal/board"
	"guestboard/internal/config"
	"guestboard/internal/identity"
	"guestboard/internal/kv"
	"guestboard/internal/throttle"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	store, err := kv.NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer store.Close()

	ledger := board.New(store, board.Options{
		AuthorPrefix:         cfg.AuthorPrefix,
		MaxLength:            cfg.MaxCommentLength,
		MaxRunLength:         cfg.MaxRunLength,
		MaxPageLimit:         cfg.MaxPageLimit,
		AdminSecret:          cfg.AdminSecret,
		ReleaseClaimOnDelete: cfg.ReleaseClaimOnDelete,
	})
	gate := throttle.New(store, throttle.Options{
		Password:         cfg.BoardPassword,
		PasswordHash:     cfg.BoardPasswordHash,
		AdminSecret:      cfg.AdminSecret,
		Warn1:            cfg.Warn1,
		Warn2:            cfg.Warn2,
		BanAt:            cfg.BanAt,
		BanDuration:      cfg.BanDuration,
		FailureRetention: cfg.FailureRetention,
	})
	hasher := identity.NewHasher(cfg.IdentitySalt)

	httpServer := app.NewHTTPServer(ledger, gate, hasher, cfg, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("guestboard API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
