package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bluecarbon-registry/config"
	"bluecarbon-registry/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("BCR_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("ledger", cfg.Ledger.Driver).
		Bool("postgres", cfg.Database.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting Blue Carbon Registry")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise registry")
	}
	if err := a.start(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start anchoring")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: a.router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := a.shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Anchoring shutdown incomplete")
	}

	log.Info().Msg("Server exited")
}
