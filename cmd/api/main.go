package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phantom-ledger/config"
	httpHandler "phantom-ledger/internal/adapter/http/handler"
	"phantom-ledger/internal/bootstrap"
	"phantom-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("PWL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("settlement", cfg.Settlement.Transport).
		Msg("Starting Phantom Wallet Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise ledger")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown left resources open")
		}
	}()

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:          app.Auth,
		WalletSvc:        app.Wallets,
		LedgerSvc:        app.Ledger,
		PaymentSvc:       app.Router,
		UpgradeSvc:       app.Upgrades,
		ReportingSvc:     app.Reporting,
		BusinessRepo:     app.Repos.Businesses,
		EncSvc:           app.Encryption,
		SigSvc:           app.Signature,
		NonceStore:       app.NonceStore,
		TokenSvc:         app.Tokens,
		RateLimiter:      app.RateLimits,
		AuditSvc:         app.Audit,
		Metrics:          app.Metrics,
		Money:            app.Money,
		KYCWebhookSecret: cfg.KYC.WebhookSecret,
		HealthCheckers:   app.HealthCheckers,
		Logger:           log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		poll(gctx, cfg.Settlement.PollInterval, logger.Component(log, "settlement-worker"), "settlement retry", app.Settlement.RetryDue)
		return nil
	})

	g.Go(func() error {
		poll(gctx, cfg.Upgrade.PollInterval, logger.Component(log, "upgrade-worker"), "upgrade sweep", app.Upgrades.RunPending)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server exited")
}

// poll runs fn every interval until ctx ends. A failed run is logged and
// retried on the next tick.
func poll(ctx context.Context, interval time.Duration, log zerolog.Logger, name string, fn func(context.Context) (int, error)) {
	if interval <= 0 {
		log.Warn().Str("worker", name).Msg("worker disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := fn(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("worker", name).Msg("worker run failed")
				continue
			}
			if n > 0 {
				log.Info().Str("worker", name).Int("processed", n).Msg("worker run finished")
			}
		}
	}
}
