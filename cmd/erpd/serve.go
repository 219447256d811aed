package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/buildcore/erp-core/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Configuration comes from the environment and an optional .env file:
- MONGODB_URI selects MongoDB; without it data lives in memory
- REDIS_HOST enables the report cache and the redis rate limiter
- KEYCLOAK_URL/KEYCLOAK_REALM/KEYCLOAK_CLIENT_ID or JWT_SECRET protect write routes
- SEED_SOURCE (none, demo, file, minio) loads fixtures at startup`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	defer func() { _ = logger.Sync() }()
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v keycloak=%v jwt_secret_set=%v",
		cfg.MongoDB.Enabled(), cfg.Redis.Enabled(), cfg.MinIO.Enabled(), cfg.Keycloak.Issuer() != "", cfg.JWT.Secret != "")
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("starting erpd on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		a.Close(sctx)
		return err
	})
	return g.Wait()
}
