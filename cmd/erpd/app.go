package main

import (
	"context"
	"net/http"
	"time"

	"github.com/buildcore/erp-core/internal/analytics"
	"github.com/buildcore/erp-core/internal/cache"
	"github.com/buildcore/erp-core/internal/config"
	"github.com/buildcore/erp-core/internal/database"
	"github.com/buildcore/erp-core/internal/handler"
	"github.com/buildcore/erp-core/internal/oidc"
	"github.com/buildcore/erp-core/internal/repository"
	"github.com/buildcore/erp-core/internal/seed"
	"github.com/buildcore/erp-core/internal/service"
	"github.com/buildcore/erp-core/internal/storage"
	"github.com/buildcore/erp-core/internal/tokens"
	"github.com/buildcore/erp-core/pkg/logger"
	"github.com/buildcore/erp-core/pkg/metrics"
	"github.com/buildcore/erp-core/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// app holds the wired dependencies of the HTTP server.
type app struct {
	router  *gin.Engine
	svc     service.Service
	closers []func(context.Context) error
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	started := time.Now()
	checks := map[string]handler.Check{}

	repo, err := openRepository(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	logger.Infof("storage backend: %s", repo.Backend())

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var svcOpts []service.Option
	var reportOpts []analytics.Option
	if rdb != nil && cfg.Cache.Enabled {
		rc := cache.NewReportCache(rdb, "", cfg.Cache.TTL)
		svcOpts = append(svcOpts, service.WithInvalidator(rc))
		reportOpts = append(reportOpts, analytics.WithCache(rc))
	}
	a.svc = service.New(repo, svcOpts...)
	checks["store"] = func(ctx context.Context) error {
		_, err := a.svc.Collections(ctx)
		return err
	}

	var objects seed.ObjectSource
	if cfg.MinIO.Enabled() {
		st, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("object storage unavailable: %v", err)
		} else {
			objects = st
			reportOpts = append(reportOpts, analytics.WithExporter(st, cfg.MinIO.PresignTTL))
		}
	}

	fixtures, err := seed.Load(ctx, cfg.Seed, objects)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if fixtures != nil {
		if _, err := seed.Apply(ctx, a.svc, fixtures); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend == "redis" {
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	hopts := []handler.Option{handler.WithReports(analytics.New(a.svc, reportOpts...))}
	if ver := buildVerifier(ctx, cfg, rdb); len(ver) > 0 {
		hopts = append(hopts, handler.WithWriteGuard(middleware.AuthMiddleware(ver)))
	} else {
		logger.Warnf("no token verifier configured: write routes are open")
	}
	handler.New(a.svc, hopts...).Register(r)
	handler.RegisterSwagger(r)
	handler.RegisterHealth(r, started, checks)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	a.router = r
	return a, nil
}

func openRepository(ctx context.Context, cfg *config.Config, a *app) (repository.Repository, error) {
	if !cfg.MongoDB.Enabled() {
		return repository.NewMemoryRepo(), nil
	}
	client, err := database.Connect(ctx, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Disconnect)
	return repository.NewMongoRepo(client.Database(cfg.MongoDB.Database)), nil
}

// buildVerifier collects every configured way to authenticate a write.
func buildVerifier(ctx context.Context, cfg *config.Config, rdb *redis.Client) middleware.MultiVerifier {
	var ver middleware.MultiVerifier
	if issuer := cfg.Keycloak.Issuer(); issuer != "" && cfg.Keycloak.ClientID != "" {
		v, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			ver = append(ver, v)
		}
	}
	if cfg.JWT.Secret != "" {
		v, err := tokens.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
		if err == nil {
			ver = append(ver, v.WithRevocations(tokens.NewRevocations(rdb)))
		}
	}
	if cfg.Keycloak.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		ver = append(ver, oidc.NewInsecureVerifier())
	}
	return ver
}

// cors sets permissive headers for browser clients and answers preflight requests.
func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
