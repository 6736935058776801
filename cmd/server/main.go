package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jafarshop/sellerhub/internal/api"
	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/crypto"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/internal/metrics"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/internal/repository/memory"
	"github.com/jafarshop/sellerhub/internal/repository/postgres"
	"github.com/jafarshop/sellerhub/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting SellerHub server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
	)

	cipher, err := crypto.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		logger.Fatal("Invalid TOKEN_ENCRYPTION_KEY", zap.Error(err))
	}
	if cipher == nil && cfg.Storage == "postgres" {
		logger.Warn("TOKEN_ENCRYPTION_KEY not set: marketplace tokens are stored unencrypted")
	}

	repos, db, err := openStorage(cfg, cipher, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	httpClient := &http.Client{Timeout: cfg.OAuth.HTTPTimeout}
	registry, err := marketplace.NewRegistry(cfg, marketplace.Options{HTTPClient: httpClient, Logger: logger})
	if err != nil {
		logger.Fatal("Failed to configure marketplaces", zap.Error(err))
	}
	platforms := registry.Platforms()
	if len(platforms) == 0 {
		logger.Warn("No marketplace credentials configured: integration routes will answer 404")
	}

	brokers := service.NewBrokers(registry, repos.BusinessAccount, service.BrokerOptions{
		HTTPClient:    httpClient,
		RefreshWindow: cfg.OAuth.RefreshWindow,
		Metrics:       m,
		Logger:        logger,
	})
	flow := service.NewOAuthFlow(brokers, repos.OAuthState, service.OAuthFlowConfig{
		StateTTL:         cfg.OAuth.StateTTL,
		AllowedRedirects: cfg.OAuth.AllowedRedirects,
	}, m, logger)
	seller := service.NewSellerService(brokers, repos, logger)
	vip, err := service.NewVipService(domain.DefaultVipTiers(), repos, logger)
	if err != nil {
		logger.Fatal("Invalid VIP tier table", zap.Error(err))
	}

	maintenance, err := service.NewMaintenance(flow, brokers, repos.Idempotency, logger)
	if err != nil {
		logger.Fatal("Failed to schedule maintenance jobs", zap.Error(err))
	}

	router := api.NewRouter(cfg, repos, api.Services{
		Flow:     flow,
		Seller:   seller,
		Vip:      vip,
		Metrics:  m,
		Gatherer: reg,
	}, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	maintenance.Start()

	platformNames := make([]string, 0, len(platforms))
	for _, p := range platforms {
		platformNames = append(platformNames, string(p))
	}
	logger.Info("Server started successfully",
		zap.String("address", srv.Addr),
		zap.Strings("platforms", platformNames),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	select {
	case <-maintenance.Stop().Done():
	case <-ctx.Done():
		logger.Warn("Maintenance jobs still running at shutdown")
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// openStorage returns the repositories for STORAGE_DRIVER. The database
// handle is nil for in-memory storage.
func openStorage(cfg *config.Config, cipher *crypto.TokenCipher, logger *zap.Logger) (*repository.Repositories, *sql.DB, error) {
	if cfg.Storage == "memory" {
		logger.Warn("Using in-memory storage: tenants and connected shops are lost on restart")
		repos := memory.NewRepositories()
		if cfg.DevTenant.APIKey == "" {
			logger.Warn("DEV_TENANT_API_KEY is not set: tenant routes will answer 401")
			return repos, nil, nil
		}
		tenant, err := repository.SeedTenant(context.Background(), repos.Tenant, cfg.DevTenant.Name, cfg.DevTenant.APIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed dev tenant: %w", err)
		}
		logger.Info("Seeded dev tenant", zap.String("tenant_id", tenant.ID.String()), zap.String("name", tenant.Name))
		return repos, nil, nil
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}

	return postgres.NewRepositories(db, cipher, logger), db, nil
}
