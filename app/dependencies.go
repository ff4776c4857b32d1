package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/imagegen-gateway/config"
	"github.com/upb/imagegen-gateway/repositories"
	"github.com/upb/imagegen-gateway/repositories/memory"
	"github.com/upb/imagegen-gateway/repositories/postgres"
	redisrepo "github.com/upb/imagegen-gateway/repositories/redis"
	"github.com/upb/imagegen-gateway/repositories/sqlite"
	"github.com/upb/imagegen-gateway/services/dispatcher"
	"github.com/upb/imagegen-gateway/services/editing"
	"github.com/upb/imagegen-gateway/services/providers"
	"github.com/upb/imagegen-gateway/services/providers/gemini"
	"github.com/upb/imagegen-gateway/services/providers/huggingface"
	"github.com/upb/imagegen-gateway/services/providers/openrouter"
	"github.com/upb/imagegen-gateway/services/providers/replicate"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  repositories.UsageRepository

	// Provider adapters by kind
	Registry *providers.Registry

	// Services
	Dispatcher *dispatcher.Dispatcher
	Editing    *editing.Service
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	store, err := OpenUsageStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage store: %w", err)
	}
	deps.Store = store

	if err := deps.initProviders(ctx, cfg); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.Editing = editing.NewService(deps.Dispatcher, logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("usage_store", cfg.UsageStore.Backend),
		zap.Strings("providers", deps.Dispatcher.Providers()))
	return deps, nil
}

// OpenUsageStore opens the usage repository selected by USAGE_STORE
func OpenUsageStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.UsageRepository, error) {
	switch cfg.UsageStore.Backend {
	case config.StoreMemory:
		logger.Warn("using in-memory usage store, counters are lost on restart")
		return memory.NewUsageRepository(), nil

	case config.StoreSQLite:
		return sqlite.Open(cfg.UsageStore.SQLitePath, logger)

	case config.StorePostgres:
		factory, err := postgres.NewRepositoryFactory(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository factory: %w", err)
		}
		logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
		return factory.NewUsageRepository(), nil

	case config.StoreRedis:
		return redisrepo.Connect(ctx, cfg.Redis, cfg.UsageStore.Retention(), logger)

	default:
		return nil, fmt.Errorf("unknown usage store %q", cfg.UsageStore.Backend)
	}
}

// NewRegistry returns a registry with every built-in provider kind
func NewRegistry() (*providers.Registry, error) {
	registry := providers.NewRegistry()

	factories := map[string]providers.Factory{
		config.ProviderOpenRouter:  openrouter.Factory,
		config.ProviderGemini:      gemini.Factory,
		config.ProviderHuggingFace: huggingface.Factory,
		config.ProviderReplicate:   replicate.Factory,
	}
	for name, factory := range factories {
		if err := registry.Register(name, factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// initProviders builds one adapter per configured provider and the
// dispatcher that rotates over them
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config) error {
	registry, err := NewRegistry()
	if err != nil {
		return err
	}
	d.Registry = registry

	var members []dispatcher.Member
	for _, pc := range cfg.Providers.Enabled() {
		adapter, err := registry.Build(adapterConfig(pc))
		if err != nil {
			return err
		}
		members = append(members, dispatcher.Member{
			Spec: dispatcher.ProviderSpec{
				Name:        pc.Name,
				BaseURL:     pc.BaseURL,
				Model:       pc.Model,
				Credentials: pc.APIKeys,
				DailyLimit:  pc.DailyLimit,
			},
			Adapter: adapter,
		})
		d.Logger.Info("provider registered",
			zap.String("provider", pc.Name),
			zap.String("model", pc.Model),
			zap.Int("credentials", len(pc.APIKeys)),
			zap.Int("daily_limit", pc.DailyLimit))
	}

	if len(members) == 0 {
		d.Logger.Warn("no image providers configured")
	}

	loc, err := time.LoadLocation(cfg.Dispatch.Timezone)
	if err != nil {
		return fmt.Errorf("invalid usage timezone: %w", err)
	}

	d.Dispatcher, err = dispatcher.New(ctx, members, d.Store, d.Logger,
		dispatcher.WithLocation(loc),
		dispatcher.WithMaxAttempts(cfg.Dispatch.MaxAttempts),
		dispatcher.WithCallTimeout(cfg.Dispatch.CallTimeout),
	)
	return err
}

// adapterConfig translates a provider's settings into adapter configuration
func adapterConfig(pc config.ProviderConfig) providers.ProviderConfig {
	ac := providers.DefaultProviderConfig()
	ac.Name = pc.Name
	ac.BaseURL = pc.BaseURL
	ac.Model = pc.Model
	if pc.Timeout > 0 {
		ac.Timeout = pc.Timeout
	}
	if pc.PollInterval > 0 {
		ac.PollInterval = pc.PollInterval
	}
	if pc.MaxPolls > 0 {
		ac.MaxPolls = pc.MaxPolls
	}
	if pc.Referer != "" {
		ac.Headers["HTTP-Referer"] = pc.Referer
	}
	if pc.Title != "" {
		ac.Headers["X-Title"] = pc.Title
	}
	return ac
}

// StartBackground launches the usage cleanup worker; it stops with ctx
func (d *Dependencies) StartBackground(ctx context.Context) {
	go d.Dispatcher.StartCleanupWorker(ctx, d.Config.UsageStore.CleanupInterval, d.Config.UsageStore.Retention())
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close usage store: %w", err))
		} else {
			d.Logger.Info("usage store closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
