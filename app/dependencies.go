package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/config"
	"github.com/upb/nimbus-copilot/internal/observability"
	"github.com/upb/nimbus-copilot/services/completion"
	"github.com/upb/nimbus-copilot/services/providers"
	"github.com/upb/nimbus-copilot/services/providers/bedrock"
	"github.com/upb/nimbus-copilot/services/providers/friendli"
	"github.com/upb/nimbus-copilot/services/providers/mock"
	"github.com/upb/nimbus-copilot/services/routing"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.PrometheusMetrics

	// Providers in fallback order
	Friendli *friendli.Adapter
	Bedrock  *bedrock.Adapter

	// Routing
	Policy *routing.Policy
	Stats  *completion.StatsAggregator
	Router *completion.Router
}

// Option customises dependency construction
type Option func(*options)

type options struct {
	friendliOpts []friendli.Option
	bedrockOpts  []bedrock.Option
}

// WithFriendliOptions passes options to the Friendli adapter
func WithFriendliOptions(opts ...friendli.Option) Option {
	return func(o *options) {
		o.friendliOpts = append(o.friendliOpts, opts...)
	}
}

// WithBedrockOptions passes options to the Bedrock adapter
func WithBedrockOptions(opts ...bedrock.Option) Option {
	return func(o *options) {
		o.bedrockOpts = append(o.bedrockOpts, opts...)
	}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewPrometheusMetrics()
	}

	// Initialize providers
	if err := deps.initProviders(ctx, cfg, o); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Initialize router
	deps.initRouter(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initProviders builds the provider adapters from configuration
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config, o *options) error {
	friendliCfg := providers.Config{
		Enabled: cfg.Providers.Friendli.Enabled,
		APIKey:  cfg.Providers.Friendli.Token,
		BaseURL: cfg.Providers.Friendli.BaseURL,
		Model:   cfg.Providers.Friendli.Model,
	}
	if team := cfg.Providers.Friendli.Team; team != "" {
		friendliCfg.Headers = map[string]string{friendli.TeamHeader: team}
	}
	d.Friendli = friendli.NewAdapter(friendliCfg, o.friendliOpts...)

	adapter, err := bedrock.NewAdapter(ctx, bedrock.Config{
		Enabled:         cfg.Providers.Bedrock.Enabled,
		Region:          cfg.Providers.Bedrock.Region,
		Model:           cfg.Providers.Bedrock.Model,
		AccessKey:       cfg.Providers.Bedrock.AccessKey,
		SecretKey:       cfg.Providers.Bedrock.SecretKey,
		UseDefaultChain: cfg.Providers.Bedrock.UseDefaultChain,
	}, o.bedrockOpts...)
	if err != nil {
		return fmt.Errorf("failed to create bedrock adapter: %w", err)
	}
	d.Bedrock = adapter

	d.Logger.Info("providers initialized",
		zap.Bool("friendli_configured", d.Friendli.Configured()),
		zap.Bool("bedrock_configured", d.Bedrock.Configured()),
		zap.String("bedrock_region", d.Bedrock.Region()),
		zap.String("bedrock_credentials", bedrockCredentialSource(cfg.Providers.Bedrock)))

	return nil
}

func bedrockCredentialSource(cfg config.BedrockConfig) string {
	switch {
	case cfg.HasStaticCredentials():
		return "static"
	case cfg.UseDefaultChain:
		return "default_chain"
	default:
		return "none"
	}
}

// initRouter builds the fallback policy and the completion router
func (d *Dependencies) initRouter(cfg *config.Config) {
	d.Policy = routing.NewPolicy(d.Logger, mock.NewAdapter(), d.Friendli, d.Bedrock)
	if len(d.Policy.Providers()) == 0 {
		d.Logger.Warn("no LLM providers configured, all completions will be degraded")
	}

	d.Stats = completion.NewStatsAggregator()

	var routerOpts []completion.Option
	if d.Metrics != nil {
		routerOpts = append(routerOpts, completion.WithMetrics(d.Metrics))
	}

	d.Router = completion.NewRouter(d.Policy, d.Stats, completion.Config{
		DefaultTimeout: cfg.Router.DefaultTimeout,
		MaxTimeout:     cfg.Router.MaxTimeout,
	}, d.Logger, routerOpts...)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	stats := d.Router.Stats()
	d.Logger.Info("final router statistics",
		zap.Int64("total_calls", stats.TotalCalls),
		zap.Int64("degraded_calls", stats.DegradedCalls),
		zap.Int64("cancelled_calls", stats.CancelledCalls))

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
