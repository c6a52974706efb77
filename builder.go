package flowengine

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/events"
	"github.com/kestrelauth/flowengine/internal/invalidate"
	internalmetrics "github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/plan"
	"github.com/kestrelauth/flowengine/internal/resolve"
	"github.com/kestrelauth/flowengine/token"
)

// Builder wires an [Engine]. Construction is allocation-only; no I/O
// happens until the engine serves its first call.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	provider  FlowProvider
	auditSink AuditSink
	logger    zerolog.Logger
	hasLogger bool

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis client backing the plan cache. Without
// one the engine falls back to a process-local cache, which is correct
// but not shared across workers.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithProvider sets the flow configuration provider. Required.
func (b *Builder) WithProvider(p FlowProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the diagnostic logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the plan latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the wiring and constructs the engine. A builder builds
// at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("flow provider required")
	}

	var store cache.Store
	if b.redis != nil {
		store = cache.NewRedisStore(b.redis)
	} else {
		store = cache.NewMemoryStore()
	}

	logger := zerolog.Nop()
	if b.hasLogger {
		logger = b.logger
	}

	engine := &Engine{
		config:   cfg,
		provider: b.provider,
		cache:    store,
		log:      logger,
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		bus: events.NewBus(),
	}

	resolver := resolve.New(resolve.Deps{
		Provider:              b.provider,
		Audit:                 engine.emitAudit,
		Metrics:               engine.metrics,
		Log:                   logger,
		FingerprintAttributes: cfg.Planner.FingerprintAttributes,
	})

	engine.planner = plan.New(plan.Deps{
		Cache:                 store,
		Resolver:              resolver,
		Audit:                 engine.emitAudit,
		Metrics:               engine.metrics,
		Log:                   logger,
		CacheEnabled:          cfg.Cache.Enabled,
		TTL:                   cfg.Cache.TTL,
		KeyPrefix:             cfg.Cache.KeyPrefix,
		FingerprintAttributes: cfg.Planner.FingerprintAttributes,
	})

	engine.invalidator = invalidate.New(invalidate.Deps{
		Cache:     store,
		Provider:  b.provider,
		Audit:     engine.emitAudit,
		Metrics:   engine.metrics,
		Log:       logger,
		KeyPrefix: cfg.Cache.KeyPrefix,
	})
	engine.bus.Subscribe(engine.invalidator.HandleMutation)

	if cfg.Token.Enabled {
		manager, err := token.NewManager(token.Config{
			TTL:           cfg.Token.TTL,
			SigningMethod: cfg.Token.SigningMethod,
			Secret:        cfg.Token.Secret,
			PublicKey:     cfg.Token.PublicKey,
			Issuer:        cfg.Token.Issuer,
			Leeway:        cfg.Token.Leeway,
		})
		if err != nil {
			return nil, err
		}
		engine.tokens = manager
	}

	// A memory provider without an explicit notifier reports its writes
	// straight to this engine's invalidator.
	if mp, ok := b.provider.(*MemoryProvider); ok {
		mp.BindNotifier(engine.NotifyMutation)
	}

	b.built = true

	return engine, nil
}
