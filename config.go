package flowengine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelauth/flowengine/token"
)

// CacheConfig controls the shared plan cache.
type CacheConfig struct {
	// Enabled toggles plan caching entirely. Disabled means every plan
	// call resolves directly; correct but slower.
	Enabled bool
	// TTL bounds the staleness window when an invalidation event is lost.
	TTL time.Duration
	// KeyPrefix namespaces plan cache keys. Every flow's entries live
	// under "<KeyPrefix>:<flow-id>".
	KeyPrefix string
}

// PlannerConfig controls plan materialization.
type PlannerConfig struct {
	// FingerprintAttributes is the whitelist of request attribute keys
	// that feed the cache fingerprint. Attributes not listed here never
	// affect cache identity; a policy result that consulted an unlisted
	// key is treated as non-cacheable, so the plan it gated is resolved
	// fresh on every call instead of being served stale.
	FingerprintAttributes []string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking the
	// planning path. Dropped counts are visible via [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// CorrelationConfig controls the request correlation surface.
type CorrelationConfig struct {
	// Header is the response header the middleware writes the request ID
	// to.
	Header string
}

// TokenConfig controls signed plan continuation tokens. Tokens are off
// until a secret is configured.
type TokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod token.SigningMethod
	Secret        []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Config is the complete engine configuration. Zero value is not usable;
// start from the defaults applied by [New] and override through
// [Builder.WithConfig].
type Config struct {
	Cache       CacheConfig
	Planner     PlannerConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Correlation CorrelationConfig
	Token       TokenConfig
}

// DefaultCorrelationHeader is the response header carrying the request ID.
const DefaultCorrelationHeader = "X-Flowengine-ID"

// DefaultConfig returns the recommended preset: caching on with a five
// minute TTL, audit on with drop-if-full shedding, metrics on,
// continuation tokens off. Callers adjust fields before passing the
// result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Enabled:   true,
			TTL:       5 * time.Minute,
			KeyPrefix: "fp",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Correlation: CorrelationConfig{
			Header: DefaultCorrelationHeader,
		},
		Token: TokenConfig{
			TTL:           10 * time.Minute,
			SigningMethod: token.MethodHS256,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return errors.New("cache TTL must be positive when caching is enabled")
		}
		if c.Cache.KeyPrefix == "" {
			return errors.New("cache key prefix must not be empty")
		}
		if strings.ContainsAny(c.Cache.KeyPrefix, "*? ") {
			return errors.New("cache key prefix must not contain glob or space characters")
		}
	}

	seen := make(map[string]struct{}, len(c.Planner.FingerprintAttributes))
	for _, key := range c.Planner.FingerprintAttributes {
		if key == "" {
			return errors.New("fingerprint attribute keys must not be empty")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate fingerprint attribute %q", key)
		}
		seen[key] = struct{}{}
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}

	if c.Correlation.Header == "" {
		return errors.New("correlation header must not be empty")
	}

	if c.Token.Enabled {
		if len(c.Token.Secret) == 0 {
			return errors.New("continuation tokens require a signing secret")
		}
		if c.Token.TTL <= 0 {
			return errors.New("continuation token TTL must be positive")
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Planner.FingerprintAttributes = append([]string(nil), cfg.Planner.FingerprintAttributes...)
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
