package flowengine

import (
	"errors"

	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/model"
)

var (
	// ErrEngineNotReady is returned when an Engine method runs before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNilRequest is returned when a planning call receives no request.
	ErrNilRequest = errors.New("nil plan request")
	// ErrFlowNotFound is returned for unknown flow slugs or IDs.
	ErrFlowNotFound = model.ErrFlowNotFound
	// ErrStageNotFound marks a dangling stage reference. The resolver
	// skips such bindings with a warning, so planning callers only see it
	// from provider-level lookups.
	ErrStageNotFound = model.ErrStageNotFound
	// ErrCacheUnavailable wraps cache store failures. Planning falls back
	// to direct resolution, so callers observe it only from Health.
	ErrCacheUnavailable = cache.ErrUnavailable
	// ErrTokensDisabled is returned by continuation token methods when no
	// token signing secret is configured.
	ErrTokensDisabled = errors.New("continuation tokens disabled")
)
