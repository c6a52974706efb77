package flowengine

import (
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/correlation"
	"github.com/kestrelauth/flowengine/internal/events"
	internalmetrics "github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/model"
	"github.com/kestrelauth/flowengine/internal/policy"
)

// Flow is an ordered, administrator-defined authentication or enrollment
// sequence.
type Flow = model.Flow

// Stage is a reusable step within a flow.
type Stage = model.Stage

// StageBinding is the ordered, conditionally-gated attachment of a Stage
// to a Flow.
type StageBinding = model.StageBinding

// PolicyBinding attaches one policy or direct grant to a stage binding.
type PolicyBinding = model.PolicyBinding

// Plan is the materialized, ordered stage list for one flow/request
// combination.
type Plan = model.Plan

// StageRef is one executable step inside a Plan.
type StageRef = model.StageRef

// FlowDesignation declares what a flow is used for.
type FlowDesignation = model.FlowDesignation

// Flow designations.
const (
	DesignationAuthentication     = model.DesignationAuthentication
	DesignationEnrollment         = model.DesignationEnrollment
	DesignationRecovery           = model.DesignationRecovery
	DesignationInvalidation       = model.DesignationInvalidation
	DesignationStageConfiguration = model.DesignationStageConfiguration
)

// Stage component slugs of the built-in stage kinds.
const (
	ComponentIdentification        = model.ComponentIdentification
	ComponentPassword              = model.ComponentPassword
	ComponentAuthenticatorValidate = model.ComponentAuthenticatorValidate
	ComponentConsent               = model.ComponentConsent
	ComponentAccessDenied          = model.ComponentAccessDenied
)

// FlowProvider is the persistence boundary callers implement to integrate
// flowengine with their configuration database. Implementations must call
// [Engine.NotifyMutation] synchronously after every committed write.
type FlowProvider = model.Provider

// Policy is the capability every policy variant implements.
type Policy = policy.Policy

// PolicyBase carries the name and execution-logging flag shared by all
// policy variants. Embed it in custom variants.
type PolicyBase = policy.Base

// Request is the ephemeral per-request evaluation context.
type Request = policy.Request

// Principal is the acting user of a Request.
type Principal = policy.Principal

// PolicyResult is the outcome of one policy evaluation.
type PolicyResult = policy.Result

// Built-in policy variants.
type (
	ExpressionPolicy      = policy.ExpressionPolicy
	AttributePolicy       = policy.AttributePolicy
	GroupMembershipPolicy = policy.GroupMembershipPolicy
	ReputationPolicy      = policy.ReputationPolicy
)

// ReputationStore keeps per-identifier reputation scores in Redis.
type ReputationStore = policy.ReputationStore

// NewReputationStore creates a reputation score store.
func NewReputationStore(client redis.UniversalClient, prefix string, ttl time.Duration) *ReputationStore {
	return policy.NewReputationStore(client, prefix, ttl)
}

// Mutation describes one committed write to a flow configuration entity.
type Mutation = events.Mutation

// MutationKind names the entity class a mutation touched.
type MutationKind = events.Kind

// MutationOp names the persistence operation.
type MutationOp = events.Op

// Mutation kinds and operations.
const (
	KindFlow         = events.KindFlow
	KindStage        = events.KindStage
	KindStageBinding = events.KindStageBinding

	OpCreate = events.OpCreate
	OpUpdate = events.OpUpdate
	OpDelete = events.OpDelete
)

// Correlation is the per-request correlation tag carried on the context.
type Correlation = correlation.Tag

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.MetricID

// Metric IDs.
const (
	MetricPlanBuilt                  = internalmetrics.MetricPlanBuilt
	MetricPlanCacheHit               = internalmetrics.MetricPlanCacheHit
	MetricPlanCacheMiss              = internalmetrics.MetricPlanCacheMiss
	MetricPlanCacheBypass            = internalmetrics.MetricPlanCacheBypass
	MetricPlanCacheFallback          = internalmetrics.MetricPlanCacheFallback
	MetricPolicyPass                 = internalmetrics.MetricPolicyPass
	MetricPolicyFail                 = internalmetrics.MetricPolicyFail
	MetricPolicyError                = internalmetrics.MetricPolicyError
	MetricPolicyDirectGrant          = internalmetrics.MetricPolicyDirectGrant
	MetricBindingExcludedPolicy      = internalmetrics.MetricBindingExcludedPolicy
	MetricBindingExcludedRestriction = internalmetrics.MetricBindingExcludedRestriction
	MetricBindingDanglingStage       = internalmetrics.MetricBindingDanglingStage
	MetricInvalidationFlow           = internalmetrics.MetricInvalidationFlow
	MetricInvalidationStage          = internalmetrics.MetricInvalidationStage
	MetricInvalidationBinding        = internalmetrics.MetricInvalidationBinding
	MetricInvalidationKeysDeleted    = internalmetrics.MetricInvalidationKeysDeleted
	MetricInvalidationFailure        = internalmetrics.MetricInvalidationFailure
	MetricImpersonatedPlan           = internalmetrics.MetricImpersonatedPlan
	MetricPlanLatency                = internalmetrics.MetricPlanLatency
)

// Metrics holds atomic counters and the optional plan latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot
