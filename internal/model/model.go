package model

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelauth/flowengine/internal/policy"
)

var (
	// ErrFlowNotFound is returned by providers for unknown flows.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrStageNotFound is returned by providers for unknown stages. The
	// resolver treats it as a dangling binding: warn and skip, not fatal.
	ErrStageNotFound = errors.New("stage not found")
)

// FlowDesignation declares what a flow is used for.
type FlowDesignation string

const (
	DesignationAuthentication     FlowDesignation = "authentication"
	DesignationEnrollment         FlowDesignation = "enrollment"
	DesignationRecovery           FlowDesignation = "recovery"
	DesignationInvalidation       FlowDesignation = "invalidation"
	DesignationStageConfiguration FlowDesignation = "stage_configuration"
)

// Valid reports whether the designation is one of the defined values.
func (d FlowDesignation) Valid() bool {
	switch d {
	case DesignationAuthentication, DesignationEnrollment, DesignationRecovery,
		DesignationInvalidation, DesignationStageConfiguration:
		return true
	}
	return false
}

// Flow is an ordered, administrator-defined authentication or enrollment
// sequence. Read-heavy at runtime; every edit bumps Version and purges the
// flow's cached plans.
type Flow struct {
	ID          uuid.UUID
	Slug        string
	Title       string
	Designation FlowDesignation
	Version     uint64
}

// Stage is a reusable unit of work bound into flows, e.g. an
// identification prompt or an authenticator check. Identity is immutable;
// configuration changes invalidate every flow that binds the stage.
type Stage struct {
	ID        uuid.UUID
	Name      string
	Component string
}

// Stage component slugs of the built-in stage kinds.
const (
	ComponentIdentification        = "fe-stage-identification"
	ComponentPassword              = "fe-stage-password"
	ComponentAuthenticatorValidate = "fe-stage-authenticator-validate"
	ComponentConsent               = "fe-stage-consent"
	ComponentAccessDenied          = "fe-stage-access-denied"
)

// PolicyBinding attaches one policy, or a direct user/group grant, to a
// stage binding. A direct grant decides the binding for the matching
// principal without calling the policy evaluator; for any other principal
// it denies.
type PolicyBinding struct {
	ID      uuid.UUID
	Order   int
	Enabled bool
	Timeout time.Duration

	Policy policy.Policy

	// Direct grant: when UserID or Group is set, Policy is ignored.
	UserID string
	Group  string
}

// Direct reports whether the binding is a direct user/group grant.
func (b PolicyBinding) Direct() bool {
	return b.UserID != "" || b.Group != ""
}

// StageBinding joins a stage into a flow at a position. Within one flow
// the (Order, CreatedAt, ID) triple yields a total, deterministic order.
type StageBinding struct {
	ID        uuid.UUID
	FlowID    uuid.UUID
	StageID   uuid.UUID
	Order     int
	Enabled   bool
	CreatedAt time.Time
	Timeout   time.Duration

	// Target restriction: when set, principals that do not match are
	// excluded before any policy evaluation.
	TargetUserID string
	TargetGroup  string

	PolicyBindings []PolicyBinding
}

// Matches reports whether the binding's target restriction admits the
// principal. An unrestricted binding admits everyone.
func (b StageBinding) Matches(p policy.Principal) bool {
	if b.TargetUserID != "" && b.TargetUserID != p.ID {
		return false
	}
	if b.TargetGroup != "" && !p.InGroup(b.TargetGroup) {
		return false
	}
	return true
}

// SortBindings orders stage bindings by (Order, CreatedAt, ID) ascending.
func SortBindings(bindings []StageBinding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		a, b := bindings[i], bindings[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// SortPolicyBindings orders policy bindings by (Order, ID) ascending.
func SortPolicyBindings(bindings []PolicyBinding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		a, b := bindings[i], bindings[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID.String() < b.ID.String()
	})
}

// StageRef is one executable step inside a materialized plan.
type StageRef struct {
	StageID   uuid.UUID     `json:"stage_id"`
	BindingID uuid.UUID     `json:"binding_id"`
	Name      string        `json:"name"`
	Component string        `json:"component"`
	Order     int           `json:"order"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// Plan is the materialized, ordered stage list for one flow/request
// combination. Plans are immutable once returned; callers execute stages
// sequentially and request a forced replan when a stage changes facts
// that could alter later policy outcomes.
type Plan struct {
	FlowID      uuid.UUID  `json:"flow_id"`
	FlowSlug    string     `json:"flow_slug"`
	FlowVersion uint64     `json:"flow_version"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	Stages      []StageRef `json:"stages"`
}

// Provider is the persistence boundary for flow configuration. The ORM
// layer, its migrations, and admin CRUD live outside this module; the
// engine only reads through this interface. Implementations must publish
// a mutation event after every committed write so cached plans are purged
// before the next planning call.
type Provider interface {
	GetFlowBySlug(ctx context.Context, slug string) (*Flow, error)
	GetFlow(ctx context.Context, id uuid.UUID) (*Flow, error)
	GetStage(ctx context.Context, id uuid.UUID) (*Stage, error)
	// ListBindings returns all stage bindings of a flow, enabled or not,
	// in any order. The resolver applies the deterministic sort.
	ListBindings(ctx context.Context, flowID uuid.UUID) ([]StageBinding, error)
	// ListBindingsForStage is the reverse lookup used by stage-mutation
	// invalidation.
	ListBindingsForStage(ctx context.Context, stageID uuid.UUID) ([]StageBinding, error)
}
