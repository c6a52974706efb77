package policy

import "context"

// AttributePolicy passes when a request attribute equals an expected
// value. A missing attribute is a mismatch, not an error: absence of a
// fact denies the gated binding (fail closed).
type AttributePolicy struct {
	Base
	Key    string
	Equals any
}

func (p *AttributePolicy) Kind() string { return "attribute" }

func (p *AttributePolicy) Evaluate(_ context.Context, req *Request) (Result, error) {
	read := []string{p.Key}

	if req == nil || req.Attributes == nil {
		return Result{Passed: false, Reason: ReasonAttributeMismatch, Cacheable: true, AttributesRead: read}, nil
	}

	got, ok := req.Attributes[p.Key]
	if !ok || got != p.Equals {
		return Result{Passed: false, Reason: ReasonAttributeMismatch, Cacheable: true, AttributesRead: read}, nil
	}

	return Result{Passed: true, Cacheable: true, AttributesRead: read}, nil
}

// GroupMembershipPolicy passes when the acting principal belongs to the
// configured group.
type GroupMembershipPolicy struct {
	Base
	Group string
}

func (p *GroupMembershipPolicy) Kind() string { return "group_membership" }

func (p *GroupMembershipPolicy) Evaluate(_ context.Context, req *Request) (Result, error) {
	if req == nil || !req.Principal.InGroup(p.Group) {
		return Result{Passed: false, Reason: ReasonNotInGroup, Cacheable: true}, nil
	}
	return Result{Passed: true, Cacheable: true}, nil
}
