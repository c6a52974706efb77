package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type panickingPolicy struct {
	Base
}

func (p *panickingPolicy) Kind() string { return "panicking" }

func (p *panickingPolicy) Evaluate(context.Context, *Request) (Result, error) {
	panic("boom")
}

type erroringPolicy struct {
	Base
}

func (p *erroringPolicy) Kind() string { return "erroring" }

func (p *erroringPolicy) Evaluate(context.Context, *Request) (Result, error) {
	return Result{}, errors.New("backend unreachable")
}

func testRequest() *Request {
	return &Request{
		Principal: Principal{
			ID:       "user-1",
			Username: "alice",
			Groups:   []string{"staff", "admins"},
			Active:   true,
		},
		ClientIP: "203.0.113.7",
		Attributes: map[string]any{
			"is_not_locked":  true,
			"has_mfa_device": false,
		},
	}
}

func TestEvaluateNilPolicyFailsClosed(t *testing.T) {
	res, err := Evaluate(context.Background(), nil, testRequest())
	if err == nil {
		t.Fatal("expected error for nil policy")
	}
	if res.Passed {
		t.Fatal("nil policy must not pass")
	}
	if res.Reason != ReasonPolicyError {
		t.Fatalf("expected reason %q, got %q", ReasonPolicyError, res.Reason)
	}
}

func TestEvaluateRecoversPanic(t *testing.T) {
	res, err := Evaluate(context.Background(), &panickingPolicy{}, testRequest())
	if err == nil {
		t.Fatal("expected error from panicking policy")
	}
	if res.Passed {
		t.Fatal("panicking policy must fail closed")
	}
	if res.Reason != ReasonPolicyError {
		t.Fatalf("expected reason %q, got %q", ReasonPolicyError, res.Reason)
	}
}

func TestEvaluateErrorDegradesToDeny(t *testing.T) {
	res, err := Evaluate(context.Background(), &erroringPolicy{Base: Base{PolicyName: "flaky"}}, testRequest())
	if err == nil {
		t.Fatal("expected error to surface for audit")
	}
	if res.Passed {
		t.Fatal("erroring policy must fail closed")
	}
	if res.Cacheable {
		t.Fatal("degraded result must not be cacheable")
	}
}

func TestAttributePolicy(t *testing.T) {
	p := &AttributePolicy{Base: Base{PolicyName: "is_not_locked"}, Key: "is_not_locked", Equals: true}

	res, err := p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.Passed || !res.Cacheable {
		t.Fatalf("expected cacheable pass, got %+v", res)
	}

	p.Key = "missing_attribute"
	res, err = p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Passed {
		t.Fatal("missing attribute must deny")
	}
	if res.Reason != ReasonAttributeMismatch {
		t.Fatalf("expected reason %q, got %q", ReasonAttributeMismatch, res.Reason)
	}
}

func TestGroupMembershipPolicy(t *testing.T) {
	p := &GroupMembershipPolicy{Base: Base{PolicyName: "staff_only"}, Group: "staff"}

	res, err := p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.Passed {
		t.Fatal("staff member should pass")
	}

	p.Group = "superusers"
	res, err = p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Passed {
		t.Fatal("non-member must be denied")
	}
	if res.Reason != ReasonNotInGroup {
		t.Fatalf("expected reason %q, got %q", ReasonNotInGroup, res.Reason)
	}
}

func TestExpressionPolicyEvaluatesRequestTable(t *testing.T) {
	cases := []struct {
		name       string
		expression string
		want       bool
	}{
		{"attribute true", "return request.attributes.is_not_locked == true", true},
		{"attribute false", "return request.attributes.has_mfa_device == true", false},
		{"username", `return request.username == "alice"`, true},
		{"group scan", `for _, g in ipairs(request.groups) do if g == "admins" then return true end end return false`, true},
		{"impersonated flag", "return request.impersonated", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &ExpressionPolicy{Base: Base{PolicyName: tc.name}, Expression: tc.expression}
			res, err := p.Evaluate(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if res.Passed != tc.want {
				t.Fatalf("expected passed=%v, got %+v", tc.want, res)
			}
			if !res.Cacheable {
				t.Fatal("expression results must be cacheable")
			}
		})
	}
}

func TestAttributePolicyReportsAttributeRead(t *testing.T) {
	p := &AttributePolicy{Base: Base{PolicyName: "is_not_locked"}, Key: "is_not_locked", Equals: true}

	res, err := p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(res.AttributesRead) != 1 || res.AttributesRead[0] != "is_not_locked" {
		t.Fatalf("expected the consulted key to be reported, got %v", res.AttributesRead)
	}

	// The key counts as consulted even when the request carries no
	// attributes: its absence decided the outcome.
	res, err = p.Evaluate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(res.AttributesRead) != 1 || res.AttributesRead[0] != "is_not_locked" {
		t.Fatalf("expected the consulted key to be reported, got %v", res.AttributesRead)
	}
}

func TestExpressionPolicyReportsAttributeReads(t *testing.T) {
	cases := []struct {
		name       string
		expression string
		want       []string
	}{
		{
			"single key",
			"return request.attributes.has_mfa_device == true",
			[]string{"has_mfa_device"},
		},
		{
			"two keys sorted",
			"return request.attributes.is_not_locked and not request.attributes.has_mfa_device",
			[]string{"has_mfa_device", "is_not_locked"},
		},
		{
			"absent key still counts",
			"return request.attributes.geo == nil",
			[]string{"geo"},
		},
		{
			"no attribute access",
			`return request.username == "alice"`,
			nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &ExpressionPolicy{Base: Base{PolicyName: tc.name}, Expression: tc.expression}
			res, err := p.Evaluate(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if len(res.AttributesRead) != len(tc.want) {
				t.Fatalf("expected reads %v, got %v", tc.want, res.AttributesRead)
			}
			for i := range tc.want {
				if res.AttributesRead[i] != tc.want[i] {
					t.Fatalf("expected reads %v, got %v", tc.want, res.AttributesRead)
				}
			}
		})
	}
}

func TestExpressionPolicySyntaxErrorSurfaces(t *testing.T) {
	p := &ExpressionPolicy{Base: Base{PolicyName: "broken"}, Expression: "return ((("}

	res, err := Evaluate(context.Background(), p, testRequest())
	if err == nil {
		t.Fatal("expected error from broken expression")
	}
	if res.Passed {
		t.Fatal("broken expression must fail closed")
	}
	if res.Reason != ReasonPolicyError {
		t.Fatalf("expected reason %q, got %q", ReasonPolicyError, res.Reason)
	}
}

func newTestReputation(t *testing.T) (*miniredis.Miniredis, *ReputationStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewReputationStore(client, "rep", time.Hour)
}

func TestReputationStoreScoresMoveWithOutcomes(t *testing.T) {
	_, store := newTestReputation(t)
	ctx := context.Background()

	score, err := store.Score(ctx, "user:alice")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected zero score for unseen identifier, got %d", score)
	}

	for i := 0; i < 3; i++ {
		if err := store.ReportOutcome(ctx, "user:alice", false); err != nil {
			t.Fatalf("ReportOutcome failed: %v", err)
		}
	}
	if err := store.ReportOutcome(ctx, "user:alice", true); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}

	score, err = store.Score(ctx, "user:alice")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != -2 {
		t.Fatalf("expected score -2, got %d", score)
	}
}

func TestReputationPolicyWorstScoreWins(t *testing.T) {
	_, store := newTestReputation(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.ReportOutcome(ctx, "ip:203.0.113.7", false); err != nil {
			t.Fatalf("ReportOutcome failed: %v", err)
		}
	}

	p := &ReputationPolicy{
		Base:          Base{PolicyName: "reputation"},
		Store:         store,
		Threshold:     -3,
		CheckIP:       true,
		CheckUsername: true,
	}

	res, err := p.Evaluate(ctx, testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Passed {
		t.Fatal("score below threshold must deny")
	}
	if res.Reason != ReasonReputationBelow {
		t.Fatalf("expected reason %q, got %q", ReasonReputationBelow, res.Reason)
	}
	if res.Cacheable {
		t.Fatal("reputation outcomes must never be cacheable")
	}
}

func TestReputationPolicyPassesAboveThreshold(t *testing.T) {
	_, store := newTestReputation(t)

	p := &ReputationPolicy{
		Base:      Base{PolicyName: "reputation"},
		Store:     store,
		Threshold: -3,
		CheckIP:   true,
	}

	res, err := p.Evaluate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.Passed {
		t.Fatal("clean identifier should pass")
	}
	if res.Cacheable {
		t.Fatal("reputation outcomes must never be cacheable")
	}
}
