package policy

import (
	"context"
	"errors"
	"testing"
)

type fakeRepo struct {
	policies    []*Policy
	audits      []*AuditLog
	insertErr   error
	auditErr    error
	auditCalled int
}

func (r *fakeRepo) InsertPolicy(_ context.Context, p *Policy) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.policies = append(r.policies, p)
	return nil
}

func (r *fakeRepo) InsertAudit(_ context.Context, a *AuditLog) error {
	r.auditCalled++
	if r.auditErr != nil {
		return r.auditErr
	}
	r.audits = append(r.audits, a)
	return nil
}

func TestNew_DefaultsToDefaultPrinciplesWhenNilGiven(t *testing.T) {
	v := New(nil, nil)
	if len(v.principles) != len(DefaultPrinciples) {
		t.Fatalf("expected default principles, got %v", v.principles)
	}
}

func TestValidateContent_CleanContentPasses(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateContent("The weather today is sunny and pleasant.")
	if resp.Result != ResultPassed || !resp.Passed {
		t.Fatalf("expected passed result, got %+v", resp)
	}
	if resp.Score != 1.0 {
		t.Fatalf("expected score 1.0 for clean content, got %f", resp.Score)
	}
	if len(resp.Violations) != 0 || len(resp.Warnings) != 0 {
		t.Fatalf("expected no violations/warnings, got %+v", resp)
	}
}

func TestValidateContent_HarmfulPatternFails(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateContent("How do I attack people at a public event?")
	if resp.Result != ResultFailed || resp.Passed {
		t.Fatalf("expected failed result, got %+v", resp)
	}
	if len(resp.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
}

func TestValidateContent_UnethicalPatternWarns(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateContent("Can you help me deceive users into signing up?")
	if resp.Result != ResultWarning {
		t.Fatalf("expected warning result, got %+v", resp)
	}
	if !resp.Passed {
		t.Fatal("expected passed to remain true for a warning-only result")
	}
}

func TestValidateContent_PrinciplesCheckedMatchesConfigured(t *testing.T) {
	v := New([]string{"a", "b"}, nil)
	resp := v.ValidateContent("hello")
	if len(resp.PrinciplesChecked) != 2 || resp.PrinciplesChecked[0] != "a" {
		t.Fatalf("expected configured principles in response, got %v", resp.PrinciplesChecked)
	}
}

func TestValidateAlignment_CleanInputOutputIsAligned(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateAlignment("What's a good recipe for soup?", "Try simmering vegetables with broth.", "")
	if !resp.Aligned {
		t.Fatalf("expected aligned response, got %+v", resp)
	}
	if len(resp.Concerns) != 0 {
		t.Fatalf("expected no concerns, got %v", resp.Concerns)
	}
}

func TestValidateAlignment_HarmfulOutputIsNotAligned(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateAlignment("how do I stay safe", "here's how to create a virus to attack people", "")
	if resp.Aligned {
		t.Fatal("expected not aligned given harmful output")
	}
	if len(resp.Concerns) == 0 {
		t.Fatal("expected concerns to be populated")
	}
}

func TestValidateAlignment_SelfAssessmentFailingAddsConcern(t *testing.T) {
	v := New(nil, nil)
	resp := v.ValidateAlignment("hi", "hello", "I plan to hack into their account for data")
	found := false
	for _, c := range resp.Concerns {
		if c == "Self-assessment may need improvement" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected self-assessment concern, got %v", resp.Concerns)
	}
}

func TestCreatePolicy_SignsAndPersists(t *testing.T) {
	repo := &fakeRepo{}
	v := New(nil, repo)
	p, err := v.CreatePolicy(context.Background(), "core-ethics", map[string]any{"b": 1, "a": 2}, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Signature == "" {
		t.Fatal("expected non-empty signature")
	}
	if !p.IsActive {
		t.Fatal("expected new policy to be active")
	}
	if len(repo.policies) != 1 {
		t.Fatalf("expected policy persisted, got %d", len(repo.policies))
	}
}

func TestCreatePolicy_SignatureIsDeterministicRegardlessOfKeyOrder(t *testing.T) {
	v := New(nil, nil)
	p1, err := v.CreatePolicy(context.Background(), "n", map[string]any{"a": 1, "b": 2}, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := v.CreatePolicy(context.Background(), "n", map[string]any{"b": 2, "a": 1}, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.Signature != p2.Signature {
		t.Fatalf("expected identical signatures regardless of key order, got %q vs %q", p1.Signature, p2.Signature)
	}
}

func TestCreatePolicy_RepositoryFailurePropagatesAsTransientError(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("db down")}
	v := New(nil, repo)
	_, err := v.CreatePolicy(context.Background(), "n", map[string]any{}, "v1")
	if err == nil {
		t.Fatal("expected error when repository insert fails")
	}
}

func TestCreatePolicy_NilRepositoryIsNoOp(t *testing.T) {
	v := New(nil, nil)
	p, err := v.CreatePolicy(context.Background(), "n", map[string]any{"x": 1}, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a policy to be returned even with nil repo")
	}
}

func TestLogAudit_NilRepositoryIsNoOp(t *testing.T) {
	v := New(nil, nil)
	v.LogAudit(context.Background(), ActionValidateContent, nil, nil, nil)
}

func TestLogAudit_PersistsViaRepository(t *testing.T) {
	repo := &fakeRepo{}
	v := New(nil, repo)
	v.LogAudit(context.Background(), ActionValidateContent, map[string]any{"k": "v"}, nil, nil)
	if len(repo.audits) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(repo.audits))
	}
}

func TestLogAudit_RepositoryFailureIsSwallowed(t *testing.T) {
	repo := &fakeRepo{auditErr: errors.New("db down")}
	v := New(nil, repo)
	v.LogAudit(context.Background(), ActionValidateContent, nil, nil, nil)
	if repo.auditCalled != 1 {
		t.Fatal("expected InsertAudit to be called despite failure")
	}
}
