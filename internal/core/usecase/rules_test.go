package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/safety"
)

func newRuleActivation(t *testing.T, repo *ruleRepoFake) *RuleActivationUseCase {
	t.Helper()
	validator, err := safety.NewConfigValidator()
	if err != nil {
		t.Fatalf("NewConfigValidator() error = %v", err)
	}
	uc := NewRuleActivationUseCase(validator, repo, nil)
	uc.now = fixedNow
	uc.newID = func() string { return "rule-version-1" }
	return uc
}

func TestActivateRejectsLevelAWithoutVerifiedEvidence(t *testing.T) {
	repo := &ruleRepoFake{}
	res, err := newRuleActivation(t, repo).Activate(context.Background(), domain.ActivateRuleRequest{
		OrganizationID: "org-1",
		RuleKey:        "org.syncope",
		Logic:          json.RawMessage(`{"patterns":["ohnmacht"]}`),
		Defaults:       json.RawMessage(`{"level_default":"A","action_default":"require_confirm"}`),
	})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if res.OK || len(res.Errors) == 0 {
		t.Fatalf("expected rejection, got %+v", res)
	}
	if len(repo.activated) != 0 {
		t.Fatalf("rejected rule must not be stored")
	}
}

func TestActivateAcceptsGuardedLevelARule(t *testing.T) {
	repo := &ruleRepoFake{}
	res, err := newRuleActivation(t, repo).Activate(context.Background(), domain.ActivateRuleRequest{
		OrganizationID: "org-1",
		RuleKey:        safety.RuleSuicidalIdeation,
		Logic:          json.RawMessage(`{"patterns":["suizid"],"requires_verified_evidence":true,"a_level_requires_any_of":["plan","mittel"]}`),
		Defaults:       json.RawMessage(`{"level_default":"A","action_default":"hard_stop"}`),
	})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !res.OK || res.Version != 1 || res.Logic == nil || res.Defaults == nil {
		t.Fatalf("expected activation, got %+v", res)
	}
	stored := repo.activated[0]
	if !stored.Active || stored.OrganizationID != "org-1" || !stored.Logic.RequiresVerified {
		t.Fatalf("unexpected stored version %+v", stored)
	}
}

func TestActivateRejectsSuicidalRuleWithoutQualifiers(t *testing.T) {
	res, err := newRuleActivation(t, &ruleRepoFake{}).Activate(context.Background(), domain.ActivateRuleRequest{
		RuleKey:  safety.RuleSuicidalIdeation,
		Logic:    json.RawMessage(`{"patterns":["suizid"],"requires_verified_evidence":true}`),
		Defaults: json.RawMessage(`{"level_default":"A","action_default":"require_confirm"}`),
	})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if res.OK {
		t.Fatalf("expected rejection without a_level_requires_any_of")
	}
}

func TestActivateReportsSchemaErrors(t *testing.T) {
	res, err := newRuleActivation(t, &ruleRepoFake{}).Activate(context.Background(), domain.ActivateRuleRequest{
		RuleKey:  "org.rule",
		Logic:    json.RawMessage(`{"patterns":["x"],"unknown":1}`),
		Defaults: json.RawMessage(`{"level_default":"B","action_default":"warn"}`),
	})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if res.OK || len(res.Errors) == 0 {
		t.Fatalf("expected schema errors, got %+v", res)
	}
}

func TestActivateSurfacesStoreFailure(t *testing.T) {
	repo := &ruleRepoFake{err: errors.New("db down")}
	_, err := newRuleActivation(t, repo).Activate(context.Background(), domain.ActivateRuleRequest{
		RuleKey:  "org.rule",
		Logic:    json.RawMessage(`{"patterns":["x"]}`),
		Defaults: json.RawMessage(`{"level_default":"B","action_default":"warn"}`),
	})
	if err == nil {
		t.Fatalf("expected store error")
	}
}

func TestActivationRequestRoundTripsTypedVersion(t *testing.T) {
	req, err := ActivationRequest(domain.SafetyRuleVersion{
		RuleKey:  "org.rule",
		Logic:    domain.RuleLogic{Patterns: []string{"x"}, ExclusionMode: domain.ExclusionAlways},
		Defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelC, ActionDefault: domain.ActionNone},
	})
	if err != nil {
		t.Fatalf("ActivationRequest() error = %v", err)
	}
	res := newRuleActivation(t, &ruleRepoFake{}).Check(req)
	if !res.OK {
		t.Fatalf("typed version should validate, got %v", res.Errors)
	}
}
