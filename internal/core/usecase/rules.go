package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/safety"
)

// RuleActivationUseCase runs both gates on a rule version before storing it
// as the active one: the shape validator, then the activation guard.
type RuleActivationUseCase struct {
	validator *safety.ConfigValidator
	rules     ports.RuleRepository
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewRuleActivationUseCase(validator *safety.ConfigValidator, rules ports.RuleRepository, logger *slog.Logger) *RuleActivationUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleActivationUseCase{
		validator: validator,
		rules:     rules,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Check runs both gates without storing anything.
func (uc *RuleActivationUseCase) Check(req domain.ActivateRuleRequest) *domain.ActivateRuleResult {
	report := uc.validator.Validate(req.RuleKey, req.Logic, req.Defaults)
	if !report.OK() {
		return &domain.ActivateRuleResult{OK: false, Errors: report.Errors, Warnings: report.Warnings}
	}
	if problems := safety.CheckActivationGuard(req.RuleKey, *report.Logic, *report.Defaults); len(problems) > 0 {
		return &domain.ActivateRuleResult{OK: false, Errors: problems, Warnings: report.Warnings}
	}
	return &domain.ActivateRuleResult{
		OK:       true,
		Logic:    report.Logic,
		Defaults: report.Defaults,
		Warnings: report.Warnings,
	}
}

// Activate returns a result with OK=false and the reasons for rejected
// configs; the error return is reserved for store failures.
func (uc *RuleActivationUseCase) Activate(ctx context.Context, req domain.ActivateRuleRequest) (*domain.ActivateRuleResult, error) {
	result := uc.Check(req)
	if !result.OK {
		uc.logger.Warn("rule version rejected",
			"organization_id", req.OrganizationID,
			"rule_key", req.RuleKey,
			"errors", len(result.Errors),
		)
		return result, nil
	}

	stored, err := uc.rules.ActivateRuleVersion(ctx, &domain.SafetyRuleVersion{
		ID:             uc.newID(),
		OrganizationID: req.OrganizationID,
		RuleKey:        req.RuleKey,
		Logic:          *result.Logic,
		Defaults:       *result.Defaults,
		Active:         true,
		CreatedAt:      uc.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store rule version: %w", err)
	}
	result.Version = stored.Version

	uc.logger.Info("rule version activated",
		"organization_id", req.OrganizationID,
		"rule_key", req.RuleKey,
		"version", stored.Version,
	)
	return result, nil
}

// ActivationRequest converts a typed rule version, e.g. one loaded from a
// rule file, into the raw request both gates validate.
func ActivationRequest(v domain.SafetyRuleVersion) (domain.ActivateRuleRequest, error) {
	logic, err := json.Marshal(v.Logic)
	if err != nil {
		return domain.ActivateRuleRequest{}, fmt.Errorf("encode logic: %w", err)
	}
	defaults, err := json.Marshal(v.Defaults)
	if err != nil {
		return domain.ActivateRuleRequest{}, fmt.Errorf("encode defaults: %w", err)
	}
	return domain.ActivateRuleRequest{
		OrganizationID: v.OrganizationID,
		RuleKey:        v.RuleKey,
		Logic:          logic,
		Defaults:       defaults,
	}, nil
}
