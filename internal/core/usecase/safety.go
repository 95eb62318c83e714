package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/safety"
)

type SafetyEvaluationUseCase struct {
	engine *safety.Engine
	rules  ports.RuleRepository
	logger *slog.Logger
}

// NewSafetyEvaluationUseCase evaluates built-in rules only when rules is nil.
func NewSafetyEvaluationUseCase(engine *safety.Engine, rules ports.RuleRepository, logger *slog.Logger) *SafetyEvaluationUseCase {
	if engine == nil {
		engine = safety.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SafetyEvaluationUseCase{engine: engine, rules: rules, logger: logger}
}

func (uc *SafetyEvaluationUseCase) Evaluate(ctx context.Context, req domain.SafetyEvaluationRequest) (*domain.SafetyEvaluation, error) {
	var configured []domain.SafetyRuleVersion
	if uc.rules != nil {
		versions, err := uc.rules.ActiveRuleVersions(ctx, req.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("load active rule versions: %w", err)
		}
		configured = versions
	}

	evaluation, err := uc.engine.Evaluate(req, configured)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("safety evaluated",
		"organization_id", req.OrganizationID,
		"configured_rules", len(configured),
		"summary", safety.Summary(evaluation),
	)
	return evaluation, nil
}
