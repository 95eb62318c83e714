package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/risk"
)

// Keys of CalculatedResult.RiskModels written by the risk stage.
const (
	ModelRiskBundle = "risk_bundle"
	ModelSafety     = "safety_evaluation"
	ModelEscalation = "escalation"
)

// stageInputs is everything the stored scores and escalation depend on. It
// is the InputsData of results written by the risk and ranking stages, so a
// changed intake or newly fired rule is never hashed away as a no-op.
type stageInputs struct {
	Answers          map[string]any          `json:"answers"`
	Intake           domain.StructuredIntake `json:"structured_intake"`
	VerbatimMessages []string                `json:"verbatim_messages"`
	EvidenceVerified bool                    `json:"evidence_verified"`
	OrganizationID   string                  `json:"organization_id"`
	FunnelVersion    string                  `json:"funnel_version"`
	FiredRuleIDs     []string                `json:"fired_rule_ids"`
	FailedCheckIDs   []string                `json:"failed_check_ids"`
	PendingRuleIDs   []string                `json:"pending_verification_rule_ids"`
}

func newStageInputs(assessment *domain.Assessment, evaluation *domain.SafetyEvaluation) stageInputs {
	in := stageInputs{
		Answers:          assessment.Answers,
		Intake:           assessment.Intake,
		VerbatimMessages: assessment.VerbatimMessages,
		EvidenceVerified: assessment.EvidenceVerified,
		OrganizationID:   assessment.OrganizationID,
		FunnelVersion:    assessment.FunnelVersion,
	}
	if evaluation != nil {
		in.FiredRuleIDs = nilIfEmpty(evaluation.RuleIDs)
		in.FailedCheckIDs = nilIfEmpty(evaluation.CheckIDs)
		in.PendingRuleIDs = nilIfEmpty(evaluation.PendingVerificationRuleIDs)
	}
	return in
}

// nilIfEmpty keeps the hash equal whether the evaluation is typed or was
// decoded from a stored model that omitted empty lists.
func nilIfEmpty(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// RiskStageHandler evaluates safety, computes the risk bundle, detects
// escalation and persists the calculated result for the job's assessment.
type RiskStageHandler struct {
	assessments ports.AssessmentReader
	safety      ports.SafetyEvaluator
	risk        *ComputeRiskUseCase
	escalation  ports.EscalationDetector
	results     ports.ResultsWriter
}

func NewRiskStageHandler(
	assessments ports.AssessmentReader,
	safety ports.SafetyEvaluator,
	risk *ComputeRiskUseCase,
	escalation ports.EscalationDetector,
	results ports.ResultsWriter,
) *RiskStageHandler {
	return &RiskStageHandler{
		assessments: assessments,
		safety:      safety,
		risk:        risk,
		escalation:  escalation,
		results:     results,
	}
}

func (h *RiskStageHandler) RunStage(ctx context.Context, job *domain.ProcessingJob) error {
	assessment, err := h.assessments.GetAssessment(ctx, job.AssessmentID)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}

	evaluation, err := h.safety.Evaluate(ctx, domain.SafetyEvaluationRequest{
		OrganizationID:   assessment.OrganizationID,
		Intake:           assessment.Intake,
		VerbatimMessages: assessment.VerbatimMessages,
		EvidenceVerified: assessment.EvidenceVerified,
	})
	if err != nil {
		return fmt.Errorf("evaluate safety: %w", err)
	}

	algorithm := algorithmFor(assessment, h.risk)
	bundle, err := h.risk.Compute(ctx, domain.RiskRequest{
		AssessmentID:     assessment.ID,
		JobID:            job.ID,
		Answers:          assessment.Answers,
		AlgorithmVersion: algorithm,
		FunnelVersion:    assessment.FunnelVersion,
		Safety:           evaluation,
	})
	if err != nil {
		return fmt.Errorf("compute risk bundle: %w", err)
	}

	level := bundle.RiskScore.Level
	escalation, err := h.escalation.Detect(ctx, domain.EscalationInput{
		AssessmentID: assessment.ID,
		RiskLevel:    &level,
		Safety:       evaluation,
	})
	if err != nil {
		return fmt.Errorf("detect escalation: %w", err)
	}

	res := h.results.Save(ctx, domain.SaveResultsRequest{
		AssessmentID:     assessment.ID,
		AlgorithmVersion: algorithm,
		Scores:           bundleScores(bundle),
		RiskModels: map[string]any{
			ModelRiskBundle: bundle,
			ModelSafety:     evaluation,
			ModelEscalation: escalation,
		},
		InputsData: newStageInputs(assessment, evaluation),
	})
	return SaveResultsError(res)
}

// RankingStageHandler ranks the stored risk bundle and re-saves the result
// with its priority ranking.
type RankingStageHandler struct {
	assessments ports.AssessmentReader
	repo        ports.ResultRepository
	risk        *ComputeRiskUseCase
	results     ports.ResultsWriter
}

func NewRankingStageHandler(
	assessments ports.AssessmentReader,
	repo ports.ResultRepository,
	risk *ComputeRiskUseCase,
	results ports.ResultsWriter,
) *RankingStageHandler {
	return &RankingStageHandler{assessments: assessments, repo: repo, risk: risk, results: results}
}

func (h *RankingStageHandler) RunStage(ctx context.Context, job *domain.ProcessingJob) error {
	assessment, err := h.assessments.GetAssessment(ctx, job.AssessmentID)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}
	algorithm := algorithmFor(assessment, h.risk)

	stored, err := h.repo.GetResult(ctx, assessment.ID, algorithm)
	if err != nil {
		return fmt.Errorf("load calculated result: %w", err)
	}

	var bundle domain.RiskBundle
	if err := decodeModel(stored.RiskModels, ModelRiskBundle, &bundle); err != nil {
		return err
	}
	var escalation *domain.EscalationResult
	if _, ok := stored.RiskModels[ModelEscalation]; ok {
		escalation = &domain.EscalationResult{}
		if err := decodeModel(stored.RiskModels, ModelEscalation, escalation); err != nil {
			return err
		}
	}

	var evaluation *domain.SafetyEvaluation
	if _, ok := stored.RiskModels[ModelSafety]; ok {
		evaluation = &domain.SafetyEvaluation{}
		if err := decodeModel(stored.RiskModels, ModelSafety, evaluation); err != nil {
			return err
		}
	}

	ranking, err := risk.Rank(&bundle, escalation)
	if err != nil {
		return err
	}

	res := h.results.Save(ctx, domain.SaveResultsRequest{
		AssessmentID:     assessment.ID,
		AlgorithmVersion: algorithm,
		Scores:           stored.Scores,
		RiskModels:       stored.RiskModels,
		PriorityRanking:  ranking,
		InputsData:       newStageInputs(assessment, evaluation),
	})
	return SaveResultsError(res)
}

func algorithmFor(assessment *domain.Assessment, riskUC *ComputeRiskUseCase) string {
	if assessment.AlgorithmVersion != "" {
		return assessment.AlgorithmVersion
	}
	return riskUC.DefaultAlgorithm()
}

func bundleScores(bundle *domain.RiskBundle) map[string]any {
	factors := make(map[string]any, len(bundle.RiskScore.Factors))
	for _, f := range bundle.RiskScore.Factors {
		factors[f.Key] = f.Score
	}
	return map[string]any{
		"overall": bundle.RiskScore.Overall,
		"level":   string(bundle.RiskScore.Level),
		"factors": factors,
	}
}

// decodeModel reads one risk model whether it is still a typed value or was
// round-tripped through JSON by the store.
func decodeModel(models map[string]any, key string, out any) error {
	raw, ok := models[key]
	if !ok || raw == nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode risk model", errors.New(key+" is missing"))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode risk model %s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode risk model "+key, err)
	}
	return nil
}
