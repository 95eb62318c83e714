package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/escalation"
)

// EscalationMetrics counts emitted red flags.
type EscalationMetrics interface {
	ObserveEscalation(result domain.EscalationResult)
}

type DetectEscalationUseCase struct {
	detector *escalation.Detector
	metrics  EscalationMetrics
	logger   *slog.Logger
}

func NewDetectEscalationUseCase(detector *escalation.Detector, metrics EscalationMetrics, logger *slog.Logger) *DetectEscalationUseCase {
	if detector == nil {
		detector = escalation.NewDetector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectEscalationUseCase{detector: detector, metrics: metrics, logger: logger}
}

func (uc *DetectEscalationUseCase) Detect(_ context.Context, input domain.EscalationInput) (*domain.EscalationResult, error) {
	result := uc.detector.Detect(input)
	if uc.metrics != nil {
		uc.metrics.ObserveEscalation(result)
	}
	if result.ShouldEscalate {
		severity := escalation.GetHighestSeverity(result.RedFlags)
		uc.logger.Warn("escalation required",
			"assessment_id", input.AssessmentID,
			"report_id", input.ReportID,
			"correlation_id", result.CorrelationID,
			"red_flags", len(result.RedFlags),
			"highest_severity", *severity,
		)
	}
	return &result, nil
}
