package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/results"
)

// hashedInputs is what the inputs hash covers. Risk models are left out
// because they carry calculation timestamps and correlation ids.
type hashedInputs struct {
	AlgorithmVersion string                  `json:"algorithm_version"`
	Inputs           any                     `json:"inputs"`
	PriorityRanking  *domain.PriorityRanking `json:"priority_ranking"`
}

type SaveResultsUseCase struct {
	repo   ports.ResultRepository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewSaveResultsUseCase(repo ports.ResultRepository, logger *slog.Logger) *SaveResultsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveResultsUseCase{repo: repo, logger: logger, now: time.Now, newID: uuid.NewString}
}

// ComputeInputsHash returns the idempotency key of req.
func ComputeInputsHash(req domain.SaveResultsRequest) (string, error) {
	inputs := req.InputsData
	if inputs == nil {
		inputs = req.Scores
	}
	return results.InputsHash(hashedInputs{
		AlgorithmVersion: req.AlgorithmVersion,
		Inputs:           inputs,
		PriorityRanking:  req.PriorityRanking,
	})
}

// Save writes the result for (assessment, algorithm version). A request whose
// inputs hash equals the stored one is a no-op returning the stored id.
func (uc *SaveResultsUseCase) Save(ctx context.Context, req domain.SaveResultsRequest) domain.SaveResultsResult {
	result, err := uc.save(ctx, req)
	if err != nil {
		uc.logger.Warn("save calculated results failed",
			"assessment_id", req.AssessmentID,
			"algorithm_version", req.AlgorithmVersion,
			"code", domain.ErrorCode(err),
		)
		return domain.SaveResultsResult{Success: false, Error: err.Error(), Code: domain.ErrorCode(err)}
	}
	return result
}

func (uc *SaveResultsUseCase) save(ctx context.Context, req domain.SaveResultsRequest) (domain.SaveResultsResult, error) {
	const op = "save calculated results"

	switch {
	case req.AssessmentID == "":
		return domain.SaveResultsResult{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("assessment_id is required"))
	case req.AlgorithmVersion == "":
		return domain.SaveResultsResult{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("algorithm_version is required"))
	case len(req.Scores) == 0:
		return domain.SaveResultsResult{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("scores must not be empty"))
	}

	hash, err := ComputeInputsHash(req)
	if err != nil {
		return domain.SaveResultsResult{}, domain.WrapError(domain.ErrInvalidInput, op, err)
	}

	existing, err := uc.repo.GetResult(ctx, req.AssessmentID, req.AlgorithmVersion)
	switch {
	case err == nil:
		if existing.InputsHash == hash {
			return domain.SaveResultsResult{Success: true, ResultID: existing.ID, IsNew: false}, nil
		}
	case domain.IsKind(err, domain.ErrResultNotFound):
		existing = nil
	default:
		return domain.SaveResultsResult{}, err
	}

	id := uc.newID()
	if existing != nil {
		id = existing.ID
	}
	stored, err := uc.repo.UpsertResult(ctx, &domain.CalculatedResult{
		ID:               id,
		AssessmentID:     req.AssessmentID,
		AlgorithmVersion: req.AlgorithmVersion,
		Scores:           req.Scores,
		RiskModels:       req.RiskModels,
		PriorityRanking:  req.PriorityRanking,
		InputsHash:       hash,
		ComputedAt:       uc.now().UTC(),
	})
	if err != nil {
		return domain.SaveResultsResult{}, err
	}

	uc.logger.Info("calculated results saved",
		"assessment_id", req.AssessmentID,
		"algorithm_version", req.AlgorithmVersion,
		"result_id", stored,
	)
	return domain.SaveResultsResult{Success: true, ResultID: stored, IsNew: true}, nil
}

// SaveResultsError turns a failed SaveResultsResult back into a typed error.
func SaveResultsError(res domain.SaveResultsResult) error {
	if res.Success {
		return nil
	}
	switch res.Code {
	case domain.CodeValidation:
		return domain.WrapError(domain.ErrInvalidInput, "save calculated results", errors.New(res.Error))
	case domain.CodeTemporary:
		return domain.WrapError(domain.ErrTemporary, "save calculated results", errors.New(res.Error))
	default:
		return errors.New(res.Error)
	}
}
