package usecase

import (
	"context"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/risk"
)

type ComputeRiskUseCase struct {
	calculator       *risk.Calculator
	defaultAlgorithm string
}

func NewComputeRiskUseCase(calculator *risk.Calculator, defaultAlgorithm string) *ComputeRiskUseCase {
	if calculator == nil {
		calculator = risk.NewCalculator(nil)
	}
	return &ComputeRiskUseCase{calculator: calculator, defaultAlgorithm: defaultAlgorithm}
}

func (uc *ComputeRiskUseCase) Compute(_ context.Context, req domain.RiskRequest) (*domain.RiskBundle, error) {
	if req.AlgorithmVersion == "" {
		req.AlgorithmVersion = uc.defaultAlgorithm
	}
	return uc.calculator.Compute(req)
}

func (uc *ComputeRiskUseCase) DefaultAlgorithm() string {
	return uc.defaultAlgorithm
}
