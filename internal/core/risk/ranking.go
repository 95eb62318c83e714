package risk

import (
	"errors"
	"sort"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

const RankingVersion = "1.0.0"

// Rank orders the bundle's factors by weighted contribution and assigns a
// priority tier. A critical red flag always ranks as emergent.
func Rank(bundle *domain.RiskBundle, escalation *domain.EscalationResult) (*domain.PriorityRanking, error) {
	if bundle == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "rank risk bundle", errors.New("risk bundle is required"))
	}

	var weights float64
	for _, f := range bundle.RiskScore.Factors {
		weights += f.Weight
	}
	ranked := make([]domain.RankedFactor, 0, len(bundle.RiskScore.Factors))
	for _, f := range bundle.RiskScore.Factors {
		contribution := 0.0
		if weights > 0 {
			contribution = round2(f.Score * f.Weight / weights)
		}
		ranked = append(ranked, domain.RankedFactor{Key: f.Key, Contribution: contribution})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Contribution != ranked[j].Contribution {
			return ranked[i].Contribution > ranked[j].Contribution
		}
		return ranked[i].Key < ranked[j].Key
	})

	return &domain.PriorityRanking{
		RankingVersion: RankingVersion,
		Tier:           tierFor(bundle.RiskScore.Level, escalation),
		Score:          bundle.RiskScore.Overall,
		Factors:        ranked,
	}, nil
}

func tierFor(level domain.RiskLevel, escalation *domain.EscalationResult) domain.PriorityTier {
	if escalation != nil {
		for _, flag := range escalation.RedFlags {
			if flag.Severity == domain.SeverityCritical {
				return domain.PriorityEmergent
			}
		}
	}
	tier := domain.PriorityRoutine
	switch level {
	case domain.RiskCritical:
		tier = domain.PriorityEmergent
	case domain.RiskHigh:
		tier = domain.PriorityUrgent
	case domain.RiskModerate:
		tier = domain.PrioritySoon
	}
	if tier == domain.PriorityRoutine && escalation != nil && escalation.ShouldEscalate {
		tier = domain.PrioritySoon
	}
	return tier
}
