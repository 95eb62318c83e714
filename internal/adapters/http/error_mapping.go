package httpadapter

import (
	"net/http"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrUnknownAnswerKey),
		domain.IsKind(err, domain.ErrUnsupportedAlgorithmVersion),
		domain.IsKind(err, domain.ErrInvalidAnswerValue),
		domain.IsKind(err, domain.ErrRuleConfigInvalid),
		domain.IsKind(err, domain.ErrRuleGuardViolation):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrJobNotFound),
		domain.IsKind(err, domain.ErrAssessmentNotFound),
		domain.IsKind(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateJob), domain.IsKind(err, domain.ErrStaleJob):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
