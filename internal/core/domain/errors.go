package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput                = errors.New("invalid input")
	ErrJobNotFound                 = errors.New("processing job not found")
	ErrAssessmentNotFound          = errors.New("assessment not found")
	ErrResultNotFound              = errors.New("calculated result not found")
	ErrDuplicateJob                = errors.New("processing job already exists")
	ErrStaleJob                    = errors.New("processing job changed since last read")
	ErrTemporary                   = errors.New("temporary failure")
	ErrUnknownAnswerKey            = errors.New("unknown answer key")
	ErrUnsupportedAlgorithmVersion = errors.New("unsupported algorithm version")
	ErrInvalidAnswerValue          = errors.New("invalid answer value")
	ErrRuleConfigInvalid           = errors.New("rule configuration invalid")
	ErrRuleGuardViolation          = errors.New("rule configuration violates safety guard")
)

// Stable error codes returned across the core boundary.
const (
	CodeValidation                  = "VALIDATION_ERROR"
	CodeUnknownAnswerKey            = "UNKNOWN_ANSWER_KEY"
	CodeUnsupportedAlgorithmVersion = "UNSUPPORTED_ALGORITHM_VERSION"
	CodeInvalidAnswerValue          = "INVALID_ANSWER_VALUE"
	CodeRuleConfigInvalid           = "RULE_CONFIG_INVALID"
	CodeRuleGuardViolation          = "RULE_GUARD_VIOLATION"
	CodeJobNotFound                 = "JOB_NOT_FOUND"
	CodeAssessmentNotFound          = "ASSESSMENT_NOT_FOUND"
	CodeResultNotFound              = "RESULT_NOT_FOUND"
	CodeConflict                    = "CONFLICT"
	CodeTemporary                   = "TEMPORARY"
	CodeInternal                    = "INTERNAL"
)

// Order matters: the more specific kinds are checked before ErrInvalidInput.
var errorCodes = []struct {
	kind error
	code string
}{
	{ErrUnknownAnswerKey, CodeUnknownAnswerKey},
	{ErrUnsupportedAlgorithmVersion, CodeUnsupportedAlgorithmVersion},
	{ErrInvalidAnswerValue, CodeInvalidAnswerValue},
	{ErrRuleGuardViolation, CodeRuleGuardViolation},
	{ErrRuleConfigInvalid, CodeRuleConfigInvalid},
	{ErrJobNotFound, CodeJobNotFound},
	{ErrAssessmentNotFound, CodeAssessmentNotFound},
	{ErrResultNotFound, CodeResultNotFound},
	{ErrDuplicateJob, CodeConflict},
	{ErrStaleJob, CodeConflict},
	{ErrTemporary, CodeTemporary},
	{ErrInvalidInput, CodeValidation},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode returns the stable code for err, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return CodeInternal
}
