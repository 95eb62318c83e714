// Package safety evaluates structured intake against red-flag indicators,
// built-in safety rules and organization-configured rule versions.
package safety

import (
	"strings"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// Evidence field names a configured rule may restrict itself to.
const (
	FieldChiefComplaint      = "chief_complaint"
	FieldHPIOnset            = "hpi.onset"
	FieldHPIDuration         = "hpi.duration"
	FieldHPICourse           = "hpi.course"
	FieldHPISeverity         = "hpi.severity"
	FieldHPILocation         = "hpi.location"
	FieldHPICharacter        = "hpi.character"
	FieldHPIAssociated       = "hpi.associated_symptoms"
	FieldRelevantNegatives   = "relevant_negatives"
	FieldMedications         = "medications"
	FieldPsychosocialFactors = "psychosocial_factors"
	FieldUncertainties       = "uncertainties"
	FieldVerbatimMessages    = "verbatim_messages"
)

// DefaultEvidenceFields is the evidence read when a rule declares no field list.
var DefaultEvidenceFields = []string{
	FieldChiefComplaint,
	FieldHPIOnset,
	FieldHPIDuration,
	FieldHPICourse,
	FieldHPISeverity,
	FieldHPILocation,
	FieldHPICharacter,
	FieldHPIAssociated,
	FieldRelevantNegatives,
	FieldMedications,
	FieldPsychosocialFactors,
	FieldVerbatimMessages,
}

var allowedEvidenceFields = func() map[string]struct{} {
	out := make(map[string]struct{}, len(DefaultEvidenceFields)+1)
	for _, f := range DefaultEvidenceFields {
		out[f] = struct{}{}
	}
	out[FieldUncertainties] = struct{}{}
	return out
}()

func IsAllowedEvidenceField(name string) bool {
	_, ok := allowedEvidenceFields[name]
	return ok
}

// Normalize lower-cases and joins the selected evidence fields, in the order
// given, into one string. A nil field list selects DefaultEvidenceFields.
func Normalize(intake domain.StructuredIntake, messages []string, fields []string) string {
	if fields == nil {
		fields = DefaultEvidenceFields
	}
	hpi := intake.HPI
	if hpi == nil {
		hpi = &domain.HistoryOfPresentIllness{}
	}

	parts := make([]string, 0, len(fields))
	add := func(values ...string) {
		for _, v := range values {
			if v = collapseSpace(v); v != "" {
				parts = append(parts, v)
			}
		}
	}
	for _, field := range fields {
		switch field {
		case FieldChiefComplaint:
			add(intake.ChiefComplaint)
		case FieldHPIOnset:
			add(hpi.Onset)
		case FieldHPIDuration:
			add(hpi.Duration)
		case FieldHPICourse:
			add(hpi.Course)
		case FieldHPISeverity:
			add(hpi.Severity)
		case FieldHPILocation:
			add(hpi.Location)
		case FieldHPICharacter:
			add(hpi.Character)
		case FieldHPIAssociated:
			add(hpi.AssociatedSymptoms...)
		case FieldRelevantNegatives:
			add(intake.RelevantNegatives...)
		case FieldMedications:
			add(intake.Medications...)
		case FieldPsychosocialFactors:
			add(intake.PsychosocialFactors...)
		case FieldUncertainties:
			add(intake.Uncertainties...)
		case FieldVerbatimMessages:
			add(messages...)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
