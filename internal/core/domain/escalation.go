package domain

type RedFlagSeverity string

const (
	SeverityHigh     RedFlagSeverity = "high"
	SeverityCritical RedFlagSeverity = "critical"
)

type RedFlagSource string

const (
	SourceReportRiskLevel RedFlagSource = "report_risk_level"
	SourceSafetyRule      RedFlagSource = "safety_rule"
)

type RedFlag struct {
	Severity    RedFlagSeverity `json:"severity"`
	Source      RedFlagSource   `json:"source"`
	Reason      string          `json:"reason"`
	TriggeredBy string          `json:"triggered_by,omitempty"`
}

type EscalationInput struct {
	AssessmentID string            `json:"assessment_id"`
	ReportID     string            `json:"report_id,omitempty"`
	RiskLevel    *RiskLevel        `json:"risk_level"`
	Safety       *SafetyEvaluation `json:"safety,omitempty"`
}

type EscalationResult struct {
	ShouldEscalate bool      `json:"should_escalate"`
	RedFlags       []RedFlag `json:"red_flags"`
	CorrelationID  string    `json:"correlation_id"`
}
