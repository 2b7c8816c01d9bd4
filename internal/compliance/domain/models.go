// Package domain contains compliance check results, alerts, and risk scores.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Severity classifies a finding. Only error and critical findings may
// generate a user-facing alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alertable reports whether findings of this severity may notify users.
func (s Severity) Alertable() bool {
	return s == SeverityError || s == SeverityCritical
}

// CheckResult is the outcome of one compliance rule evaluated against
// current ledger state. Checks never mutate state.
type CheckResult struct {
	RuleName string   `json:"rule_name"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message"`
}

// Report aggregates one compliance run for an organization.
type Report struct {
	OrgID        snowflake.ID  `json:"org_id"`
	Jurisdiction string        `json:"jurisdiction"`
	Results      []CheckResult `json:"results"`
	OverallPass  bool          `json:"overall_pass"`
	RanAt        time.Time     `json:"ran_at"`
}

// Alert is a persisted compliance finding. The row doubles as the
// deduplication record: a rule that alerted inside the dedup window is
// suppressed, not re-raised.
type Alert struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index:ix_compliance_alerts_dedup,priority:1"`
	RuleName  string       `gorm:"type:text;not null;index:ix_compliance_alerts_dedup,priority:2"`
	Severity  Severity     `gorm:"type:text;not null"`
	Message   string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;index:ix_compliance_alerts_dedup,priority:3"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "compliance_alerts" }

// RiskBand buckets a 0-100 risk score.
type RiskBand string

const (
	RiskBandLow      RiskBand = "low"
	RiskBandMedium   RiskBand = "medium"
	RiskBandHigh     RiskBand = "high"
	RiskBandCritical RiskBand = "critical"
)

// BandForScore maps a score to its band: <25 low, <50 medium, <75 high,
// otherwise critical.
func BandForScore(score int) RiskBand {
	switch {
	case score < 25:
		return RiskBandLow
	case score < 50:
		return RiskBandMedium
	case score < 75:
		return RiskBandHigh
	default:
		return RiskBandCritical
	}
}

// RiskScore is derived per request, never persisted as ground truth.
type RiskScore struct {
	OrgID snowflake.ID `json:"org_id"`
	Score int          `json:"score"`
	Band  RiskBand     `json:"band"`
	// Sub-scores, each 0-100 before weighting.
	OverdraftScore      int       `json:"overdraft_score"`
	ReconciliationScore int       `json:"reconciliation_score"`
	VelocityScore       int       `json:"velocity_score"`
	ComputedAt          time.Time `json:"computed_at"`
}

// PredictiveBalance projects when a ledger runs dry from its recent
// disbursement velocity. It is a forecast, never a guarantee; Kind is always
// "projection" so downstream surfaces cannot present it as fact.
type PredictiveBalance struct {
	ClientLedgerID    snowflake.ID    `json:"client_ledger_id"`
	Balance           decimal.Decimal `json:"balance"`
	DailyDisbursement decimal.Decimal `json:"daily_disbursement"`
	DepletionDate     *time.Time      `json:"depletion_date,omitempty"`
	Kind              string          `json:"kind"`
}

// ProjectionKind is the fixed Kind value on every PredictiveBalance.
const ProjectionKind = "projection"
