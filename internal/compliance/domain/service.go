package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service is the compliance and risk monitor. All reads tolerate slightly
// stale snapshots; nothing here ever mutates ledger state.
type Service interface {
	// RunComplianceChecks evaluates every rule for the organization against
	// the given jurisdiction's parameters.
	RunComplianceChecks(ctx context.Context, orgID snowflake.ID, jurisdiction string) (Report, error)

	// DetectTrustAlerts raises alerts for failing error/critical checks,
	// suppressing rules that already alerted inside the dedup window.
	DetectTrustAlerts(ctx context.Context, orgID snowflake.ID) ([]Alert, error)

	// CalculateRiskScore aggregates overdraft history, reconciliation
	// staleness, and velocity anomalies into one weighted 0-100 score.
	CalculateRiskScore(ctx context.Context, orgID snowflake.ID) (RiskScore, error)

	// PredictiveTrustBalances projects per-ledger depletion dates from
	// recent disbursement velocity.
	PredictiveTrustBalances(ctx context.Context, orgID snowflake.ID) ([]PredictiveBalance, error)

	// Sweep runs alert detection across all organizations with trust
	// accounts. One organization's failure never aborts the others.
	Sweep(ctx context.Context) error
}
