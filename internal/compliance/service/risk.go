package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	compliancedomain "github.com/lexfirma/trustledger/internal/compliance/domain"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/shopspring/decimal"
)

// Sub-score weights. Overdraft history dominates because a shortfall is the
// finding regulators act on; staleness and velocity are leading indicators.
const (
	weightOverdraft      = 40
	weightReconciliation = 35
	weightVelocity       = 25
)

// CalculateRiskScore recomputes the 0-100 organization risk score from
// current state. It is derived on demand and never stored as ground truth.
func (s *Service) CalculateRiskScore(ctx context.Context, orgID snowflake.ID) (compliancedomain.RiskScore, error) {
	if orgID == 0 {
		return compliancedomain.RiskScore{}, auditdomain.ErrInvalidOrganization
	}
	now := s.clock.Now()

	overdraft, err := s.overdraftScore(ctx, orgID, now)
	if err != nil {
		return compliancedomain.RiskScore{}, err
	}
	staleness, err := s.reconciliationScore(ctx, orgID, now)
	if err != nil {
		return compliancedomain.RiskScore{}, err
	}
	velocity, err := s.velocityScore(ctx, orgID, now)
	if err != nil {
		return compliancedomain.RiskScore{}, err
	}

	score := (overdraft*weightOverdraft + staleness*weightReconciliation + velocity*weightVelocity) / 100
	return compliancedomain.RiskScore{
		OrgID:               orgID,
		Score:               score,
		Band:                compliancedomain.BandForScore(score),
		OverdraftScore:      overdraft,
		ReconciliationScore: staleness,
		VelocityScore:       velocity,
		ComputedAt:          now,
	}, nil
}

// overdraftScore counts unbalanced reconciliations inside the velocity
// window; each one is a recorded shortfall event.
func (s *Service) overdraftScore(ctx context.Context, orgID snowflake.ID, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -s.cfg.VelocityWindowDays)
	var count int64
	err := s.db.WithContext(ctx).Model(&trustdomain.Reconciliation{}).
		Where("org_id = ? AND balanced = ? AND reconciled_at > ?", orgID, false, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return clampScore(int(count) * 25), nil
}

// reconciliationScore scales with the worst staleness across active
// accounts: 0 at fully current, 100 at twice the allowed window.
func (s *Service) reconciliationScore(ctx context.Context, orgID snowflake.ID, now time.Time) (int, error) {
	var accounts []trustdomain.TrustAccount
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, trustdomain.AccountStatusActive).
		Find(&accounts).Error
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	window := float64(s.cfg.ReconciliationWindowDays)
	worst := 0
	for _, a := range accounts {
		var staleDays float64
		if a.LastReconciledAt == nil {
			staleDays = now.Sub(a.CreatedAt).Hours() / 24
		} else {
			staleDays = now.Sub(*a.LastReconciledAt).Hours() / 24
		}
		score := clampScore(int(staleDays / (2 * window) * 100))
		if score > worst {
			worst = score
		}
	}
	return worst, nil
}

// velocityScore compares the last 30 days of disbursement volume to the
// trailing-window daily average; sustained spikes score high.
func (s *Service) velocityScore(ctx context.Context, orgID snowflake.ID, now time.Time) (int, error) {
	windowStart := now.AddDate(0, 0, -s.cfg.VelocityWindowDays)
	recentStart := now.AddDate(0, 0, -30)

	windowTotal, err := s.disbursementTotal(ctx, orgID, windowStart, now)
	if err != nil {
		return 0, err
	}
	if windowTotal.IsZero() {
		return 0, nil
	}
	recentTotal, err := s.disbursementTotal(ctx, orgID, recentStart, now)
	if err != nil {
		return 0, err
	}

	windowDaily := windowTotal.Div(decimal.NewFromInt(int64(s.cfg.VelocityWindowDays)))
	recentDaily := recentTotal.Div(decimal.NewFromInt(30))
	if windowDaily.IsZero() {
		return 0, nil
	}

	// Ratio 1.0 means steady state; 3x or more maxes the sub-score.
	ratio, _ := recentDaily.Div(windowDaily).Float64()
	if ratio <= 1 {
		return 0, nil
	}
	return clampScore(int((ratio - 1) / 2 * 100)), nil
}

func (s *Service) disbursementTotal(ctx context.Context, orgID snowflake.ID, from, to time.Time) (decimal.Decimal, error) {
	var raw string
	row := s.db.WithContext(ctx).
		Table("trust_transactions").
		Where("org_id = ? AND type IN ? AND transaction_date > ? AND transaction_date <= ?",
			orgID,
			[]trustdomain.TransactionType{trustdomain.TransactionTypeDisbursement, trustdomain.TransactionTypeTransferToOperating},
			from, to,
		).
		Select("COALESCE(SUM(amount), 0)").
		Row()
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PredictiveTrustBalances linearly projects each active ledger's depletion
// date from its recent disbursement velocity. Every result is marked as a
// projection; it is a forecast, not a statement of fact.
func (s *Service) PredictiveTrustBalances(ctx context.Context, orgID snowflake.ID) ([]compliancedomain.PredictiveBalance, error) {
	if orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	now := s.clock.Now()
	windowStart := now.AddDate(0, 0, -s.cfg.VelocityWindowDays)

	var ledgers []trustdomain.ClientLedger
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, trustdomain.LedgerStatusActive).
		Find(&ledgers).Error
	if err != nil {
		return nil, err
	}

	out := make([]compliancedomain.PredictiveBalance, 0, len(ledgers))
	for _, ledger := range ledgers {
		var raw string
		row := s.db.WithContext(ctx).
			Table("trust_transactions").
			Where("client_ledger_id = ? AND type IN ? AND transaction_date > ?",
				ledger.ID,
				[]trustdomain.TransactionType{trustdomain.TransactionTypeDisbursement, trustdomain.TransactionTypeTransferToOperating},
				windowStart,
			).
			Select("COALESCE(SUM(amount), 0)").
			Row()
		if err := row.Scan(&raw); err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}

		daily := total.Div(decimal.NewFromInt(int64(s.cfg.VelocityWindowDays))).Round(2)
		pb := compliancedomain.PredictiveBalance{
			ClientLedgerID:    ledger.ID,
			Balance:           ledger.Balance,
			DailyDisbursement: daily,
			Kind:              compliancedomain.ProjectionKind,
		}
		if daily.IsPositive() && ledger.Balance.IsPositive() {
			days, _ := ledger.Balance.Div(daily).Float64()
			depletion := now.AddDate(0, 0, int(days))
			pb.DepletionDate = &depletion
		}
		out = append(out, pb)
	}
	return out, nil
}
