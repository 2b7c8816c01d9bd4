package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	"github.com/lexfirma/trustledger/internal/clock"
	compliancedomain "github.com/lexfirma/trustledger/internal/compliance/domain"
	"github.com/lexfirma/trustledger/internal/config"
	"github.com/lexfirma/trustledger/internal/notification"
	obsmetrics "github.com/lexfirma/trustledger/internal/observability/metrics"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Sink       notification.Sink
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.ComplianceConfig
	sink       notification.Sink
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) compliancedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("compliance.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config.Compliance,
		sink:       p.Sink,
		obsMetrics: p.ObsMetrics,
	}
}

const (
	RuleReconciliationCurrent = "reconciliation_current"
	RuleLedgersNonNegative    = "ledgers_non_negative"
	RuleLedgerSumMatchesBank  = "ledger_sum_matches_bank"
	RuleReconciliationBalance = "reconciliation_balanced"
	RuleUnreconciledBacklog   = "unreconciled_backlog"
)

// RunComplianceChecks evaluates every rule as a pure read of current state.
// Jurisdiction narrows the rule parameters; an empty jurisdiction uses the
// configured defaults.
func (s *Service) RunComplianceChecks(ctx context.Context, orgID snowflake.ID, jurisdiction string) (compliancedomain.Report, error) {
	if orgID == 0 {
		return compliancedomain.Report{}, auditdomain.ErrInvalidOrganization
	}

	var accounts []trustdomain.TrustAccount
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, trustdomain.AccountStatusActive).
		Find(&accounts).Error; err != nil {
		return compliancedomain.Report{}, err
	}

	now := s.clock.Now()
	results := []compliancedomain.CheckResult{
		s.checkReconciliationCurrent(accounts, now),
		s.checkLedgersNonNegative(ctx, orgID),
		s.checkLedgerSumMatchesBank(ctx, accounts),
		s.checkLastReconciliationBalanced(ctx, accounts),
		s.checkUnreconciledBacklog(ctx, orgID, now),
	}

	overall := true
	for _, r := range results {
		if !r.Passed && (r.Severity == compliancedomain.SeverityError || r.Severity == compliancedomain.SeverityCritical) {
			overall = false
		}
	}
	return compliancedomain.Report{
		OrgID:        orgID,
		Jurisdiction: jurisdiction,
		Results:      results,
		OverallPass:  overall,
		RanAt:        now,
	}, nil
}

func (s *Service) checkReconciliationCurrent(accounts []trustdomain.TrustAccount, now time.Time) compliancedomain.CheckResult {
	window := time.Duration(s.cfg.ReconciliationWindowDays) * 24 * time.Hour
	var stale int
	for _, a := range accounts {
		if a.LastReconciledAt == nil || now.Sub(*a.LastReconciledAt) > window {
			stale++
		}
	}
	result := compliancedomain.CheckResult{
		RuleName: RuleReconciliationCurrent,
		Severity: compliancedomain.SeverityError,
		Passed:   stale == 0,
		Message:  "all trust accounts reconciled within window",
	}
	if stale > 0 {
		result.Message = fmt.Sprintf("%d trust account(s) not reconciled within %d days", stale, s.cfg.ReconciliationWindowDays)
	}
	return result
}

// checkLedgersNonNegative should never fail; the engine rejects overdrafts
// at write time. A hit here means data was mutated outside the engine.
func (s *Service) checkLedgersNonNegative(ctx context.Context, orgID snowflake.ID) compliancedomain.CheckResult {
	var count int64
	err := s.db.WithContext(ctx).Model(&trustdomain.ClientLedger{}).
		Where("org_id = ? AND balance < 0", orgID).
		Count(&count).Error
	if err != nil {
		return errorResult(RuleLedgersNonNegative, err)
	}
	result := compliancedomain.CheckResult{
		RuleName: RuleLedgersNonNegative,
		Severity: compliancedomain.SeverityCritical,
		Passed:   count == 0,
		Message:  "no client ledger is overdrawn",
	}
	if count > 0 {
		result.Message = fmt.Sprintf("%d client ledger(s) carry a negative balance", count)
	}
	return result
}

func (s *Service) checkLedgerSumMatchesBank(ctx context.Context, accounts []trustdomain.TrustAccount) compliancedomain.CheckResult {
	var mismatched int
	for _, a := range accounts {
		if a.LastReconciledAt == nil {
			continue
		}
		var raw string
		row := s.db.WithContext(ctx).
			Table("client_ledgers").
			Where("trust_account_id = ? AND status = ?", a.ID, trustdomain.LedgerStatusActive).
			Select("COALESCE(SUM(balance), 0)").
			Row()
		if err := row.Scan(&raw); err != nil {
			return errorResult(RuleLedgerSumMatchesBank, err)
		}
		sum, err := decimal.NewFromString(raw)
		if err != nil {
			return errorResult(RuleLedgerSumMatchesBank, err)
		}
		if !sum.Equal(a.RecordedBalance) {
			mismatched++
		}
	}
	result := compliancedomain.CheckResult{
		RuleName: RuleLedgerSumMatchesBank,
		Severity: compliancedomain.SeverityWarning,
		Passed:   mismatched == 0,
		Message:  "client ledger sums match recorded bank balances",
	}
	if mismatched > 0 {
		result.Message = fmt.Sprintf("%d account(s) drifted from the recorded bank balance since last reconciliation", mismatched)
	}
	return result
}

func (s *Service) checkLastReconciliationBalanced(ctx context.Context, accounts []trustdomain.TrustAccount) compliancedomain.CheckResult {
	var unbalanced int
	for _, a := range accounts {
		var rec trustdomain.Reconciliation
		err := s.db.WithContext(ctx).
			Where("trust_account_id = ?", a.ID).
			Order("reconciled_at desc").
			First(&rec).Error
		if err != nil {
			continue
		}
		if !rec.Balanced {
			unbalanced++
		}
	}
	result := compliancedomain.CheckResult{
		RuleName: RuleReconciliationBalance,
		Severity: compliancedomain.SeverityError,
		Passed:   unbalanced == 0,
		Message:  "latest reconciliation balanced for every account",
	}
	if unbalanced > 0 {
		result.Message = fmt.Sprintf("%d account(s) have an unbalanced latest reconciliation", unbalanced)
	}
	return result
}

func (s *Service) checkUnreconciledBacklog(ctx context.Context, orgID snowflake.ID, now time.Time) compliancedomain.CheckResult {
	cutoff := now.Add(-time.Duration(s.cfg.ReconciliationWindowDays) * 24 * time.Hour)
	var count int64
	err := s.db.WithContext(ctx).Model(&trustdomain.TrustTransaction{}).
		Where("org_id = ? AND is_reconciled = ? AND transaction_date < ?", orgID, false, cutoff).
		Count(&count).Error
	if err != nil {
		return errorResult(RuleUnreconciledBacklog, err)
	}
	result := compliancedomain.CheckResult{
		RuleName: RuleUnreconciledBacklog,
		Severity: compliancedomain.SeverityWarning,
		Passed:   count == 0,
		Message:  "no aged unreconciled transactions",
	}
	if count > 0 {
		result.Message = fmt.Sprintf("%d transaction(s) older than %d days remain unreconciled", count, s.cfg.ReconciliationWindowDays)
	}
	return result
}

func errorResult(rule string, err error) compliancedomain.CheckResult {
	return compliancedomain.CheckResult{
		RuleName: rule,
		Severity: compliancedomain.SeverityError,
		Passed:   false,
		Message:  fmt.Sprintf("check failed to run: %v", err),
	}
}

// DetectTrustAlerts converts failing error/critical findings into persisted
// alerts. A rule that alerted for this organization inside the dedup window
// is suppressed so repeated sweeps cannot storm the notification sink.
func (s *Service) DetectTrustAlerts(ctx context.Context, orgID snowflake.ID) ([]compliancedomain.Alert, error) {
	report, err := s.RunComplianceChecks(ctx, orgID, "")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(s.cfg.AlertDedupHours) * time.Hour)
	var raised []compliancedomain.Alert
	for _, result := range report.Results {
		if result.Passed || !result.Severity.Alertable() {
			continue
		}

		var recent int64
		err := s.db.WithContext(ctx).Model(&compliancedomain.Alert{}).
			Where("org_id = ? AND rule_name = ? AND created_at > ?", orgID, result.RuleName, cutoff).
			Count(&recent).Error
		if err != nil {
			return nil, err
		}
		if recent > 0 {
			continue
		}

		alert := compliancedomain.Alert{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			RuleName:  result.RuleName,
			Severity:  result.Severity,
			Message:   result.Message,
			CreatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
			return nil, err
		}
		raised = append(raised, alert)
		s.obsMetrics.IncComplianceAlert(string(result.Severity))

		// Delivery is best effort; a lost notification never unwinds the
		// recorded alert.
		if s.sink != nil {
			payload := notification.AlertPayload{
				RuleName: result.RuleName,
				Severity: string(result.Severity),
				Subject:  fmt.Sprintf("Trust compliance alert: %s", result.RuleName),
				Body:     result.Message,
			}
			if err := s.sink.Notify(ctx, 0, payload); err != nil {
				s.log.Warn("alert notification failed",
					zap.String("rule", result.RuleName),
					zap.Error(err),
				)
			}
		}
	}
	return raised, nil
}

// Sweep runs alert detection for every organization holding trust accounts.
// Failures are isolated per tenant.
func (s *Service) Sweep(ctx context.Context) error {
	var orgIDs []snowflake.ID
	err := s.db.WithContext(ctx).Model(&trustdomain.TrustAccount{}).
		Distinct("org_id").
		Pluck("org_id", &orgIDs).Error
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		if _, err := s.DetectTrustAlerts(ctx, orgID); err != nil {
			s.log.Error("compliance sweep failed for organization",
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
