package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Each derivation encodes a fixed double-entry mapping. The mappings are not
// exempt from validation: every request still passes through
// ValidateLines/ValidateBalanced in CreateEntryInTx.

// CreateFromInvoice posts invoice issuance: AR up by the total, fee income by
// the subtotal, tax payable by the tax.
func (s *Service) CreateFromInvoice(ctx context.Context, tx *gorm.DB, ev journaldomain.BillingEvent) (journaldomain.JournalEntry, error) {
	lines := []journaldomain.LineInput{
		{AccountCode: journaldomain.AccountCodeAccountsReceivable, Debit: ev.Total},
		{AccountCode: journaldomain.AccountCodeLegalFeeIncome, Credit: ev.Subtotal},
	}
	if ev.Tax.IsPositive() {
		lines = append(lines, journaldomain.LineInput{
			AccountCode: journaldomain.AccountCodeTaxPayable, Credit: ev.Tax,
		})
	}
	return s.CreateEntryInTx(ctx, tx, journaldomain.CreateEntryRequest{
		OrgID:       ev.OrgID,
		Type:        journaldomain.JournalTypeStandard,
		Description: ev.Description,
		PostedDate:  ev.Date,
		SourceType:  journaldomain.SourceTypeInvoice,
		SourceID:    &ev.SourceID,
		Lines:       lines,
		PerformedBy: ev.PerformedBy,
	})
}

// CreateFromPayment posts a payment received: cash up, AR down.
func (s *Service) CreateFromPayment(ctx context.Context, tx *gorm.DB, ev journaldomain.BillingEvent) (journaldomain.JournalEntry, error) {
	return s.CreateEntryInTx(ctx, tx, journaldomain.CreateEntryRequest{
		OrgID:       ev.OrgID,
		Type:        journaldomain.JournalTypeStandard,
		Description: ev.Description,
		PostedDate:  ev.Date,
		SourceType:  journaldomain.SourceTypePayment,
		SourceID:    &ev.SourceID,
		Lines: []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeOperatingCash, Debit: ev.Total},
			{AccountCode: journaldomain.AccountCodeAccountsReceivable, Credit: ev.Total},
		},
		PerformedBy: ev.PerformedBy,
	})
}

// CreateFromExpense posts a firm expense: expense up, cash down.
func (s *Service) CreateFromExpense(ctx context.Context, tx *gorm.DB, ev journaldomain.BillingEvent) (journaldomain.JournalEntry, error) {
	return s.CreateEntryInTx(ctx, tx, journaldomain.CreateEntryRequest{
		OrgID:       ev.OrgID,
		Type:        journaldomain.JournalTypeStandard,
		Description: ev.Description,
		PostedDate:  ev.Date,
		SourceType:  journaldomain.SourceTypeExpense,
		SourceID:    &ev.SourceID,
		Lines: []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeExpense, Debit: ev.Total},
			{AccountCode: journaldomain.AccountCodeOperatingCash, Credit: ev.Total},
		},
		PerformedBy: ev.PerformedBy,
	})
}

// CreateFromVendorPayment posts settlement of a vendor bill: payable down,
// cash down.
func (s *Service) CreateFromVendorPayment(ctx context.Context, tx *gorm.DB, ev journaldomain.BillingEvent) (journaldomain.JournalEntry, error) {
	return s.CreateEntryInTx(ctx, tx, journaldomain.CreateEntryRequest{
		OrgID:       ev.OrgID,
		Type:        journaldomain.JournalTypeStandard,
		Description: ev.Description,
		PostedDate:  ev.Date,
		SourceType:  journaldomain.SourceTypeVendorPayment,
		SourceID:    &ev.SourceID,
		Lines: []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeAccountsPayable, Debit: ev.Total},
			{AccountCode: journaldomain.AccountCodeOperatingCash, Credit: ev.Total},
		},
		PerformedBy: ev.PerformedBy,
	})
}

// CreateFromTrustTransaction posts the trust-side mirror of a trust
// transaction. Client funds are a liability of the firm: deposits grow trust
// cash and the liability together; disbursements, refunds and transfers to
// operating shrink both. A transfer's operating receipt is not booked here,
// the payment entry carries it, otherwise operating cash and fee income
// would post twice for a trust-paid invoice.
func (s *Service) CreateFromTrustTransaction(ctx context.Context, tx *gorm.DB, ev journaldomain.TrustEvent) (journaldomain.JournalEntry, error) {
	var lines []journaldomain.LineInput
	switch ev.Type {
	case "deposit":
		lines = []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeTrustCash, Debit: ev.Amount},
			{AccountCode: journaldomain.AccountCodeClientTrustLiability, Credit: ev.Amount},
		}
	case "interest":
		lines = []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeTrustCash, Debit: ev.Amount},
			{AccountCode: journaldomain.AccountCodeClientTrustLiability, Credit: ev.Amount},
		}
	case "disbursement", "refund", "transfer_to_operating":
		lines = []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeClientTrustLiability, Debit: ev.Amount},
			{AccountCode: journaldomain.AccountCodeTrustCash, Credit: ev.Amount},
		}
	default:
		return journaldomain.JournalEntry{}, fmt.Errorf("%w: unknown trust transaction type %q", journaldomain.ErrInvalidType, ev.Type)
	}

	return s.CreateEntryInTx(ctx, tx, journaldomain.CreateEntryRequest{
		OrgID:       ev.OrgID,
		Type:        journaldomain.JournalTypeStandard,
		Description: ev.Description,
		PostedDate:  ev.Date,
		SourceType:  journaldomain.SourceTypeTrustTransaction,
		SourceID:    &ev.TransactionID,
		Lines:       lines,
		PerformedBy: ev.PerformedBy,
	})
}

// pendingTrustRow is the projection swept by ProcessPendingEntries.
type pendingTrustRow struct {
	ID              snowflake.ID
	OrgID           snowflake.ID
	Type            string
	Amount          string
	Description     string
	TransactionDate time.Time
	CreatedBy       snowflake.ID
}

// ProcessPendingEntries derives journal entries for trust transactions whose
// journal_entry_id is still null. Safe to re-run: derivation is idempotent on
// (org, source_type, source_id) and each sweep item commits independently.
func (s *Service) ProcessPendingEntries(ctx context.Context, orgID snowflake.ID, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	stmt := s.db.WithContext(ctx).
		Table("trust_transactions").
		Select("id", "org_id", "type", "amount", "description", "transaction_date", "created_by").
		Where("journal_entry_id IS NULL").
		Order("id asc").
		Limit(limit)
	if orgID != 0 {
		stmt = stmt.Where("org_id = ?", orgID)
	}

	var rows []pendingTrustRow
	if err := stmt.Scan(&rows).Error; err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		amount, err := parseStoredAmount(row.Amount)
		if err != nil {
			s.log.Error("skipping trust transaction with unparseable amount",
				zap.String("transaction_id", row.ID.String()), zap.Error(err))
			continue
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, derr := s.CreateFromTrustTransaction(ctx, tx, journaldomain.TrustEvent{
				TransactionID: row.ID,
				OrgID:         row.OrgID,
				Type:          row.Type,
				Amount:        amount,
				Description:   row.Description,
				Date:          row.TransactionDate,
				PerformedBy:   row.CreatedBy,
			})
			if derr != nil {
				return derr
			}
			return tx.WithContext(ctx).
				Table("trust_transactions").
				Where("id = ?", row.ID).
				Update("journal_entry_id", entry.ID).Error
		})
		if err != nil {
			// One bad source row must not abort the sweep.
			s.log.Error("failed to derive journal entry",
				zap.String("transaction_id", row.ID.String()), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}
