package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	"github.com/lexfirma/trustledger/internal/money"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"gorm.io/gorm"
)

// RunCheckBatch prints checks against a trust account. Check numbers are
// reserved up front as one contiguous block; an item that fails leaves a gap
// in the printed sequence rather than handing its number to a later check.
func (s *Service) RunCheckBatch(ctx context.Context, req trustdomain.CheckRunRequest) (trustdomain.CheckRunResult, error) {
	if req.OrgID == 0 {
		return trustdomain.CheckRunResult{}, auditdomain.ErrInvalidOrganization
	}
	if len(req.Items) == 0 {
		return trustdomain.CheckRunResult{}, trustdomain.ErrInvalidTransaction
	}

	account, err := s.GetTrustAccount(ctx, req.OrgID, req.TrustAccountID)
	if err != nil {
		return trustdomain.CheckRunResult{}, err
	}
	if account.Status != trustdomain.AccountStatusActive {
		return trustdomain.CheckRunResult{}, trustdomain.ErrAccountClosed
	}

	var result trustdomain.CheckRunResult
	firstNumber, err := s.reserveCheckNumbers(ctx, account.ID, int64(len(req.Items)))
	if err != nil {
		return trustdomain.CheckRunResult{}, err
	}

	batch := trustdomain.CheckBatch{
		ID:             s.genID.Generate(),
		OrgID:          req.OrgID,
		TrustAccountID: account.ID,
		Reference:      uuid.NewString(),
		CreatedBy:      req.PerformedBy,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&batch).Error; err != nil {
		return trustdomain.CheckRunResult{}, err
	}
	result.Batch = batch

	for i, item := range req.Items {
		number := firstNumber + int64(i)
		check, err := s.printCheck(ctx, req, batch, item, number)
		if err != nil {
			result.Failed = append(result.Failed, trustdomain.BatchFailure{
				Index:  i,
				Reason: err.Error(),
				Err:    err,
			})
			continue
		}
		result.Checks = append(result.Checks, check)
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "trust.check_batch_run", "check_batch", batch.ID, map[string]any{
		"printed": len(result.Checks),
		"failed":  len(result.Failed),
	})
	return result, nil
}

// reserveCheckNumbers advances the per-account allocator by count and returns
// the first reserved number. Reserved numbers are consumed whether or not
// their check prints.
func (s *Service) reserveCheckNumbers(ctx context.Context, accountID snowflake.ID, count int64) (int64, error) {
	var first int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Exec(
			`UPDATE check_number_sequences
			 SET next_number = next_number + ?, updated_at = ?
			 WHERE trust_account_id = ?`,
			count, time.Now().UTC(), accountID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			seq := trustdomain.CheckNumberSequence{
				TrustAccountID: accountID,
				NextNumber:     1 + count,
				UpdatedAt:      time.Now().UTC(),
			}
			if err := tx.WithContext(ctx).Create(&seq).Error; err != nil {
				return err
			}
			first = 1
			return nil
		}

		var seq trustdomain.CheckNumberSequence
		if err := tx.WithContext(ctx).First(&seq, "trust_account_id = ?", accountID).Error; err != nil {
			return err
		}
		first = seq.NextNumber - count
		return nil
	})
	return first, err
}

func (s *Service) printCheck(ctx context.Context, req trustdomain.CheckRunRequest, batch trustdomain.CheckBatch, item trustdomain.CheckRunItem, number int64) (trustdomain.Check, error) {
	var check trustdomain.Check
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		description := item.Description
		if description == "" {
			description = fmt.Sprintf("Check #%d to %s", number, item.Payee)
		}
		txn, err := s.ApplyTransactionInTx(ctx, tx, trustdomain.ApplyTransactionRequest{
			OrgID:           req.OrgID,
			TrustAccountID:  req.TrustAccountID,
			ClientLedgerID:  item.ClientLedgerID,
			Type:            trustdomain.TransactionTypeDisbursement,
			Amount:          item.Amount,
			Description:     description,
			PaymentMethod:   "check",
			ReferenceNumber: fmt.Sprintf("%d", number),
			PerformedBy:     req.PerformedBy,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		check = trustdomain.Check{
			ID:                 s.genID.Generate(),
			CheckBatchID:       batch.ID,
			TrustAccountID:     req.TrustAccountID,
			TrustTransactionID: txn.ID,
			Number:             number,
			Payee:              item.Payee,
			Amount:             item.Amount,
			Status:             trustdomain.CheckStatusPrinted,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.WithContext(ctx).Create(&check).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&trustdomain.TrustTransaction{}).
			Where("id = ?", txn.ID).
			Update("check_id", check.ID).Error
	})
	return check, err
}

// VoidCheck marks a check voided and restores the client ledger with an
// offsetting deposit. The original transaction is never edited and the check
// number is never reissued.
func (s *Service) VoidCheck(ctx context.Context, orgID, checkID, performedBy snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var check trustdomain.Check
		if err := tx.WithContext(ctx).First(&check, "id = ?", checkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return trustdomain.ErrCheckNotFound
			}
			return err
		}
		if check.Status == trustdomain.CheckStatusVoided {
			return trustdomain.ErrCheckAlreadyVoided
		}

		var txn trustdomain.TrustTransaction
		if err := tx.WithContext(ctx).First(&txn, "id = ?", check.TrustTransactionID).Error; err != nil {
			return err
		}
		if txn.OrgID != orgID {
			return trustdomain.ErrCheckNotFound
		}

		if _, err := s.ApplyTransactionInTx(ctx, tx, trustdomain.ApplyTransactionRequest{
			OrgID:           orgID,
			TrustAccountID:  txn.TrustAccountID,
			ClientLedgerID:  txn.ClientLedgerID,
			Type:            trustdomain.TransactionTypeDeposit,
			Amount:          check.Amount,
			Description:     fmt.Sprintf("Void check #%d (%s)", check.Number, money.Format(check.Amount)),
			PaymentMethod:   "check",
			ReferenceNumber: fmt.Sprintf("%d", check.Number),
			PerformedBy:     performedBy,
		}); err != nil {
			return err
		}

		return tx.WithContext(ctx).Model(&trustdomain.Check{}).
			Where("id = ?", check.ID).
			Updates(map[string]any{
				"status":     trustdomain.CheckStatusVoided,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.audit(ctx, orgID, performedBy, "trust.check_voided", "check", checkID, nil)
	return nil
}
