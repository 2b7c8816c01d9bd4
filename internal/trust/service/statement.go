package service

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/lexfirma/trustledger/internal/providers/pdf"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/shopspring/decimal"
)

const statementDateLayout = "2006-01-02"

// StatementPDF renders one client ledger's activity for the period as a PDF.
// Opening balance is reconstructed by replaying the period's transactions
// backwards from the current balance.
func (s *Service) StatementPDF(ctx context.Context, req trustdomain.StatementRequest) (io.Reader, error) {
	if s.pdfProvider == nil {
		return nil, trustdomain.ErrStatementsUnavailable
	}
	ledger, err := s.GetClientLedger(ctx, req.OrgID, req.ClientLedgerID)
	if err != nil {
		return nil, err
	}
	account, err := s.GetTrustAccount(ctx, req.OrgID, ledger.TrustAccountID)
	if err != nil {
		return nil, err
	}

	to := req.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := req.From
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}

	var txns []trustdomain.TrustTransaction
	err = s.db.WithContext(ctx).
		Where("client_ledger_id = ? AND transaction_date >= ? AND transaction_date <= ?",
			ledger.ID, from.UTC(), to.UTC()).
		Order("transaction_date asc, id asc").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}

	// Net of later activity gives the balance at period end; walking the
	// period's net back from there gives the opening balance.
	laterNet, err := s.netAfter(ctx, ledger.ID, to)
	if err != nil {
		return nil, err
	}
	closing := ledger.Balance.Sub(laterNet)
	periodNet := decimal.Zero
	for _, t := range txns {
		periodNet = periodNet.Add(signedAmount(t))
	}
	opening := closing.Sub(periodNet)

	running := opening
	lines := make([]pdf.StatementLine, 0, len(txns))
	for _, t := range txns {
		running = running.Add(signedAmount(t))
		lines = append(lines, pdf.StatementLine{
			Date:        t.TransactionDate.Format(statementDateLayout),
			Type:        string(t.Type),
			Description: t.Description,
			Amount:      money.Format(signedAmount(t)),
			Balance:     money.Format(running),
		})
	}

	return s.pdfProvider.GenerateTrustStatement(ctx, pdf.StatementData{
		FirmName:    req.FirmName,
		AccountName: account.BankName,
		LedgerName:  ledger.LedgerName,
		ClientName:  req.ClientName,
		PeriodStart: from.Format(statementDateLayout),
		PeriodEnd:   to.Format(statementDateLayout),
		Opening:     money.Format(opening),
		Closing:     money.Format(closing),
		Lines:       lines,
	})
}

func (s *Service) netAfter(ctx context.Context, ledgerID snowflake.ID, after time.Time) (decimal.Decimal, error) {
	var txns []trustdomain.TrustTransaction
	err := s.db.WithContext(ctx).
		Where("client_ledger_id = ? AND transaction_date > ?", ledgerID, after.UTC()).
		Find(&txns).Error
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, t := range txns {
		net = net.Add(signedAmount(t))
	}
	return net, nil
}

func signedAmount(t trustdomain.TrustTransaction) decimal.Decimal {
	if t.Type.Debits() {
		return t.Amount.Neg()
	}
	return t.Amount
}
