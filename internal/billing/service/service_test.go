package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	journalservice "github.com/lexfirma/trustledger/internal/journal/service"
	"github.com/lexfirma/trustledger/internal/migration"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	trustservice "github.com/lexfirma/trustledger/internal/trust/service"
	"github.com/lexfirma/trustledger/pkg/secret"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc      *Service
	trustSvc trustdomain.Service
	conn     *gorm.DB
	node     *snowflake.Node
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(migration.Models()...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	sealer, err := secret.NewSealer(key)
	require.NoError(t, err)

	journalSvc := journalservice.NewService(journalservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
	})
	trustSvc := trustservice.NewService(trustservice.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Sealer:     sealer,
		JournalSvc: journalSvc,
	})
	svc := NewService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		TrustSvc:   trustSvc,
		JournalSvc: journalSvc,
	}).(*Service)

	return testEnv{svc: svc, trustSvc: trustSvc, conn: conn, node: node}
}

func (e testEnv) createSentInvoice(t *testing.T, orgID snowflake.ID, number string, items []billingdomain.LineItemInput) billingdomain.Invoice {
	t.Helper()
	ctx := context.Background()
	userID := e.node.Generate()

	invoice, err := e.svc.CreateInvoice(ctx, billingdomain.CreateInvoiceRequest{
		OrgID:         orgID,
		ClientID:      e.node.Generate(),
		InvoiceNumber: number,
		LineItems:     items,
		PerformedBy:   userID,
	})
	require.NoError(t, err)
	require.NoError(t, e.svc.SendInvoice(ctx, orgID, invoice.ID, userID))

	sent, err := e.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	return sent
}

func feeItem(description, qty, rate string) billingdomain.LineItemInput {
	return billingdomain.LineItemInput{
		ItemType:    billingdomain.LineItemTypeTimeEntry,
		Description: description,
		Quantity:    decimal.RequireFromString(qty),
		Rate:        decimal.RequireFromString(rate),
	}
}

func TestCreateInvoice_ComputesTotalsWithTax(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()

	invoice, err := env.svc.CreateInvoice(context.Background(), billingdomain.CreateInvoiceRequest{
		OrgID:         orgID,
		ClientID:      env.node.Generate(),
		InvoiceNumber: "INV-001",
		TaxRate:       decimal.RequireFromString("8.00"),
		LineItems: []billingdomain.LineItemInput{
			feeItem("Contract review", "2.5", "400.00"),
			{
				ItemType:    billingdomain.LineItemTypeExpense,
				Description: "Filing fee",
				Quantity:    decimal.RequireFromString("1"),
				Rate:        decimal.RequireFromString("60.00"),
				Taxable:     true,
			},
		},
		PerformedBy: env.node.Generate(),
	})
	require.NoError(t, err)

	// 2.5 x 400 = 1000 untaxed, 60 taxed at 8% = 4.80.
	assert.True(t, invoice.Subtotal.Equal(decimal.RequireFromString("1060.00")))
	assert.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("4.80")))
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("1064.80")))
	assert.True(t, invoice.BalanceDue.Equal(invoice.Total))
	assert.Equal(t, billingdomain.InvoiceStatusDraft, invoice.Status)
}

func TestCreateInvoice_RejectsDuplicateNumber(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()

	req := billingdomain.CreateInvoiceRequest{
		OrgID:         orgID,
		ClientID:      env.node.Generate(),
		InvoiceNumber: "INV-042",
		LineItems:     []billingdomain.LineItemInput{feeItem("Research", "1", "100.00")},
		PerformedBy:   env.node.Generate(),
	}
	_, err := env.svc.CreateInvoice(ctx, req)
	require.NoError(t, err)

	_, err = env.svc.CreateInvoice(ctx, req)
	assert.ErrorIs(t, err, billingdomain.ErrDuplicateInvoiceNo)
}

func TestCreatePayment_PartialThenOverpaymentRejected(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-100",
		[]billingdomain.LineItemInput{feeItem("Deposition prep", "3", "100.00")})
	require.True(t, invoice.Total.Equal(decimal.RequireFromString("300.00")))

	_, err := env.svc.CreatePayment(ctx, billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("200.00"),
		Method:      billingdomain.PaymentMethodCheck,
		PerformedBy: env.node.Generate(),
	})
	require.NoError(t, err)

	partial, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.InvoiceStatusPartiallyPaid, partial.Status)
	assert.True(t, partial.BalanceDue.Equal(decimal.RequireFromString("100.00")))

	_, err = env.svc.CreatePayment(ctx, billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("150.00"),
		Method:      billingdomain.PaymentMethodCheck,
		PerformedBy: env.node.Generate(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, billingdomain.ErrOverpayment)

	var detail *billingdomain.OverpaymentError
	require.ErrorAs(t, err, &detail)
	assert.True(t, detail.Requested.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, detail.Outstanding.Equal(decimal.RequireFromString("100.00")))

	unchanged, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.BalanceDue.Equal(decimal.RequireFromString("100.00")))
}

func TestCreatePayment_ExactPayoffMarksPaid(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-101",
		[]billingdomain.LineItemInput{feeItem("Motion drafting", "2", "250.00")})

	payment, err := env.svc.CreatePayment(ctx, billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("500.00"),
		Method:      billingdomain.PaymentMethodWire,
		PerformedBy: env.node.Generate(),
	})
	require.NoError(t, err)
	require.NotNil(t, payment.JournalEntryID)

	paid, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, paid.Status)
	assert.True(t, paid.BalanceDue.IsZero())
}

func TestCreatePayment_DraftInvoiceNotPayable(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()

	invoice, err := env.svc.CreateInvoice(context.Background(), billingdomain.CreateInvoiceRequest{
		OrgID:         orgID,
		ClientID:      env.node.Generate(),
		InvoiceNumber: "INV-102",
		LineItems:     []billingdomain.LineItemInput{feeItem("Research", "1", "100.00")},
		PerformedBy:   env.node.Generate(),
	})
	require.NoError(t, err)

	_, err = env.svc.CreatePayment(context.Background(), billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("100.00"),
		PerformedBy: env.node.Generate(),
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvoiceNotPayable)
}

func (e testEnv) fundLedger(t *testing.T, orgID snowflake.ID, amount string) (trustdomain.TrustAccount, trustdomain.ClientLedger) {
	t.Helper()
	ctx := context.Background()
	userID := e.node.Generate()

	account, err := e.trustSvc.CreateTrustAccount(ctx, trustdomain.CreateTrustAccountRequest{
		OrgID:         orgID,
		BankName:      "First Fiduciary Bank",
		AccountNumber: "000123456789",
		Jurisdiction:  "CA",
		Currency:      "USD",
		PerformedBy:   userID,
	})
	require.NoError(t, err)

	ledger, err := e.trustSvc.CreateClientLedger(ctx, trustdomain.CreateClientLedgerRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		ClientID:       e.node.Generate(),
		LedgerName:     "Retainer",
		PerformedBy:    userID,
	})
	require.NoError(t, err)

	if amount != "" {
		_, err = e.trustSvc.ApplyTransaction(ctx, trustdomain.ApplyTransactionRequest{
			OrgID:          orgID,
			TrustAccountID: account.ID,
			ClientLedgerID: ledger.ID,
			Type:           trustdomain.TransactionTypeDeposit,
			Amount:         decimal.RequireFromString(amount),
			PerformedBy:    userID,
		})
		require.NoError(t, err)
	}
	return account, ledger
}

func TestPayInvoiceFromTrust_DebitsLedgerAndPays(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-200",
		[]billingdomain.LineItemInput{feeItem("Trial prep", "4", "125.00")})
	account, ledger := env.fundLedger(t, orgID, "1000.00")

	payment, err := env.svc.PayInvoiceFromTrust(ctx, billingdomain.PayFromTrustRequest{
		OrgID:          orgID,
		InvoiceID:      invoice.ID,
		TrustAccountID: account.ID,
		ClientLedgerID: ledger.ID,
		Amount:         decimal.RequireFromString("500.00"),
		PerformedBy:    env.node.Generate(),
	})
	require.NoError(t, err)
	assert.Equal(t, billingdomain.PaymentMethodTrust, payment.Method)
	require.NotNil(t, payment.TrustTransactionID)

	paid, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, paid.Status)

	got, err := env.trustSvc.GetClientLedger(ctx, orgID, ledger.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("500.00")))

	// The trust debit carries the transfer journal entry.
	var txn trustdomain.TrustTransaction
	require.NoError(t, env.conn.First(&txn, "id = ?", *payment.TrustTransactionID).Error)
	assert.Equal(t, trustdomain.TransactionTypeTransferToOperating, txn.Type)
	assert.NotNil(t, txn.JournalEntryID)
}

func TestPayInvoiceFromTrust_BooksIncomeAndOperatingCashOnce(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-202",
		[]billingdomain.LineItemInput{feeItem("Closing docs", "1", "100.00")})
	account, ledger := env.fundLedger(t, orgID, "1000.00")

	_, err := env.svc.PayInvoiceFromTrust(ctx, billingdomain.PayFromTrustRequest{
		OrgID:          orgID,
		InvoiceID:      invoice.ID,
		TrustAccountID: account.ID,
		ClientLedgerID: ledger.ID,
		Amount:         decimal.RequireFromString("100.00"),
		PerformedBy:    env.node.Generate(),
	})
	require.NoError(t, err)

	var rows []struct {
		Code   journaldomain.AccountCode
		Debit  decimal.Decimal
		Credit decimal.Decimal
	}
	require.NoError(t, env.conn.Table("journal_lines").
		Select("chart_accounts.code AS code, journal_lines.debit AS debit, journal_lines.credit AS credit").
		Joins("JOIN chart_accounts ON chart_accounts.id = journal_lines.account_id").
		Where("chart_accounts.org_id = ?", orgID).
		Scan(&rows).Error)

	debits := map[journaldomain.AccountCode]decimal.Decimal{}
	credits := map[journaldomain.AccountCode]decimal.Decimal{}
	for _, row := range rows {
		debits[row.Code] = debits[row.Code].Add(row.Debit)
		credits[row.Code] = credits[row.Code].Add(row.Credit)
	}

	// Income is earned once at issuance and the operating receipt is the
	// payment entry; the trust transfer must not repeat either leg.
	hundred := decimal.RequireFromString("100.00")
	assert.True(t, credits[journaldomain.AccountCodeLegalFeeIncome].Equal(hundred))
	assert.True(t, debits[journaldomain.AccountCodeLegalFeeIncome].IsZero())
	assert.True(t, debits[journaldomain.AccountCodeOperatingCash].Equal(hundred))
	assert.True(t, credits[journaldomain.AccountCodeOperatingCash].IsZero())
	assert.True(t, debits[journaldomain.AccountCodeAccountsReceivable].Equal(hundred))
	assert.True(t, credits[journaldomain.AccountCodeAccountsReceivable].Equal(hundred))
	assert.True(t, credits[journaldomain.AccountCodeTrustCash].Equal(hundred))
}

func TestPayInvoiceFromTrust_InsufficientFundsLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-201",
		[]billingdomain.LineItemInput{feeItem("Appeal brief", "8", "100.00")})
	account, ledger := env.fundLedger(t, orgID, "100.00")

	_, err := env.svc.PayInvoiceFromTrust(ctx, billingdomain.PayFromTrustRequest{
		OrgID:          orgID,
		InvoiceID:      invoice.ID,
		TrustAccountID: account.ID,
		ClientLedgerID: ledger.ID,
		Amount:         decimal.RequireFromString("800.00"),
		PerformedBy:    env.node.Generate(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, trustdomain.ErrInsufficientFunds)

	// Neither side moved.
	unchanged, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.InvoiceStatusSent, unchanged.Status)
	assert.True(t, unchanged.BalanceDue.Equal(invoice.Total))

	var payments int64
	require.NoError(t, env.conn.Model(&billingdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&payments).Error)
	assert.Zero(t, payments)

	got, err := env.trustSvc.GetClientLedger(ctx, orgID, ledger.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.00")))
}

func TestBatchCreateInvoices_PartitionsFailures(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()

	result, err := env.svc.BatchCreateInvoices(context.Background(), orgID, []billingdomain.CreateInvoiceRequest{
		{
			ClientID:      env.node.Generate(),
			InvoiceNumber: "INV-300",
			LineItems:     []billingdomain.LineItemInput{feeItem("Research", "1", "100.00")},
			PerformedBy:   env.node.Generate(),
		},
		{
			ClientID:      env.node.Generate(),
			InvoiceNumber: "INV-301",
			PerformedBy:   env.node.Generate(),
		},
		{
			ClientID:      env.node.Generate(),
			InvoiceNumber: "INV-302",
			LineItems:     []billingdomain.LineItemInput{feeItem("Drafting", "2", "150.00")},
			PerformedBy:   env.node.Generate(),
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.ErrorIs(t, result.Failed[0].Err, billingdomain.ErrInvalidInvoice)
}

func TestMarkOverdueInvoices_FlipsPastDue(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-400",
		[]billingdomain.LineItemInput{feeItem("Research", "1", "100.00")})

	updated, err := env.svc.MarkOverdueInvoices(ctx, orgID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	updated, err = env.svc.MarkOverdueInvoices(ctx, orgID, time.Now().UTC().AddDate(0, 0, 45))
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	overdue, err := env.svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.InvoiceStatusOverdue, overdue.Status)

	// Overdue invoices remain payable.
	_, err = env.svc.CreatePayment(ctx, billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("100.00"),
		PerformedBy: env.node.Generate(),
	})
	require.NoError(t, err)
}

func TestVoidInvoice_PaidInvoiceRejected(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.node.Generate()
	ctx := context.Background()
	invoice := env.createSentInvoice(t, orgID, "INV-500",
		[]billingdomain.LineItemInput{feeItem("Research", "1", "100.00")})

	_, err := env.svc.CreatePayment(ctx, billingdomain.CreatePaymentRequest{
		OrgID:       orgID,
		InvoiceID:   invoice.ID,
		Amount:      decimal.RequireFromString("100.00"),
		PerformedBy: env.node.Generate(),
	})
	require.NoError(t, err)

	err = env.svc.VoidInvoice(ctx, orgID, invoice.ID, env.node.Generate())
	assert.ErrorIs(t, err, billingdomain.ErrInvalidTransition)
}
