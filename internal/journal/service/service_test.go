package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	"github.com/lexfirma/trustledger/internal/migration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(migration.Models()...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
	}).(*Service)
	return svc, conn, node
}

func TestCreateEntry_RejectsUnbalanced(t *testing.T) {
	svc, conn, node := newTestService(t)
	orgID := node.Generate()

	_, err := svc.CreateEntry(context.Background(), journaldomain.CreateEntryRequest{
		OrgID: orgID,
		Type:  journaldomain.JournalTypeStandard,
		Lines: []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeOperatingCash, Debit: decimal.RequireFromString("100.00")},
			{AccountCode: journaldomain.AccountCodeLegalFeeIncome, Credit: decimal.RequireFromString("90.00")},
		},
		PerformedBy: node.Generate(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, journaldomain.ErrUnbalanced)

	var detail *journaldomain.UnbalancedJournalError
	require.ErrorAs(t, err, &detail)
	assert.True(t, detail.Debits.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, detail.Credits.Equal(decimal.RequireFromString("90.00")))

	// Nothing persisted.
	var entries, lines int64
	require.NoError(t, conn.Model(&journaldomain.JournalEntry{}).Count(&entries).Error)
	require.NoError(t, conn.Model(&journaldomain.JournalLine{}).Count(&lines).Error)
	assert.Zero(t, entries)
	assert.Zero(t, lines)
}

func TestCreateEntry_RejectsFewerThanTwoLines(t *testing.T) {
	svc, _, node := newTestService(t)

	_, err := svc.CreateEntry(context.Background(), journaldomain.CreateEntryRequest{
		OrgID: node.Generate(),
		Type:  journaldomain.JournalTypeStandard,
		Lines: []journaldomain.LineInput{
			{AccountCode: journaldomain.AccountCodeOperatingCash, Debit: decimal.RequireFromString("50.00")},
		},
		PerformedBy: node.Generate(),
	})
	assert.ErrorIs(t, err, journaldomain.ErrTooFewLines)
}

func TestCreateEntry_RejectsLineWithBothSides(t *testing.T) {
	svc, _, node := newTestService(t)

	_, err := svc.CreateEntry(context.Background(), journaldomain.CreateEntryRequest{
		OrgID: node.Generate(),
		Type:  journaldomain.JournalTypeStandard,
		Lines: []journaldomain.LineInput{
			{
				AccountCode: journaldomain.AccountCodeOperatingCash,
				Debit:       decimal.RequireFromString("50.00"),
				Credit:      decimal.RequireFromString("50.00"),
			},
			{AccountCode: journaldomain.AccountCodeLegalFeeIncome, Credit: decimal.RequireFromString("50.00")},
		},
		PerformedBy: node.Generate(),
	})
	assert.ErrorIs(t, err, journaldomain.ErrInvalidLineAmount)
}

func TestCreateEntry_SeedsChartAccountsOnce(t *testing.T) {
	svc, conn, node := newTestService(t)
	orgID := node.Generate()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.CreateEntry(ctx, journaldomain.CreateEntryRequest{
			OrgID:       orgID,
			Type:        journaldomain.JournalTypeStandard,
			Description: "Fee receipt",
			Lines: []journaldomain.LineInput{
				{AccountCode: journaldomain.AccountCodeOperatingCash, Debit: decimal.RequireFromString("10.00")},
				{AccountCode: journaldomain.AccountCodeLegalFeeIncome, Credit: decimal.RequireFromString("10.00")},
			},
			PerformedBy: node.Generate(),
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&journaldomain.ChartAccount{}).
		Where("org_id = ?", orgID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateFromTrustTransaction_IdempotentOnSource(t *testing.T) {
	svc, conn, node := newTestService(t)
	orgID := node.Generate()
	ctx := context.Background()

	ev := journaldomain.TrustEvent{
		TransactionID: node.Generate(),
		OrgID:         orgID,
		Type:          "deposit",
		Amount:        decimal.RequireFromString("300.00"),
		Description:   "Retainer received",
		Date:          time.Now().UTC(),
		PerformedBy:   node.Generate(),
	}

	var first, second journaldomain.JournalEntry
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		entry, err := svc.CreateFromTrustTransaction(ctx, tx, ev)
		if err != nil {
			return err
		}
		first = entry
		return nil
	}))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		entry, err := svc.CreateFromTrustTransaction(ctx, tx, ev)
		if err != nil {
			return err
		}
		second = entry
		return nil
	}))

	assert.Equal(t, first.ID, second.ID)

	var entries int64
	require.NoError(t, conn.Model(&journaldomain.JournalEntry{}).
		Where("org_id = ?", orgID).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)
}

func TestCreateFromTrustTransaction_TransferReleasesTrustOnly(t *testing.T) {
	svc, conn, node := newTestService(t)
	orgID := node.Generate()

	var entry journaldomain.JournalEntry
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		created, err := svc.CreateFromTrustTransaction(context.Background(), tx, journaldomain.TrustEvent{
			TransactionID: node.Generate(),
			OrgID:         orgID,
			Type:          "transfer_to_operating",
			Amount:        decimal.RequireFromString("450.00"),
			Date:          time.Now().UTC(),
			PerformedBy:   node.Generate(),
		})
		if err != nil {
			return err
		}
		entry = created
		return nil
	}))

	lines, err := svc.GetEntryLines(context.Background(), orgID, entry.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	var accounts []journaldomain.ChartAccount
	require.NoError(t, conn.Where("org_id = ?", orgID).Find(&accounts).Error)
	codes := make(map[snowflake.ID]journaldomain.AccountCode, len(accounts))
	for _, acct := range accounts {
		codes[acct.ID] = acct.Code
	}

	// The operating receipt belongs to the payment entry; the transfer
	// itself only releases client funds held in trust.
	byCode := make(map[journaldomain.AccountCode]journaldomain.JournalLine, len(lines))
	for _, line := range lines {
		byCode[codes[line.AccountID]] = line
	}
	assert.True(t, byCode[journaldomain.AccountCodeClientTrustLiability].Debit.Equal(decimal.RequireFromString("450.00")))
	assert.True(t, byCode[journaldomain.AccountCodeTrustCash].Credit.Equal(decimal.RequireFromString("450.00")))
	assert.NotContains(t, byCode, journaldomain.AccountCodeOperatingCash)
	assert.NotContains(t, byCode, journaldomain.AccountCodeLegalFeeIncome)
}

func TestCreateFromInvoice_SplitsTaxPayable(t *testing.T) {
	svc, _, node := newTestService(t)
	orgID := node.Generate()

	var entry journaldomain.JournalEntry
	require.NoError(t, svc.db.Transaction(func(tx *gorm.DB) error {
		created, err := svc.CreateFromInvoice(context.Background(), tx, journaldomain.BillingEvent{
			SourceID:    node.Generate(),
			OrgID:       orgID,
			Subtotal:    decimal.RequireFromString("1000.00"),
			Tax:         decimal.RequireFromString("80.00"),
			Total:       decimal.RequireFromString("1080.00"),
			Description: "Invoice INV-100 issued",
			Date:        time.Now().UTC(),
			PerformedBy: node.Generate(),
		})
		if err != nil {
			return err
		}
		entry = created
		return nil
	}))

	lines, err := svc.GetEntryLines(context.Background(), orgID, entry.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
}

func TestProcessPendingEntries_SweepIsIdempotent(t *testing.T) {
	svc, conn, node := newTestService(t)
	orgID := node.Generate()
	ctx := context.Background()

	// Trust transactions written without a journal entry, as if derivation
	// was unavailable at apply time.
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Exec(
			`INSERT INTO trust_transactions
			 (id, org_id, trust_account_id, client_ledger_id, type, amount, description,
			  transaction_date, is_reconciled, created_by, created_at)
			 VALUES (?, ?, ?, ?, 'deposit', '100.00', 'Backfill', ?, false, ?, ?)`,
			int64(node.Generate()), int64(orgID), int64(node.Generate()), int64(node.Generate()),
			time.Now().UTC(), int64(node.Generate()), time.Now().UTC(),
		).Error)
	}

	processed, err := svc.ProcessPendingEntries(ctx, orgID, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	again, err := svc.ProcessPendingEntries(ctx, orgID, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	var entries int64
	require.NoError(t, conn.Model(&journaldomain.JournalEntry{}).
		Where("org_id = ?", orgID).Count(&entries).Error)
	assert.Equal(t, int64(3), entries)

	var unlinked int64
	require.NoError(t, conn.Table("trust_transactions").
		Where("org_id = ? AND journal_entry_id IS NULL", orgID).
		Count(&unlinked).Error)
	assert.Zero(t, unlinked)
}

func TestCreateEntry_UnknownAccountRejected(t *testing.T) {
	svc, _, node := newTestService(t)

	_, err := svc.CreateEntry(context.Background(), journaldomain.CreateEntryRequest{
		OrgID: node.Generate(),
		Type:  journaldomain.JournalTypeStandard,
		Lines: []journaldomain.LineInput{
			{AccountID: node.Generate(), Debit: decimal.RequireFromString("10.00")},
			{AccountCode: journaldomain.AccountCodeOperatingCash, Credit: decimal.RequireFromString("10.00")},
		},
		PerformedBy: node.Generate(),
	})
	assert.ErrorIs(t, err, journaldomain.ErrInvalidAccount)
}
