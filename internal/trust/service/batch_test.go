package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBatch_PartitionsFailures(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	orgID, account, _ := setupLedger(t, svc, node, "")
	userID := node.Generate()

	// Five ledgers, four funded generously and one with only 10.00.
	ledgers := make([]trustdomain.ClientLedger, 0, 5)
	for i := 0; i < 5; i++ {
		ledger, err := svc.CreateClientLedger(ctx, trustdomain.CreateClientLedgerRequest{
			OrgID:          orgID,
			TrustAccountID: account.ID,
			ClientID:       node.Generate(),
			LedgerName:     "Batch client",
			PerformedBy:    userID,
		})
		require.NoError(t, err)
		opening := "500.00"
		if i == 2 {
			opening = "10.00"
		}
		_, err = svc.ApplyTransaction(ctx, trustdomain.ApplyTransactionRequest{
			OrgID:          orgID,
			TrustAccountID: account.ID,
			ClientLedgerID: ledger.ID,
			Type:           trustdomain.TransactionTypeDeposit,
			Amount:         decimal.RequireFromString(opening),
			PerformedBy:    userID,
		})
		require.NoError(t, err)
		ledgers = append(ledgers, ledger)
	}

	items := make([]trustdomain.ApplyTransactionRequest, 0, 5)
	for _, ledger := range ledgers {
		items = append(items, trustdomain.ApplyTransactionRequest{
			ClientLedgerID: ledger.ID,
			Type:           trustdomain.TransactionTypeDisbursement,
			Amount:         decimal.RequireFromString("100.00"),
			Description:    "Monthly disbursement",
		})
	}

	result, err := svc.ProcessBatch(ctx, trustdomain.ProcessBatchRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Mode:           trustdomain.BatchModeDisbursements,
		Items:          items,
		PerformedBy:    userID,
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].Index)
	assert.ErrorIs(t, result.Failed[0].Err, trustdomain.ErrInsufficientFunds)

	// Funded ledgers moved; the overdrawn one did not.
	for i, ledger := range ledgers {
		want := "400.00"
		if i == 2 {
			want = "10.00"
		}
		assert.True(t, ledgerBalance(t, svc, orgID, ledger.ID).Equal(decimal.RequireFromString(want)), "ledger %d", i)
	}
}

func TestProcessBatch_ModeRejectsForeignTypes(t *testing.T) {
	svc, _, node := newTestService(t)
	orgID, account, ledger := setupLedger(t, svc, node, "100.00")

	result, err := svc.ProcessBatch(context.Background(), trustdomain.ProcessBatchRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Mode:           trustdomain.BatchModeDeposits,
		Items: []trustdomain.ApplyTransactionRequest{
			{ClientLedgerID: ledger.ID, Type: trustdomain.TransactionTypeDisbursement, Amount: decimal.RequireFromString("10.00")},
			{ClientLedgerID: ledger.ID, Type: trustdomain.TransactionTypeDeposit, Amount: decimal.RequireFromString("10.00")},
		},
		PerformedBy: node.Generate(),
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 0, result.Failed[0].Index)
}

func TestRunCheckBatch_NumbersNeverRecycled(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	orgID, account, funded := setupLedger(t, svc, node, "1000.00")
	userID := node.Generate()

	empty, err := svc.CreateClientLedger(ctx, trustdomain.CreateClientLedgerRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		ClientID:       node.Generate(),
		LedgerName:     "Unfunded client",
		PerformedBy:    userID,
	})
	require.NoError(t, err)

	result, err := svc.RunCheckBatch(ctx, trustdomain.CheckRunRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Items: []trustdomain.CheckRunItem{
			{ClientLedgerID: funded.ID, Amount: decimal.RequireFromString("100.00"), Payee: "County Recorder"},
			{ClientLedgerID: empty.ID, Amount: decimal.RequireFromString("50.00"), Payee: "Process Server"},
			{ClientLedgerID: funded.ID, Amount: decimal.RequireFromString("200.00"), Payee: "Expert Witness"},
		},
		PerformedBy: userID,
	})
	require.NoError(t, err)
	require.Len(t, result.Checks, 2)
	require.Len(t, result.Failed, 1)
	assert.NotEmpty(t, result.Batch.Reference)

	// Item 2's reserved number stays burned: printed checks are 1 and 3.
	assert.Equal(t, int64(1), result.Checks[0].Number)
	assert.Equal(t, int64(3), result.Checks[1].Number)

	// The next run starts after the reserved block.
	second, err := svc.RunCheckBatch(ctx, trustdomain.CheckRunRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Items: []trustdomain.CheckRunItem{
			{ClientLedgerID: funded.ID, Amount: decimal.RequireFromString("25.00"), Payee: "Court Clerk"},
		},
		PerformedBy: userID,
	})
	require.NoError(t, err)
	require.Len(t, second.Checks, 1)
	assert.Equal(t, int64(4), second.Checks[0].Number)

	var seq trustdomain.CheckNumberSequence
	require.NoError(t, conn.First(&seq, "trust_account_id = ?", account.ID).Error)
	assert.Equal(t, int64(5), seq.NextNumber)
}

func TestVoidCheck_RestoresLedgerAndKeepsNumber(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	orgID, account, ledger := setupLedger(t, svc, node, "500.00")
	userID := node.Generate()

	run, err := svc.RunCheckBatch(ctx, trustdomain.CheckRunRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Items: []trustdomain.CheckRunItem{
			{ClientLedgerID: ledger.ID, Amount: decimal.RequireFromString("120.00"), Payee: "Court Reporter"},
		},
		PerformedBy: userID,
	})
	require.NoError(t, err)
	require.Len(t, run.Checks, 1)
	check := run.Checks[0]

	assert.True(t, ledgerBalance(t, svc, orgID, ledger.ID).Equal(decimal.RequireFromString("380.00")))

	require.NoError(t, svc.VoidCheck(ctx, orgID, check.ID, userID))
	assert.True(t, ledgerBalance(t, svc, orgID, ledger.ID).Equal(decimal.RequireFromString("500.00")))

	err = svc.VoidCheck(ctx, orgID, check.ID, userID)
	assert.ErrorIs(t, err, trustdomain.ErrCheckAlreadyVoided)

	// The voided number is consumed; the next check takes a fresh one.
	next, err := svc.RunCheckBatch(ctx, trustdomain.CheckRunRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		Items: []trustdomain.CheckRunItem{
			{ClientLedgerID: ledger.ID, Amount: decimal.RequireFromString("10.00"), Payee: "Courier"},
		},
		PerformedBy: userID,
	})
	require.NoError(t, err)
	require.Len(t, next.Checks, 1)
	assert.Equal(t, check.Number+1, next.Checks[0].Number)
}

func TestPostInterest_CreditsProportionally(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	orgID, account, ledger := setupLedger(t, svc, node, "1200.00")
	userID := node.Generate()

	// 2.4% annual rate posts 0.2% per month.
	require.NoError(t, conn.Model(&trustdomain.TrustAccount{}).
		Where("id = ?", account.ID).
		Update("interest_rate", decimal.RequireFromString("2.4")).Error)

	posted, err := svc.PostInterest(ctx, orgID, account.ID, userID)
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, trustdomain.TransactionTypeInterest, posted[0].Type)
	assert.True(t, posted[0].Amount.Equal(decimal.RequireFromString("2.40")))
	assert.True(t, ledgerBalance(t, svc, orgID, ledger.ID).Equal(decimal.RequireFromString("1202.40")))
}

func TestReconcile_RecordsDifference(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	orgID, account, ledger := setupLedger(t, svc, node, "750.00")
	userID := node.Generate()

	txns, err := svc.ListTransactions(ctx, trustdomain.ListTransactionsRequest{
		OrgID:          orgID,
		ClientLedgerID: ledger.ID,
	})
	require.NoError(t, err)
	require.Len(t, txns.Transactions, 1)

	rec, err := svc.Reconcile(ctx, trustdomain.ReconcileRequest{
		OrgID:          orgID,
		TrustAccountID: account.ID,
		BankBalance:    decimal.RequireFromString("750.00"),
		TransactionIDs: []snowflake.ID{txns.Transactions[0].ID},
		PerformedBy:    userID,
	})
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
	assert.True(t, rec.Difference.IsZero())

	refreshed, err := svc.GetTrustAccount(ctx, orgID, account.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastReconciledAt)
	assert.True(t, refreshed.RecordedBalance.Equal(decimal.RequireFromString("750.00")))

	after, err := svc.ListTransactions(ctx, trustdomain.ListTransactionsRequest{OrgID: orgID, ClientLedgerID: ledger.ID})
	require.NoError(t, err)
	assert.True(t, after.Transactions[0].IsReconciled)
}
