package scheduler

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	billingservice "github.com/lexfirma/trustledger/internal/billing/service"
	"github.com/lexfirma/trustledger/internal/clock"
	complianceservice "github.com/lexfirma/trustledger/internal/compliance/service"
	"github.com/lexfirma/trustledger/internal/config"
	journalservice "github.com/lexfirma/trustledger/internal/journal/service"
	"github.com/lexfirma/trustledger/internal/migration"
	"github.com/lexfirma/trustledger/internal/notification"
	trustservice "github.com/lexfirma/trustledger/internal/trust/service"
	"github.com/lexfirma/trustledger/pkg/secret"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(migration.Models()...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	sealer, err := secret.NewSealer(key)
	require.NoError(t, err)

	journalSvc := journalservice.NewService(journalservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node,
	})
	trustSvc := trustservice.NewService(trustservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Sealer: sealer, JournalSvc: journalSvc,
	})
	billingSvc := billingservice.NewService(billingservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, TrustSvc: trustSvc, JournalSvc: journalSvc,
	})
	complianceSvc := complianceservice.NewService(complianceservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake,
		Config: config.Config{Compliance: config.ComplianceConfig{
			ReconciliationWindowDays: 30,
			AlertDedupHours:          24,
			VelocityWindowDays:       90,
		}},
		Sink: notification.NewLogSink(zap.NewNop()),
	})

	sched, err := New(Params{
		DB:            conn,
		Log:           zap.NewNop(),
		Clock:         fake,
		JournalSvc:    journalSvc,
		BillingSvc:    billingSvc,
		ComplianceSvc: complianceSvc,
	})
	require.NoError(t, err)
	return sched, conn, node, fake
}

func TestNew_RejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)

	custom := Config{RunInterval: 10 * time.Second, BatchSize: 5, JobTimeout: time.Second}.withDefaults()
	assert.Equal(t, 10*time.Second, custom.RunInterval)
	assert.Equal(t, 5, custom.BatchSize)
}

func TestRunOnce_BackfillsJournalsAndMarksOverdue(t *testing.T) {
	sched, conn, node, fake := newTestScheduler(t)
	ctx := context.Background()
	orgID := node.Generate()

	// A trust transaction persisted without its journal entry.
	require.NoError(t, conn.Exec(
		`INSERT INTO trust_transactions
		 (id, org_id, trust_account_id, client_ledger_id, type, amount, description,
		  transaction_date, is_reconciled, created_by, created_at)
		 VALUES (?, ?, ?, ?, 'deposit', '250.00', 'Backfill', ?, 0, ?, ?)`,
		int64(node.Generate()), int64(orgID), int64(node.Generate()), int64(node.Generate()),
		fake.Now(), int64(node.Generate()), fake.Now(),
	).Error)
	// An account row so the journal sweep picks the org up.
	require.NoError(t, conn.Exec(
		`INSERT INTO trust_accounts
		 (id, org_id, bank_name, account_number_encrypted, jurisdiction, currency, status,
		  interest_rate, recorded_balance, created_by, created_at, updated_at)
		 VALUES (?, ?, 'First Fiduciary Bank', 'sealed', 'CA', 'USD', 'active', 0, '0.00', ?, ?, ?)`,
		int64(node.Generate()), int64(orgID), int64(node.Generate()), fake.Now(), fake.Now(),
	).Error)

	// A sent invoice already past due.
	invoice, err := sched.billingSvc.CreateInvoice(ctx, billingdomain.CreateInvoiceRequest{
		OrgID:         orgID,
		ClientID:      node.Generate(),
		InvoiceNumber: "INV-900",
		IssueDate:     fake.Now().AddDate(0, 0, -60),
		DueDate:       fake.Now().AddDate(0, 0, -30),
		LineItems: []billingdomain.LineItemInput{{
			ItemType:    billingdomain.LineItemTypeTimeEntry,
			Description: "Research",
			Quantity:    decimal.RequireFromString("1"),
			Rate:        decimal.RequireFromString("100.00"),
		}},
		PerformedBy: node.Generate(),
	})
	require.NoError(t, err)
	require.NoError(t, sched.billingSvc.SendInvoice(ctx, orgID, invoice.ID, node.Generate()))

	sched.RunOnce(ctx)

	var unlinked int64
	require.NoError(t, conn.Table("trust_transactions").
		Where("org_id = ? AND journal_entry_id IS NULL", orgID).
		Count(&unlinked).Error)
	assert.Zero(t, unlinked)

	var got billingdomain.Invoice
	require.NoError(t, conn.First(&got, "id = ?", invoice.ID).Error)
	assert.Equal(t, billingdomain.InvoiceStatusOverdue, got.Status)

	// Compliance sweep raised the stale-reconciliation alert for the org.
	var alerts int64
	require.NoError(t, conn.Table("compliance_alerts").
		Where("org_id = ?", orgID).Count(&alerts).Error)
	assert.Equal(t, int64(1), alerts)
}
