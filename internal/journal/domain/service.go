package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrUnbalanced        = errors.New("unbalanced_journal")
	ErrTooFewLines       = errors.New("journal_requires_two_lines")
	ErrInvalidAccount    = errors.New("invalid_journal_account")
	ErrInvalidLineAmount = errors.New("invalid_journal_line_amount")
	ErrInvalidType       = errors.New("invalid_journal_type")
	ErrEntryNotFound     = errors.New("journal_entry_not_found")
)

// UnbalancedJournalError surfaces the imbalance delta in ledger formatting.
type UnbalancedJournalError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *UnbalancedJournalError) Error() string {
	return fmt.Sprintf("journal entry unbalanced: debits %s, credits %s, delta %s",
		money.Format(e.Debits), money.Format(e.Credits), money.Format(e.Debits.Sub(e.Credits)))
}

func (e *UnbalancedJournalError) Is(target error) bool {
	return target == ErrUnbalanced
}

type LineInput struct {
	AccountCode AccountCode
	AccountID   snowflake.ID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

type CreateEntryRequest struct {
	OrgID       snowflake.ID
	Type        JournalType
	Description string
	PostedDate  time.Time
	SourceType  SourceType
	SourceID    *snowflake.ID
	Lines       []LineInput
	PerformedBy snowflake.ID
}

type ListEntriesRequest struct {
	pagination.Pagination
	OrgID snowflake.ID
	From  *time.Time
	To    *time.Time
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []JournalEntry `json:"entries"`
}

// TrustEvent is the slice of a trust transaction the journal engine needs to
// derive postings from.
type TrustEvent struct {
	TransactionID snowflake.ID
	OrgID         snowflake.ID
	Type          string
	Amount        decimal.Decimal
	Description   string
	Date          time.Time
	PerformedBy   snowflake.ID
}

// BillingEvent carries invoice/payment/expense amounts for derivation.
type BillingEvent struct {
	SourceID    snowflake.ID
	OrgID       snowflake.ID
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Description string
	Date        time.Time
	PerformedBy snowflake.ID
}

// Service is the general ledger / journal engine. Every Create* method
// enforces the balance invariant before anything is persisted; the *InTx
// variants participate in a caller-owned transaction so the journal can
// never lag behind the ledger.
type Service interface {
	CreateEntry(ctx context.Context, req CreateEntryRequest) (JournalEntry, error)
	CreateEntryInTx(ctx context.Context, tx *gorm.DB, req CreateEntryRequest) (JournalEntry, error)

	CreateFromInvoice(ctx context.Context, tx *gorm.DB, ev BillingEvent) (JournalEntry, error)
	CreateFromPayment(ctx context.Context, tx *gorm.DB, ev BillingEvent) (JournalEntry, error)
	CreateFromExpense(ctx context.Context, tx *gorm.DB, ev BillingEvent) (JournalEntry, error)
	CreateFromVendorPayment(ctx context.Context, tx *gorm.DB, ev BillingEvent) (JournalEntry, error)
	CreateFromTrustTransaction(ctx context.Context, tx *gorm.DB, ev TrustEvent) (JournalEntry, error)

	// ProcessPendingEntries sweeps source transactions whose journal entry
	// was never generated. Idempotent: re-running never double-posts.
	ProcessPendingEntries(ctx context.Context, orgID snowflake.ID, limit int) (int, error)

	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	GetEntryLines(ctx context.Context, orgID, entryID snowflake.ID) ([]JournalLine, error)
}
