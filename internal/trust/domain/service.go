package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateTrustAccountRequest struct {
	OrgID         snowflake.ID
	BankName      string
	AccountNumber string
	Jurisdiction  string
	Currency      string
	InterestRate  decimal.Decimal
	PerformedBy   snowflake.ID
}

type CreateClientLedgerRequest struct {
	OrgID          snowflake.ID
	TrustAccountID snowflake.ID
	ClientID       snowflake.ID
	MatterID       *snowflake.ID
	LedgerName     string
	PerformedBy    snowflake.ID
}

type ApplyTransactionRequest struct {
	OrgID           snowflake.ID
	TrustAccountID  snowflake.ID
	ClientLedgerID  snowflake.ID
	Type            TransactionType
	Amount          decimal.Decimal
	Description     string
	PaymentMethod   string
	ReferenceNumber string
	TransactionDate time.Time
	// IdempotencyKey, when set, makes retried submissions return the
	// previously applied transaction instead of double-applying.
	IdempotencyKey string
	PerformedBy    snowflake.ID
}

// BatchMode scopes which transaction types a batch accepts.
type BatchMode string

const (
	BatchModeDeposits      BatchMode = "deposits"
	BatchModeDisbursements BatchMode = "disbursements"
	BatchModeFeeTransfers  BatchMode = "fee_transfers"
	BatchModeMixed         BatchMode = "mixed"
)

// Allows reports whether the mode admits the given transaction type.
func (m BatchMode) Allows(t TransactionType) bool {
	switch m {
	case BatchModeDeposits:
		return t == TransactionTypeDeposit
	case BatchModeDisbursements:
		return t == TransactionTypeDisbursement
	case BatchModeFeeTransfers:
		return t == TransactionTypeTransferToOperating
	case BatchModeMixed:
		return t.Valid()
	default:
		return false
	}
}

type ProcessBatchRequest struct {
	OrgID          snowflake.ID
	TrustAccountID snowflake.ID
	Mode           BatchMode
	Items          []ApplyTransactionRequest
	PerformedBy    snowflake.ID
}

type BatchFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// BatchResult partitions a batch into applied transactions and per-item
// failures. One overdrawn ledger never blocks the other items in the run.
type BatchResult struct {
	Succeeded []TrustTransaction `json:"succeeded"`
	Failed    []BatchFailure     `json:"failed"`
}

type CheckRunItem struct {
	ClientLedgerID snowflake.ID
	Amount         decimal.Decimal
	Payee          string
	Description    string
}

type CheckRunRequest struct {
	OrgID          snowflake.ID
	TrustAccountID snowflake.ID
	Items          []CheckRunItem
	PerformedBy    snowflake.ID
}

type CheckRunResult struct {
	Batch  CheckBatch     `json:"batch"`
	Checks []Check        `json:"checks"`
	Failed []BatchFailure `json:"failed"`
}

type ReconcileRequest struct {
	OrgID          snowflake.ID
	TrustAccountID snowflake.ID
	BankBalance    decimal.Decimal
	StatementDate  time.Time
	// Transactions covered by the bank statement; they are flagged reconciled.
	TransactionIDs []snowflake.ID
	PerformedBy    snowflake.ID
}

type StatementRequest struct {
	OrgID          snowflake.ID
	ClientLedgerID snowflake.ID
	From           time.Time
	To             time.Time
	FirmName       string
	ClientName     string
}

type ListTransactionsRequest struct {
	pagination.Pagination
	OrgID          snowflake.ID
	TrustAccountID snowflake.ID
	ClientLedgerID snowflake.ID
	From           *time.Time
	To             *time.Time
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []TrustTransaction `json:"transactions"`
}

// Service is the trust transaction engine plus its batch wrapper.
type Service interface {
	CreateTrustAccount(ctx context.Context, req CreateTrustAccountRequest) (TrustAccount, error)
	CloseTrustAccount(ctx context.Context, orgID, accountID, performedBy snowflake.ID) error
	GetTrustAccount(ctx context.Context, orgID, accountID snowflake.ID) (TrustAccount, error)
	// AccountNumber unseals the stored bank account number for an authorized
	// caller.
	AccountNumber(ctx context.Context, orgID, accountID snowflake.ID) (string, error)

	CreateClientLedger(ctx context.Context, req CreateClientLedgerRequest) (ClientLedger, error)
	CloseClientLedger(ctx context.Context, orgID, ledgerID, performedBy snowflake.ID) error
	GetClientLedger(ctx context.Context, orgID, ledgerID snowflake.ID) (ClientLedger, error)

	// ApplyTransaction validates and applies one transaction atomically:
	// invariant check, balance update, immutable record append, and journal
	// derivation happen in a single serializable unit. A returned transaction
	// is permanent; corrections are offsetting transactions.
	ApplyTransaction(ctx context.Context, req ApplyTransactionRequest) (TrustTransaction, error)
	// ApplyTransactionInTx runs the same unit inside a caller-owned
	// transaction so composites (invoice payment from trust) stay atomic.
	ApplyTransactionInTx(ctx context.Context, tx *gorm.DB, req ApplyTransactionRequest) (TrustTransaction, error)

	// ProcessBatch applies items with per-item atomicity and batch-level
	// best effort.
	ProcessBatch(ctx context.Context, req ProcessBatchRequest) (BatchResult, error)

	// RunCheckBatch allocates strictly increasing check numbers, applies the
	// disbursements, and records printed checks.
	RunCheckBatch(ctx context.Context, req CheckRunRequest) (CheckRunResult, error)
	VoidCheck(ctx context.Context, orgID, checkID, performedBy snowflake.ID) error

	// PostInterest credits the account's interest rate across its active
	// ledgers, proportional to balance.
	PostInterest(ctx context.Context, orgID, accountID, performedBy snowflake.ID) ([]TrustTransaction, error)

	Reconcile(ctx context.Context, req ReconcileRequest) (Reconciliation, error)

	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)

	// StatementPDF renders a client ledger statement for the period.
	StatementPDF(ctx context.Context, req StatementRequest) (io.Reader, error)
}
