// Package domain contains persistence models for trust accounting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AccountStatus is the lifecycle state of a trust account. Accounts are never
// hard-deleted; a closed account keeps its history forever.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// CanTransitionTo enumerates legal lifecycle moves: active -> closed only.
// A closed account never reopens.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	return s == AccountStatusActive && next == AccountStatusClosed
}

// TrustAccount represents one regulated bank account holding client funds for
// an organization. AccountNumber is sealed at rest; RecordedBalance is the
// bank-reported balance captured at the last reconciliation.
type TrustAccount struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	OrgID            snowflake.ID    `gorm:"not null;index"`
	BankName         string          `gorm:"type:text;not null"`
	AccountNumber    string          `gorm:"type:text;not null;column:account_number_encrypted"`
	Jurisdiction     string          `gorm:"type:text;not null"`
	Currency         string          `gorm:"type:text;not null"`
	Status           AccountStatus   `gorm:"type:text;not null;default:'active'"`
	InterestRate     decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0"`
	RecordedBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	LastReconciledAt *time.Time      `gorm:""`
	CreatedBy        snowflake.ID    `gorm:"not null"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TrustAccount) TableName() string { return "trust_accounts" }

// LedgerStatus is the lifecycle state of a client ledger.
type LedgerStatus string

const (
	LedgerStatusActive LedgerStatus = "active"
	LedgerStatusClosed LedgerStatus = "closed"
)

func (s LedgerStatus) CanTransitionTo(next LedgerStatus) bool {
	return s == LedgerStatusActive && next == LedgerStatusClosed
}

// ClientLedger is a per-client (optionally per-matter) partition of a trust
// account. Balance must never go negative: one client's funds can never cover
// another client's disbursement.
type ClientLedger struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	OrgID          snowflake.ID    `gorm:"not null;index"`
	TrustAccountID snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_client_ledgers_scope,priority:1"`
	ClientID       snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_client_ledgers_scope,priority:2"`
	MatterID       *snowflake.ID   `gorm:"index;uniqueIndex:ux_client_ledgers_scope,priority:3"`
	LedgerName     string          `gorm:"type:text;not null"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	Status         LedgerStatus    `gorm:"type:text;not null;default:'active'"`
	CreatedBy      snowflake.ID    `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ClientLedger) TableName() string { return "client_ledgers" }

// TransactionType enumerates trust money movements.
type TransactionType string

const (
	TransactionTypeDeposit             TransactionType = "deposit"
	TransactionTypeDisbursement        TransactionType = "disbursement"
	TransactionTypeTransferToOperating TransactionType = "transfer_to_operating"
	TransactionTypeRefund              TransactionType = "refund"
	TransactionTypeInterest            TransactionType = "interest"
)

// Debits reports whether the type reduces the client ledger balance.
func (t TransactionType) Debits() bool {
	switch t {
	case TransactionTypeDisbursement, TransactionTypeTransferToOperating, TransactionTypeRefund:
		return true
	default:
		return false
	}
}

// Valid reports whether the type is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeDisbursement,
		TransactionTypeTransferToOperating, TransactionTypeRefund,
		TransactionTypeInterest:
		return true
	default:
		return false
	}
}

// TrustTransaction is an immutable, append-only record. After creation, only
// IsReconciled and CheckID may change; corrections are offsetting
// transactions, never edits.
type TrustTransaction struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	OrgID           snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_trust_transactions_idem,priority:1"`
	TrustAccountID  snowflake.ID      `gorm:"not null;index"`
	ClientLedgerID  snowflake.ID      `gorm:"not null;index"`
	Type            TransactionType   `gorm:"type:text;not null"`
	Amount          decimal.Decimal   `gorm:"type:decimal(20,2);not null"`
	Description     string            `gorm:"type:text"`
	PaymentMethod   string            `gorm:"type:text"`
	ReferenceNumber string            `gorm:"type:text"`
	CheckID         *snowflake.ID     `gorm:"index"`
	TransactionDate time.Time         `gorm:"not null;index"`
	IsReconciled    bool              `gorm:"not null;default:false"`
	JournalEntryID  *snowflake.ID     `gorm:"index"`
	IdempotencyKey  *string           `gorm:"type:text;uniqueIndex:ux_trust_transactions_idem,priority:2"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedBy       snowflake.ID      `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (TrustTransaction) TableName() string { return "trust_transactions" }

// CheckStatus is the lifecycle state of a printed check.
type CheckStatus string

const (
	CheckStatusOutstanding CheckStatus = "outstanding"
	CheckStatusPrinted     CheckStatus = "printed"
	CheckStatusCleared     CheckStatus = "cleared"
	CheckStatusVoided      CheckStatus = "voided"
)

// CheckBatch groups checks generated from one check run. Reference is the
// opaque run identifier printed on check stubs and bank export files.
type CheckBatch struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	OrgID          snowflake.ID `gorm:"not null;index"`
	TrustAccountID snowflake.ID `gorm:"not null;index"`
	Reference      string       `gorm:"type:text;not null;uniqueIndex"`
	CreatedBy      snowflake.ID `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CheckBatch) TableName() string { return "check_batches" }

// Check is one printed check. Numbers are strictly increasing per trust
// account and never reused, voided or not.
type Check struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	CheckBatchID       snowflake.ID    `gorm:"not null;index"`
	TrustAccountID     snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_checks_account_number,priority:1"`
	TrustTransactionID snowflake.ID    `gorm:"not null;index"`
	Number             int64           `gorm:"not null;uniqueIndex:ux_checks_account_number,priority:2"`
	Payee              string          `gorm:"type:text;not null"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status             CheckStatus     `gorm:"type:text;not null;default:'printed'"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Check) TableName() string { return "checks" }

// CheckNumberSequence is the per-account check number allocator. NextNumber
// advances past reserved-but-unused numbers; gaps are never recycled.
type CheckNumberSequence struct {
	TrustAccountID snowflake.ID `gorm:"primaryKey"`
	NextNumber     int64        `gorm:"not null;default:1"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CheckNumberSequence) TableName() string { return "check_number_sequences" }

// Reconciliation records one reconciliation pass for a trust account.
type Reconciliation struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	OrgID          snowflake.ID    `gorm:"not null;index"`
	TrustAccountID snowflake.ID    `gorm:"not null;index"`
	BankBalance    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	LedgerBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Difference     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Balanced       bool            `gorm:"not null"`
	ReconciledAt   time.Time       `gorm:"not null"`
	CreatedBy      snowflake.ID    `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Reconciliation) TableName() string { return "trust_reconciliations" }
