// Package domain contains persistence models for the double-entry journal.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/shopspring/decimal"
)

// AccountType classifies chart-of-accounts entries.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// AccountCode identifies a well-known chart account.
type AccountCode string

const (
	AccountCodeOperatingCash        AccountCode = "operating_cash"
	AccountCodeTrustCash            AccountCode = "trust_cash"
	AccountCodeAccountsReceivable   AccountCode = "accounts_receivable"
	AccountCodeAccountsPayable      AccountCode = "accounts_payable"
	AccountCodeClientTrustLiability AccountCode = "client_trust_liability"
	AccountCodeTaxPayable           AccountCode = "tax_payable"
	AccountCodeLegalFeeIncome       AccountCode = "legal_fee_income"
	AccountCodeInterestIncome       AccountCode = "interest_income"
	AccountCodeExpense              AccountCode = "firm_expense"
)

// Type returns the account type for a well-known code.
func (c AccountCode) Type() AccountType {
	switch c {
	case AccountCodeOperatingCash, AccountCodeTrustCash, AccountCodeAccountsReceivable:
		return AccountTypeAsset
	case AccountCodeAccountsPayable, AccountCodeClientTrustLiability, AccountCodeTaxPayable:
		return AccountTypeLiability
	case AccountCodeLegalFeeIncome, AccountCodeInterestIncome:
		return AccountTypeIncome
	case AccountCodeExpense:
		return AccountTypeExpense
	default:
		return AccountTypeEquity
	}
}

// DefaultName returns the display name seeded for a well-known code.
func (c AccountCode) DefaultName() string {
	switch c {
	case AccountCodeOperatingCash:
		return "Operating Cash"
	case AccountCodeTrustCash:
		return "Trust Cash"
	case AccountCodeAccountsReceivable:
		return "Accounts Receivable"
	case AccountCodeAccountsPayable:
		return "Accounts Payable"
	case AccountCodeClientTrustLiability:
		return "Client Trust Liability"
	case AccountCodeTaxPayable:
		return "Tax Payable"
	case AccountCodeLegalFeeIncome:
		return "Legal Fee Income"
	case AccountCodeInterestIncome:
		return "Interest Income"
	case AccountCodeExpense:
		return "Firm Expense"
	default:
		return string(c)
	}
}

// ChartAccount defines a chart-of-accounts entry.
type ChartAccount struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_chart_accounts_org_code,priority:1"`
	Code      AccountCode  `gorm:"type:text;not null;uniqueIndex:ux_chart_accounts_org_code,priority:2"`
	Name      string       `gorm:"type:text;not null"`
	Type      AccountType  `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ChartAccount) TableName() string { return "chart_accounts" }

// JournalType classifies journal entries.
type JournalType string

const (
	JournalTypeStandard  JournalType = "standard"
	JournalTypeAdjusting JournalType = "adjusting"
	JournalTypeClosing   JournalType = "closing"
	JournalTypeReversing JournalType = "reversing"
)

func (t JournalType) Valid() bool {
	switch t {
	case JournalTypeStandard, JournalTypeAdjusting, JournalTypeClosing, JournalTypeReversing:
		return true
	default:
		return false
	}
}

// SourceType names the event a journal entry was derived from. The
// (org_id, source_type, source_id) unique index is what makes
// auto-generation idempotent.
type SourceType string

const (
	SourceTypeInvoice          SourceType = "invoice"
	SourceTypePayment          SourceType = "payment"
	SourceTypeExpense          SourceType = "expense"
	SourceTypeTrustTransaction SourceType = "trust_transaction"
	SourceTypeVendorPayment    SourceType = "vendor_payment"
	SourceTypeManual           SourceType = "manual"
)

// JournalEntry groups at least two lines whose debits and credits balance.
// An unbalanced entry is rejected at creation, never stored-then-flagged.
type JournalEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	OrgID       snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_journal_entries_source,priority:1"`
	Type        JournalType   `gorm:"type:text;not null"`
	Description string        `gorm:"type:text"`
	PostedDate  time.Time     `gorm:"not null;index"`
	SourceType  SourceType    `gorm:"type:text;not null;uniqueIndex:ux_journal_entries_source,priority:2"`
	SourceID    *snowflake.ID `gorm:"uniqueIndex:ux_journal_entries_source,priority:3"`
	CreatedBy   snowflake.ID  `gorm:"not null"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (JournalEntry) TableName() string { return "journal_entries" }

// JournalLine is one debit or credit against a chart account. Exactly one of
// Debit/Credit is positive.
type JournalLine struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	JournalEntryID snowflake.ID    `gorm:"not null;index"`
	AccountID      snowflake.ID    `gorm:"not null;index"`
	Debit          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	Credit         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	Memo           string          `gorm:"type:text"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (JournalLine) TableName() string { return "journal_lines" }

// ValidateLines checks structural line rules: >= 2 lines, valid accounts,
// exactly one side set per line.
func ValidateLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	for _, line := range lines {
		if line.AccountID == 0 {
			return ErrInvalidAccount
		}
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return ErrInvalidLineAmount
		}
		if debitSet == creditSet {
			return ErrInvalidLineAmount
		}
	}
	return nil
}

// ValidateBalanced checks the balance invariant at the minor currency unit.
func ValidateBalanced(lines []JournalLine) error {
	var debits, credits decimal.Decimal
	for _, line := range lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if money.Cents(debits) != money.Cents(credits) {
		return &UnbalancedJournalError{Debits: debits, Credits: credits}
	}
	return nil
}
