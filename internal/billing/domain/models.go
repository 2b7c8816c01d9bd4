// Package domain contains persistence models for billing: invoices, line
// items, and payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the invoice lifecycle. Void is terminal; paid is reached
// only when balance due hits zero.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusViewed        InvoiceStatus = "viewed"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

// Payable reports whether the invoice can still accept payments.
func (s InvoiceStatus) Payable() bool {
	switch s {
	case InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid:
		return true
	default:
		return false
	}
}

// CanTransitionTo enumerates legal lifecycle moves.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusSent || next == InvoiceStatusVoid
	case InvoiceStatusSent:
		return next == InvoiceStatusViewed || next == InvoiceStatusOverdue ||
			next == InvoiceStatusPartiallyPaid || next == InvoiceStatusPaid ||
			next == InvoiceStatusVoid
	case InvoiceStatusViewed:
		return next == InvoiceStatusOverdue || next == InvoiceStatusPartiallyPaid ||
			next == InvoiceStatusPaid || next == InvoiceStatusVoid
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPartiallyPaid || next == InvoiceStatusPaid ||
			next == InvoiceStatusVoid
	case InvoiceStatusPartiallyPaid:
		return next == InvoiceStatusOverdue || next == InvoiceStatusPaid
	default:
		return false
	}
}

// Invoice totals are derived from line items at creation; BalanceDue is
// recomputed as Total - AmountPaid on every payment, never written
// independently of its inputs.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	OrgID         snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_number,priority:1"`
	ClientID      snowflake.ID    `gorm:"not null;index"`
	MatterID      *snowflake.ID   `gorm:"index"`
	InvoiceNumber string          `gorm:"type:text;not null;uniqueIndex:ux_invoices_number,priority:2"`
	Status        InvoiceStatus   `gorm:"type:text;not null;default:'draft'"`
	Currency      string          `gorm:"type:text;not null"`
	IssueDate     time.Time       `gorm:"not null"`
	DueDate       time.Time       `gorm:"not null;index"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Total         decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Notes         string          `gorm:"type:text"`
	CreatedBy     snowflake.ID    `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// LineItemType classifies invoice line items.
type LineItemType string

const (
	LineItemTypeTimeEntry  LineItemType = "time_entry"
	LineItemTypeExpense    LineItemType = "expense"
	LineItemTypeFixedFee   LineItemType = "fixed_fee"
	LineItemTypeAdjustment LineItemType = "adjustment"
	LineItemTypeCredit     LineItemType = "credit"
)

func (t LineItemType) Valid() bool {
	switch t {
	case LineItemTypeTimeEntry, LineItemTypeExpense, LineItemTypeFixedFee,
		LineItemTypeAdjustment, LineItemTypeCredit:
		return true
	default:
		return false
	}
}

// InvoiceLineItem carries the UTBMS task/activity/expense codes required by
// LEDES e-billing.
type InvoiceLineItem struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	InvoiceID       snowflake.ID    `gorm:"not null;index"`
	ItemType        LineItemType    `gorm:"type:text;not null"`
	Description     string          `gorm:"type:text;not null"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Taxable         bool            `gorm:"not null;default:false"`
	TaskCode        string          `gorm:"type:text"`
	ActivityCode    string          `gorm:"type:text"`
	ExpenseCode     string          `gorm:"type:text"`
	TimekeeperID    *snowflake.ID   `gorm:"index"`
	TimekeeperLevel string          `gorm:"type:text"`
	ServiceDate     time.Time       `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// PaymentMethod is free-form but a few values carry meaning for reporting.
const (
	PaymentMethodTrust = "trust"
	PaymentMethodCheck = "check"
	PaymentMethodWire  = "wire"
	PaymentMethodCard  = "card"
)

// Payment records money received against an invoice. TrustTransactionID is
// set when the funds came out of a client trust ledger.
type Payment struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	OrgID              snowflake.ID    `gorm:"not null;index"`
	InvoiceID          snowflake.ID    `gorm:"not null;index"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Method             string          `gorm:"type:text;not null"`
	ReferenceNumber    string          `gorm:"type:text"`
	TrustTransactionID *snowflake.ID   `gorm:"index"`
	JournalEntryID     *snowflake.ID   `gorm:"index"`
	ReceivedAt         time.Time       `gorm:"not null"`
	CreatedBy          snowflake.ID    `gorm:"not null"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
