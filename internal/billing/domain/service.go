package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceNotPayable  = errors.New("invoice_not_payable")
	ErrInvalidInvoice     = errors.New("invalid_invoice")
	ErrInvalidPayment     = errors.New("invalid_payment")
	ErrOverpayment        = errors.New("overpayment")
	ErrInvalidTransition  = errors.New("invalid_invoice_transition")
	ErrDuplicateInvoiceNo = errors.New("duplicate_invoice_number")
)

// OverpaymentError rejects a payment exceeding the invoice's remaining
// balance; the excess is never silently clamped.
type OverpaymentError struct {
	InvoiceID   snowflake.ID
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("overpayment: requested %s exceeds balance due %s on invoice %s",
		money.Format(e.Requested), money.Format(e.Outstanding), e.InvoiceID)
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

type LineItemInput struct {
	ItemType        LineItemType
	Description     string
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	Taxable         bool
	TaskCode        string
	ActivityCode    string
	ExpenseCode     string
	TimekeeperID    *snowflake.ID
	TimekeeperLevel string
	ServiceDate     time.Time
}

type CreateInvoiceRequest struct {
	OrgID         snowflake.ID
	ClientID      snowflake.ID
	MatterID      *snowflake.ID
	InvoiceNumber string
	Currency      string
	IssueDate     time.Time
	DueDate       time.Time
	// TaxRate is a percentage applied per taxable line.
	TaxRate     decimal.Decimal
	Notes       string
	LineItems   []LineItemInput
	PerformedBy snowflake.ID
}

type CreatePaymentRequest struct {
	OrgID           snowflake.ID
	InvoiceID       snowflake.ID
	Amount          decimal.Decimal
	Method          string
	ReferenceNumber string
	ReceivedAt      time.Time
	PerformedBy     snowflake.ID
}

// PayFromTrustRequest drives a transfer_to_operating trust debit and a
// payment as one atomic unit.
type PayFromTrustRequest struct {
	OrgID          snowflake.ID
	InvoiceID      snowflake.ID
	TrustAccountID snowflake.ID
	ClientLedgerID snowflake.ID
	Amount         decimal.Decimal
	IdempotencyKey string
	PerformedBy    snowflake.ID
}

type BatchInvoiceFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

type BatchInvoiceResult struct {
	Succeeded []Invoice             `json:"succeeded"`
	Failed    []BatchInvoiceFailure `json:"failed"`
}

type ListInvoicesRequest struct {
	pagination.Pagination
	OrgID    snowflake.ID
	ClientID snowflake.ID
	Status   InvoiceStatus
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// Service is the billing and invoice engine.
type Service interface {
	// CreateInvoice computes subtotal, tax, total, and balance due from the
	// line items; the invoice starts as draft.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (Invoice, error)
	GetInvoiceLineItems(ctx context.Context, orgID, invoiceID snowflake.ID) ([]InvoiceLineItem, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)

	SendInvoice(ctx context.Context, orgID, invoiceID, performedBy snowflake.ID) error
	MarkInvoiceViewed(ctx context.Context, orgID, invoiceID snowflake.ID) error
	VoidInvoice(ctx context.Context, orgID, invoiceID, performedBy snowflake.ID) error

	// CreatePayment applies a payment, rejecting any amount above the
	// remaining balance due, and moves the invoice to partially_paid or paid.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error)

	// PayInvoiceFromTrust debits the client trust ledger and records the
	// payment atomically; if the debit fails the payment is never created.
	PayInvoiceFromTrust(ctx context.Context, req PayFromTrustRequest) (Payment, error)

	// BatchCreateInvoices applies per-item atomicity with batch best effort.
	BatchCreateInvoices(ctx context.Context, orgID snowflake.ID, reqs []CreateInvoiceRequest) (BatchInvoiceResult, error)

	// MarkOverdueInvoices flips sent/viewed invoices past their due date to
	// overdue. Returns the number updated.
	MarkOverdueInvoices(ctx context.Context, orgID snowflake.ID, asOf time.Time) (int, error)

	// ExportLEDES renders the invoices as a LEDES document. The returned
	// content type is text/plain for 98B and application/xml for 2000.
	ExportLEDES(ctx context.Context, req ExportLEDESRequest) (ExportLEDESResult, error)

	// InvoicePDF renders the invoice as a PDF document.
	InvoicePDF(ctx context.Context, req InvoicePDFRequest) (io.Reader, error)
}

type InvoicePDFRequest struct {
	OrgID       snowflake.ID
	InvoiceID   snowflake.ID
	FirmName    string
	FirmAddress string
	FirmEmail   string
	BillToName  string
	BillToAddr  string
}

type ExportLEDESRequest struct {
	OrgID      snowflake.ID
	InvoiceIDs []snowflake.ID
	// Format is "LEDES98B" or "LEDES2000"; it is never inferred.
	Format      string
	LawFirmID   string
	ClientCode  string
	MatterCode  string
	Description string
}

type ExportLEDESResult struct {
	Data        []byte
	ContentType string
}
