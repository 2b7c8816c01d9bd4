// Package pdf renders invoices and trust statements as PDF documents.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
	GenerateTrustStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

type InvoiceData struct {
	FirmName    string
	FirmAddress string
	FirmEmail   string

	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string

	BillToName    string
	BillToAddress string

	Items []InvoiceItem

	Subtotal   string
	Tax        string
	Total      string
	AmountPaid string
	BalanceDue string
}

type InvoiceItem struct {
	Description string
	Quantity    string
	Rate        string
	Amount      string
}

// StatementData is one client ledger's activity over a statement period.
type StatementData struct {
	FirmName    string
	AccountName string
	LedgerName  string
	ClientName  string
	PeriodStart string
	PeriodEnd   string
	Opening     string
	Closing     string
	Lines       []StatementLine
}

type StatementLine struct {
	Date        string
	Type        string
	Description string
	Amount      string
	Balance     string
}

// Module wires the maroto-backed provider.
var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
