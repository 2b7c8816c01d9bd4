// Package ledes renders invoices as LEDES e-billing documents. Output must
// be byte-for-byte reproducible: same invoices in, same bytes out.
package ledes

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	"github.com/shopspring/decimal"
)

// Format selects the output document type. Selection is always explicit.
type Format string

const (
	Format98B  Format = "LEDES98B"
	Format2000 Format = "LEDES2000"
)

func (f Format) Valid() bool { return f == Format98B || f == Format2000 }

// ContentType returns the MIME type for the rendered document.
func (f Format) ContentType() string {
	if f == Format2000 {
		return "application/xml"
	}
	return "text/plain"
}

var (
	ErrUnknownFormat = errors.New("unknown_ledes_format")
	ErrNoInvoices    = errors.New("no_invoices")
)

// Invoice bundles one invoice with its line items for export.
type Invoice struct {
	Invoice billingdomain.Invoice
	Items   []billingdomain.InvoiceLineItem
}

// ExportRequest carries firm and client identifiers that LEDES requires but
// the invoice rows do not store.
type ExportRequest struct {
	LawFirmID   string
	ClientCode  string
	MatterCode  string
	Description string
	Invoices    []Invoice
}

const dateLayout = "20060102"

// header98B is the LEDES 1998B field list, in mandated order.
var header98B = []string{
	"INVOICE_DATE",
	"INVOICE_NUMBER",
	"CLIENT_ID",
	"LAW_FIRM_MATTER_ID",
	"INVOICE_TOTAL",
	"BILLING_START_DATE",
	"BILLING_END_DATE",
	"INVOICE_DESCRIPTION",
	"LINE_ITEM_NUMBER",
	"EXP/FEE/INV_ADJ_TYPE",
	"LINE_ITEM_NUMBER_OF_UNITS",
	"LINE_ITEM_ADJUSTMENT_AMOUNT",
	"LINE_ITEM_TOTAL",
	"LINE_ITEM_DATE",
	"LINE_ITEM_TASK_CODE",
	"LINE_ITEM_EXPENSE_CODE",
	"LINE_ITEM_ACTIVITY_CODE",
	"TIMEKEEPER_ID",
	"LINE_ITEM_DESCRIPTION",
	"LAW_FIRM_ID",
	"LINE_ITEM_UNIT_COST",
	"TIMEKEEPER_NAME",
	"TIMEKEEPER_CLASSIFICATION",
	"CLIENT_MATTER_ID",
}

// Export renders the invoice set in the requested format.
func Export(req ExportRequest, format Format) ([]byte, error) {
	if !format.Valid() {
		return nil, ErrUnknownFormat
	}
	if len(req.Invoices) == 0 {
		return nil, ErrNoInvoices
	}
	if format == Format2000 {
		return export2000(req)
	}
	return export98B(req)
}

func export98B(req ExportRequest) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("LEDES98B[]\r\n")
	buf.WriteString(strings.Join(header98B, "|"))
	buf.WriteString("[]\r\n")

	for _, inv := range req.Invoices {
		invoice := inv.Invoice
		start, end := billingPeriod(inv.Items, invoice.IssueDate)
		for i, item := range inv.Items {
			fields := []string{
				invoice.IssueDate.Format(dateLayout),
				invoice.InvoiceNumber,
				req.ClientCode,
				matterCode(req, invoice),
				money2(invoice.Total),
				start.Format(dateLayout),
				end.Format(dateLayout),
				sanitize(req.Description),
				fmt.Sprintf("%d", i+1),
				adjType(item.ItemType),
				item.Quantity.StringFixed(2),
				"0.00",
				money2(item.Amount),
				item.ServiceDate.Format(dateLayout),
				item.TaskCode,
				item.ExpenseCode,
				item.ActivityCode,
				timekeeperID(item),
				sanitize(item.Description),
				req.LawFirmID,
				money2(item.Rate),
				"",
				item.TimekeeperLevel,
				matterCode(req, invoice),
			}
			buf.WriteString(strings.Join(fields, "|"))
			buf.WriteString("[]\r\n")
		}
		// 1998B has no tax fields; tax goes out as an invoice-level
		// adjustment line so line totals sum to the invoice total.
		if !invoice.TaxAmount.IsZero() {
			fields := []string{
				invoice.IssueDate.Format(dateLayout),
				invoice.InvoiceNumber,
				req.ClientCode,
				matterCode(req, invoice),
				money2(invoice.Total),
				start.Format(dateLayout),
				end.Format(dateLayout),
				sanitize(req.Description),
				fmt.Sprintf("%d", len(inv.Items)+1),
				"IE",
				"1.00",
				"0.00",
				money2(invoice.TaxAmount),
				invoice.IssueDate.Format(dateLayout),
				"",
				"",
				"",
				"",
				"Tax",
				req.LawFirmID,
				money2(invoice.TaxAmount),
				"",
				"",
				matterCode(req, invoice),
			}
			buf.WriteString(strings.Join(fields, "|"))
			buf.WriteString("[]\r\n")
		}
	}
	return buf.Bytes(), nil
}

func adjType(t billingdomain.LineItemType) string {
	switch t {
	case billingdomain.LineItemTypeExpense:
		return "E"
	case billingdomain.LineItemTypeAdjustment, billingdomain.LineItemTypeCredit:
		return "IF"
	default:
		return "F"
	}
}

func timekeeperID(item billingdomain.InvoiceLineItem) string {
	if item.TimekeeperID == nil {
		return ""
	}
	return item.TimekeeperID.String()
}

func matterCode(req ExportRequest, invoice billingdomain.Invoice) string {
	if req.MatterCode != "" {
		return req.MatterCode
	}
	if invoice.MatterID != nil {
		return invoice.MatterID.String()
	}
	return invoice.ClientID.String()
}

func billingPeriod(items []billingdomain.InvoiceLineItem, fallback time.Time) (time.Time, time.Time) {
	if len(items) == 0 {
		return fallback, fallback
	}
	start, end := items[0].ServiceDate, items[0].ServiceDate
	for _, item := range items[1:] {
		if item.ServiceDate.Before(start) {
			start = item.ServiceDate
		}
		if item.ServiceDate.After(end) {
			end = item.ServiceDate
		}
	}
	return start, end
}

func money2(d decimal.Decimal) string { return d.StringFixed(2) }

// sanitize strips the two characters that break the 98B framing.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", " ")
	s = strings.ReplaceAll(s, "[]", "")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
