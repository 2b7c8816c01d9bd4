package ledes

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice(t *testing.T) Invoice {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	issueDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	invoice := billingdomain.Invoice{
		ID:            node.Generate(),
		OrgID:         node.Generate(),
		ClientID:      node.Generate(),
		InvoiceNumber: "INV-2026-014",
		Status:        billingdomain.InvoiceStatusSent,
		Currency:      "USD",
		IssueDate:     issueDate,
		DueDate:       issueDate.AddDate(0, 0, 30),
		Subtotal:      decimal.RequireFromString("1060.00"),
		TaxAmount:     decimal.RequireFromString("4.80"),
		Total:         decimal.RequireFromString("1064.80"),
		BalanceDue:    decimal.RequireFromString("1064.80"),
	}
	timekeeper := node.Generate()
	items := []billingdomain.InvoiceLineItem{
		{
			ID:              node.Generate(),
			InvoiceID:       invoice.ID,
			ItemType:        billingdomain.LineItemTypeTimeEntry,
			Description:     "Draft settlement agreement | with exhibits",
			Quantity:        decimal.RequireFromString("2.5"),
			Rate:            decimal.RequireFromString("400.00"),
			Amount:          decimal.RequireFromString("1000.00"),
			TaskCode:        "L160",
			ActivityCode:    "A103",
			TimekeeperID:    &timekeeper,
			TimekeeperLevel: "PT",
			ServiceDate:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:          node.Generate(),
			InvoiceID:   invoice.ID,
			ItemType:    billingdomain.LineItemTypeExpense,
			Description: "Filing fee",
			Quantity:    decimal.RequireFromString("1"),
			Rate:        decimal.RequireFromString("60.00"),
			Amount:      decimal.RequireFromString("60.00"),
			ExpenseCode: "E112",
			ServiceDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
	}
	return Invoice{Invoice: invoice, Items: items}
}

func sampleRequest(t *testing.T) ExportRequest {
	return ExportRequest{
		LawFirmID:   "94-1234567",
		ClientCode:  "ACME",
		MatterCode:  "ACME-0042",
		Description: "March services",
		Invoices:    []Invoice{sampleInvoice(t)},
	}
}

func TestExport98B_ValidatesClean(t *testing.T) {
	data, err := Export(sampleRequest(t), Format98B)
	require.NoError(t, err)

	errs := Validate(data, Format98B)
	assert.Empty(t, errs)
}

func TestExport98B_Framing(t *testing.T) {
	data, err := Export(sampleRequest(t), Format98B)
	require.NoError(t, err)

	lines := strings.Split(string(data), "\r\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "LEDES98B[]", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "INVOICE_DATE|INVOICE_NUMBER|"))
	assert.True(t, strings.HasSuffix(lines[1], "[]"))

	record := strings.TrimSuffix(lines[2], "[]")
	fields := strings.Split(record, "|")
	require.Len(t, fields, 24)
	assert.Equal(t, "20260315", fields[0])
	assert.Equal(t, "INV-2026-014", fields[1])
	assert.Equal(t, "ACME", fields[2])
	assert.Equal(t, "1064.80", fields[4])
	// Billing period spans the line item service dates.
	assert.Equal(t, "20260302", fields[5])
	assert.Equal(t, "20260310", fields[6])
	assert.Equal(t, "F", fields[9])
	// The pipe in the description was sanitized out of the framing.
	assert.NotContains(t, fields[18], "|")

	expense := strings.Split(strings.TrimSuffix(lines[3], "[]"), "|")
	require.Len(t, expense, 24)
	assert.Equal(t, "E", expense[9])
	assert.Equal(t, "E112", expense[15])

	// Tax rides as an invoice-level adjustment so line totals sum to the
	// invoice total.
	tax := strings.Split(strings.TrimSuffix(lines[4], "[]"), "|")
	require.Len(t, tax, 24)
	assert.Equal(t, "IE", tax[9])
	assert.Equal(t, "4.80", tax[12])
	assert.Equal(t, "Tax", tax[18])
}

func TestExport2000_ValidatesClean(t *testing.T) {
	data, err := Export(sampleRequest(t), Format2000)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(data), "<?xml"))
	errs := Validate(data, Format2000)
	assert.Empty(t, errs)
}

func TestExport_Deterministic(t *testing.T) {
	req := sampleRequest(t)
	for _, format := range []Format{Format98B, Format2000} {
		first, err := Export(req, format)
		require.NoError(t, err)
		second, err := Export(req, format)
		require.NoError(t, err)
		assert.Equal(t, first, second, string(format))
	}
}

func TestExport_UnknownFormatRejected(t *testing.T) {
	_, err := Export(sampleRequest(t), Format("LEDES99"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExport_EmptyInvoiceSetRejected(t *testing.T) {
	_, err := Export(ExportRequest{}, Format98B)
	assert.ErrorIs(t, err, ErrNoInvoices)
}

func TestValidate98B_FlagsCorruptedDocument(t *testing.T) {
	data, err := Export(sampleRequest(t), Format98B)
	require.NoError(t, err)

	corrupted := strings.Replace(string(data), "20260315", "2026-03-15", 1)
	errs := Validate([]byte(corrupted), Format98B)
	require.NotEmpty(t, errs)
	assert.Equal(t, "INVOICE_DATE", errs[0].Field)
}

func TestValidate98B_FlagsInconsistentInvoiceTotal(t *testing.T) {
	data, err := Export(sampleRequest(t), Format98B)
	require.NoError(t, err)

	// Shave a line item total; the stated invoice total no longer matches.
	corrupted := strings.Replace(string(data), "|1000.00|", "|999.00|", 1)
	require.NotEqual(t, string(data), corrupted)

	errs := Validate([]byte(corrupted), Format98B)
	require.NotEmpty(t, errs)
	assert.Equal(t, "INVOICE_TOTAL", errs[0].Field)
	assert.Contains(t, errs[0].Message, "1063.80")
	assert.Contains(t, errs[0].Message, "1064.80")
}

func TestValidate2000_FlagsInconsistentInvoiceTotal(t *testing.T) {
	data, err := Export(sampleRequest(t), Format2000)
	require.NoError(t, err)

	corrupted := strings.Replace(string(data), "<inv_total>1064.80</inv_total>", "<inv_total>1100.00</inv_total>", 1)
	require.NotEqual(t, string(data), corrupted)

	errs := Validate([]byte(corrupted), Format2000)
	require.NotEmpty(t, errs)
	assert.Equal(t, "inv_total", errs[0].Field)
	assert.Contains(t, errs[0].Message, "1064.80")
}

func TestValidate98B_MissingSignature(t *testing.T) {
	errs := Validate([]byte("HEADER\r\nA|B[]\r\nrecord[]\r\n"), Format98B)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "signature")
}
