package ledes

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError reports one defect in a LEDES document.
type ValidationError struct {
	Line    int
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d, %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Validate parses a rendered document and reports structural defects. A
// document produced by Export for a valid invoice set validates clean; this
// round-trip is the compliance contract.
func Validate(data []byte, format Format) []ValidationError {
	switch format {
	case Format98B:
		return validate98B(data)
	case Format2000:
		return validate2000(data)
	default:
		return []ValidationError{{Line: 0, Message: "unknown format"}}
	}
}

func validate98B(data []byte) []ValidationError {
	var errs []ValidationError
	lines := strings.Split(string(data), "\r\n")
	if len(lines) < 3 {
		return []ValidationError{{Line: 1, Message: "document too short"}}
	}
	if lines[0] != "LEDES98B[]" {
		errs = append(errs, ValidationError{Line: 1, Message: "missing LEDES98B[] signature"})
	}

	header := strings.TrimSuffix(lines[1], "[]")
	names := strings.Split(header, "|")
	if len(names) != len(header98B) {
		errs = append(errs, ValidationError{
			Line:    2,
			Message: fmt.Sprintf("header has %d fields, want %d", len(names), len(header98B)),
		})
		return errs
	}
	for i, name := range names {
		if name != header98B[i] {
			errs = append(errs, ValidationError{
				Line:    2,
				Field:   header98B[i],
				Message: fmt.Sprintf("unexpected header field %q", name),
			})
		}
	}

	idx := fieldIndex()
	type invoiceTotals struct {
		total    decimal.Decimal
		lineSum  decimal.Decimal
		lastLine int
	}
	totals := map[string]*invoiceTotals{}
	var order []string
	for n, raw := range lines[2:] {
		lineNo := n + 3
		if raw == "" {
			continue
		}
		if !strings.HasSuffix(raw, "[]") {
			errs = append(errs, ValidationError{Line: lineNo, Message: "missing [] record terminator"})
			continue
		}
		fields := strings.Split(strings.TrimSuffix(raw, "[]"), "|")
		if len(fields) != len(header98B) {
			errs = append(errs, ValidationError{
				Line:    lineNo,
				Message: fmt.Sprintf("record has %d fields, want %d", len(fields), len(header98B)),
			})
			continue
		}
		for _, f := range []string{"INVOICE_DATE", "BILLING_START_DATE", "BILLING_END_DATE", "LINE_ITEM_DATE"} {
			if _, err := time.Parse(dateLayout, fields[idx[f]]); err != nil {
				errs = append(errs, ValidationError{Line: lineNo, Field: f, Message: "not a YYYYMMDD date"})
			}
		}
		for _, f := range []string{"INVOICE_TOTAL", "LINE_ITEM_TOTAL", "LINE_ITEM_UNIT_COST", "LINE_ITEM_ADJUSTMENT_AMOUNT"} {
			if _, err := decimal.NewFromString(fields[idx[f]]); err != nil {
				errs = append(errs, ValidationError{Line: lineNo, Field: f, Message: "not a decimal amount"})
			}
		}
		switch fields[idx["EXP/FEE/INV_ADJ_TYPE"]] {
		case "F", "E", "IF", "IE":
		default:
			errs = append(errs, ValidationError{Line: lineNo, Field: "EXP/FEE/INV_ADJ_TYPE", Message: "invalid type code"})
		}
		if fields[idx["INVOICE_NUMBER"]] == "" {
			errs = append(errs, ValidationError{Line: lineNo, Field: "INVOICE_NUMBER", Message: "empty"})
			continue
		}

		number := fields[idx["INVOICE_NUMBER"]]
		total, totalErr := decimal.NewFromString(fields[idx["INVOICE_TOTAL"]])
		lineTotal, lineErr := decimal.NewFromString(fields[idx["LINE_ITEM_TOTAL"]])
		if totalErr != nil || lineErr != nil {
			continue
		}
		inv, ok := totals[number]
		if !ok {
			inv = &invoiceTotals{total: total}
			totals[number] = inv
			order = append(order, number)
		}
		inv.lineSum = inv.lineSum.Add(lineTotal)
		inv.lastLine = lineNo
	}

	// Line totals must sum to the stated invoice total.
	for _, number := range order {
		inv := totals[number]
		if !inv.lineSum.Equal(inv.total) {
			errs = append(errs, ValidationError{
				Line:    inv.lastLine,
				Field:   "INVOICE_TOTAL",
				Message: fmt.Sprintf("invoice %s line items sum to %s, stated total %s", number, inv.lineSum.StringFixed(2), inv.total.StringFixed(2)),
			})
		}
	}
	return errs
}

func fieldIndex() map[string]int {
	idx := make(map[string]int, len(header98B))
	for i, name := range header98B {
		idx[name] = i
	}
	return idx
}

func validate2000(data []byte) []ValidationError {
	var doc ledes2000
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return []ValidationError{{Line: 0, Message: fmt.Sprintf("malformed xml: %v", err)}}
	}
	var errs []ValidationError
	if len(doc.Invoice) == 0 {
		errs = append(errs, ValidationError{Message: "no invoices"})
	}
	for _, inv := range doc.Invoice {
		if inv.Number == "" {
			errs = append(errs, ValidationError{Field: "inv_number", Message: "empty"})
		}
		if _, err := time.Parse(dateLayout, inv.Date); err != nil {
			errs = append(errs, ValidationError{Field: "inv_date", Message: "not a YYYYMMDD date"})
		}
		total, totalErr := decimal.NewFromString(inv.Total)
		if totalErr != nil {
			errs = append(errs, ValidationError{Field: "inv_total", Message: "not a decimal amount"})
		}
		tax := decimal.Zero
		if inv.Tax != "" {
			var err error
			if tax, err = decimal.NewFromString(inv.Tax); err != nil {
				errs = append(errs, ValidationError{Field: "inv_tax", Message: "not a decimal amount"})
				continue
			}
		}
		lineSum := decimal.Zero
		clean := totalErr == nil
		for _, li := range inv.LineItems {
			liTotal, err := decimal.NewFromString(li.Total)
			if err != nil {
				errs = append(errs, ValidationError{Field: "li_total", Message: "not a decimal amount"})
				clean = false
				continue
			}
			lineSum = lineSum.Add(liTotal)
		}
		if clean && !lineSum.Add(tax).Equal(total) {
			errs = append(errs, ValidationError{
				Field:   "inv_total",
				Message: fmt.Sprintf("invoice %s line items and tax sum to %s, stated total %s", inv.Number, lineSum.Add(tax).StringFixed(2), total.StringFixed(2)),
			})
		}
	}
	return errs
}
