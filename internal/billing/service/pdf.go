package service

import (
	"context"
	"errors"
	"io"

	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/lexfirma/trustledger/internal/providers/pdf"
)

var errPDFUnavailable = errors.New("pdf_rendering_unavailable")

const pdfDateLayout = "2006-01-02"

// InvoicePDF renders the invoice with its line items as a PDF.
func (s *Service) InvoicePDF(ctx context.Context, req billingdomain.InvoicePDFRequest) (io.Reader, error) {
	if s.pdfProvider == nil {
		return nil, errPDFUnavailable
	}
	invoice, err := s.GetInvoice(ctx, req.OrgID, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	items, err := s.GetInvoiceLineItems(ctx, req.OrgID, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	rows := make([]pdf.InvoiceItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, pdf.InvoiceItem{
			Description: item.Description,
			Quantity:    item.Quantity.StringFixed(2),
			Rate:        money.Format(item.Rate),
			Amount:      money.Format(item.Amount),
		})
	}

	return s.pdfProvider.GenerateInvoice(ctx, pdf.InvoiceData{
		FirmName:      req.FirmName,
		FirmAddress:   req.FirmAddress,
		FirmEmail:     req.FirmEmail,
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.IssueDate.Format(pdfDateLayout),
		DueDate:       invoice.DueDate.Format(pdfDateLayout),
		Status:        string(invoice.Status),
		BillToName:    req.BillToName,
		BillToAddress: req.BillToAddr,
		Items:         rows,
		Subtotal:      money.Format(invoice.Subtotal),
		Tax:           money.Format(invoice.TaxAmount),
		Total:         money.Format(invoice.Total),
		AmountPaid:    money.Format(invoice.AmountPaid),
		BalanceDue:    money.Format(invoice.BalanceDue),
	})
}
