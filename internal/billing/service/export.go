package service

import (
	"context"

	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	"github.com/lexfirma/trustledger/internal/billing/ledes"
)

// ExportLEDES loads the requested invoices with their line items and renders
// them in the explicitly selected format.
func (s *Service) ExportLEDES(ctx context.Context, req billingdomain.ExportLEDESRequest) (billingdomain.ExportLEDESResult, error) {
	if req.OrgID == 0 {
		return billingdomain.ExportLEDESResult{}, auditdomain.ErrInvalidOrganization
	}
	format := ledes.Format(req.Format)
	if !format.Valid() {
		return billingdomain.ExportLEDESResult{}, ledes.ErrUnknownFormat
	}
	if len(req.InvoiceIDs) == 0 {
		return billingdomain.ExportLEDESResult{}, ledes.ErrNoInvoices
	}

	bundle := make([]ledes.Invoice, 0, len(req.InvoiceIDs))
	for _, id := range req.InvoiceIDs {
		invoice, err := s.GetInvoice(ctx, req.OrgID, id)
		if err != nil {
			return billingdomain.ExportLEDESResult{}, err
		}
		items, err := s.GetInvoiceLineItems(ctx, req.OrgID, id)
		if err != nil {
			return billingdomain.ExportLEDESResult{}, err
		}
		bundle = append(bundle, ledes.Invoice{Invoice: invoice, Items: items})
	}

	data, err := ledes.Export(ledes.ExportRequest{
		LawFirmID:   req.LawFirmID,
		ClientCode:  req.ClientCode,
		MatterCode:  req.MatterCode,
		Description: req.Description,
		Invoices:    bundle,
	}, format)
	if err != nil {
		return billingdomain.ExportLEDESResult{}, err
	}
	return billingdomain.ExportLEDESResult{
		Data:        data,
		ContentType: format.ContentType(),
	}, nil
}
