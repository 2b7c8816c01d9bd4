package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/lexfirma/trustledger/internal/providers/pdf"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/lexfirma/trustledger/pkg/db"
	"github.com/lexfirma/trustledger/pkg/db/option"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	TrustSvc    trustdomain.Service
	JournalSvc  journaldomain.Service
	AuditSvc    auditdomain.Service
	PDFProvider pdf.Provider `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	trustSvc    trustdomain.Service
	journalSvc  journaldomain.Service
	auditSvc    auditdomain.Service
	pdfProvider pdf.Provider
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		genID:       p.GenID,
		trustSvc:    p.TrustSvc,
		journalSvc:  p.JournalSvc,
		auditSvc:    p.AuditSvc,
		pdfProvider: p.PDFProvider,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req billingdomain.CreateInvoiceRequest) (billingdomain.Invoice, error) {
	if req.OrgID == 0 {
		return billingdomain.Invoice{}, auditdomain.ErrInvalidOrganization
	}
	if req.ClientID == 0 || len(req.LineItems) == 0 {
		return billingdomain.Invoice{}, billingdomain.ErrInvalidInvoice
	}
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		return billingdomain.Invoice{}, billingdomain.ErrInvalidInvoice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if req.TaxRate.IsNegative() {
		return billingdomain.Invoice{}, billingdomain.ErrInvalidInvoice
	}

	now := time.Now().UTC()
	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = issueDate.AddDate(0, 0, 30)
	}

	subtotal := decimal.Zero
	taxAmount := decimal.Zero
	items := make([]billingdomain.InvoiceLineItem, 0, len(req.LineItems))
	for _, in := range req.LineItems {
		if !in.ItemType.Valid() {
			return billingdomain.Invoice{}, billingdomain.ErrInvalidInvoice
		}
		if strings.TrimSpace(in.Description) == "" {
			return billingdomain.Invoice{}, billingdomain.ErrInvalidInvoice
		}
		amount := in.Quantity.Mul(in.Rate).Round(2)
		subtotal = subtotal.Add(amount)
		if in.Taxable {
			taxAmount = taxAmount.Add(amount.Mul(req.TaxRate).Div(decimal.NewFromInt(100)).Round(2))
		}
		serviceDate := in.ServiceDate
		if serviceDate.IsZero() {
			serviceDate = issueDate
		}
		items = append(items, billingdomain.InvoiceLineItem{
			ID:              s.genID.Generate(),
			ItemType:        in.ItemType,
			Description:     strings.TrimSpace(in.Description),
			Quantity:        in.Quantity,
			Rate:            in.Rate,
			Amount:          amount,
			Taxable:         in.Taxable,
			TaskCode:        in.TaskCode,
			ActivityCode:    in.ActivityCode,
			ExpenseCode:     in.ExpenseCode,
			TimekeeperID:    in.TimekeeperID,
			TimekeeperLevel: in.TimekeeperLevel,
			ServiceDate:     serviceDate.UTC(),
			CreatedAt:       now,
		})
	}
	total := subtotal.Add(taxAmount)

	invoice := billingdomain.Invoice{
		ID:            s.genID.Generate(),
		OrgID:         req.OrgID,
		ClientID:      req.ClientID,
		MatterID:      req.MatterID,
		InvoiceNumber: number,
		Status:        billingdomain.InvoiceStatusDraft,
		Currency:      currency,
		IssueDate:     issueDate.UTC(),
		DueDate:       dueDate.UTC(),
		Subtotal:      subtotal,
		TaxAmount:     taxAmount,
		Total:         total,
		AmountPaid:    decimal.Zero,
		BalanceDue:    total,
		Notes:         req.Notes,
		CreatedBy:     req.PerformedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return billingdomain.ErrDuplicateInvoiceNo
			}
			return err
		}
		for i := range items {
			items[i].InvoiceID = invoice.ID
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return billingdomain.Invoice{}, err
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "billing.invoice_created", "invoice", invoice.ID, map[string]any{
		"invoice_number": number,
		"total":          money.Format(total),
	})
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (billingdomain.Invoice, error) {
	var invoice billingdomain.Invoice
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", invoiceID, orgID).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billingdomain.Invoice{}, billingdomain.ErrInvoiceNotFound
		}
		return billingdomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) GetInvoiceLineItems(ctx context.Context, orgID, invoiceID snowflake.ID) ([]billingdomain.InvoiceLineItem, error) {
	if _, err := s.GetInvoice(ctx, orgID, invoiceID); err != nil {
		return nil, err
	}
	var items []billingdomain.InvoiceLineItem
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("service_date asc, id asc").
		Find(&items).Error
	return items, err
}

func (s *Service) ListInvoices(ctx context.Context, req billingdomain.ListInvoicesRequest) (billingdomain.ListInvoicesResponse, error) {
	if req.OrgID == 0 {
		return billingdomain.ListInvoicesResponse{}, auditdomain.ErrInvalidOrganization
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	stmt := s.db.WithContext(ctx).Model(&billingdomain.Invoice{}).
		Where("org_id = ?", req.OrgID)
	if req.ClientID != 0 {
		stmt = stmt.Where("client_id = ?", req.ClientID)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return billingdomain.ListInvoicesResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return billingdomain.ListInvoicesResponse{}, auditdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("id < ?", id)
	}

	var invoices []*billingdomain.Invoice
	if err := stmt.Order("id desc").Limit(pageSize + 1).Find(&invoices).Error; err != nil {
		return billingdomain.ListInvoicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(invoices, int32(pageSize), func(item *billingdomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(invoices) > pageSize {
		invoices = invoices[:pageSize]
	}

	out := make([]billingdomain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, *inv)
	}
	return billingdomain.ListInvoicesResponse{PageInfo: *pageInfo, Invoices: out}, nil
}

// SendInvoice issues a draft invoice and posts the accounts-receivable
// journal entry.
func (s *Service) SendInvoice(ctx context.Context, orgID, invoiceID, performedBy snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.Status.CanTransitionTo(billingdomain.InvoiceStatusSent) {
			return billingdomain.ErrInvalidTransition
		}

		if _, err := s.journalSvc.CreateFromInvoice(ctx, tx, journaldomain.BillingEvent{
			SourceID:    invoice.ID,
			OrgID:       orgID,
			Subtotal:    invoice.Subtotal,
			Tax:         invoice.TaxAmount,
			Total:       invoice.Total,
			Description: fmt.Sprintf("Invoice %s issued", invoice.InvoiceNumber),
			Date:        invoice.IssueDate,
			PerformedBy: performedBy,
		}); err != nil {
			return err
		}

		return tx.Model(&billingdomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"status":     billingdomain.InvoiceStatusSent,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.audit(ctx, orgID, performedBy, "billing.invoice_sent", "invoice", invoiceID, nil)
	return nil
}

func (s *Service) MarkInvoiceViewed(ctx context.Context, orgID, invoiceID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != billingdomain.InvoiceStatusSent {
			return nil
		}
		return tx.Model(&billingdomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"status":     billingdomain.InvoiceStatusViewed,
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

func (s *Service) VoidInvoice(ctx context.Context, orgID, invoiceID, performedBy snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.Status.CanTransitionTo(billingdomain.InvoiceStatusVoid) {
			return billingdomain.ErrInvalidTransition
		}
		return tx.Model(&billingdomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"status":     billingdomain.InvoiceStatusVoid,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.audit(ctx, orgID, performedBy, "billing.invoice_voided", "invoice", invoiceID, nil)
	return nil
}

func (s *Service) CreatePayment(ctx context.Context, req billingdomain.CreatePaymentRequest) (billingdomain.Payment, error) {
	var payment billingdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.createPaymentInTx(ctx, tx, req, nil)
		if err != nil {
			return err
		}
		payment = applied
		return nil
	})
	if err != nil {
		return billingdomain.Payment{}, err
	}
	s.audit(ctx, req.OrgID, req.PerformedBy, "billing.payment_created", "payment", payment.ID, map[string]any{
		"invoice": req.InvoiceID.String(),
		"amount":  money.Format(req.Amount),
	})
	return payment, nil
}

// createPaymentInTx applies a payment inside the caller's transaction: the
// overpayment check, the invoice balance recompute, the payment row, and the
// journal derivation are one unit.
func (s *Service) createPaymentInTx(ctx context.Context, tx *gorm.DB, req billingdomain.CreatePaymentRequest, trustTxnID *snowflake.ID) (billingdomain.Payment, error) {
	if req.OrgID == 0 {
		return billingdomain.Payment{}, auditdomain.ErrInvalidOrganization
	}
	if err := money.RequirePositive(req.Amount); err != nil {
		return billingdomain.Payment{}, billingdomain.ErrInvalidPayment
	}

	invoice, err := s.lockInvoice(ctx, tx, req.OrgID, req.InvoiceID)
	if err != nil {
		return billingdomain.Payment{}, err
	}
	if !invoice.Status.Payable() {
		return billingdomain.Payment{}, billingdomain.ErrInvoiceNotPayable
	}
	if req.Amount.GreaterThan(invoice.BalanceDue) {
		return billingdomain.Payment{}, &billingdomain.OverpaymentError{
			InvoiceID:   invoice.ID,
			Requested:   req.Amount,
			Outstanding: invoice.BalanceDue,
		}
	}

	now := time.Now().UTC()
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	payment := billingdomain.Payment{
		ID:                 s.genID.Generate(),
		OrgID:              req.OrgID,
		InvoiceID:          invoice.ID,
		Amount:             req.Amount,
		Method:             req.Method,
		ReferenceNumber:    req.ReferenceNumber,
		TrustTransactionID: trustTxnID,
		ReceivedAt:         receivedAt.UTC(),
		CreatedBy:          req.PerformedBy,
		CreatedAt:          now,
	}

	// Balance due is always recomputed from its inputs.
	amountPaid := invoice.AmountPaid.Add(req.Amount)
	balanceDue := invoice.Total.Sub(amountPaid)
	status := billingdomain.InvoiceStatusPartiallyPaid
	if balanceDue.IsZero() {
		status = billingdomain.InvoiceStatusPaid
	}

	entry, err := s.journalSvc.CreateFromPayment(ctx, tx, journaldomain.BillingEvent{
		SourceID:    payment.ID,
		OrgID:       req.OrgID,
		Total:       req.Amount,
		Description: fmt.Sprintf("Payment on invoice %s", invoice.InvoiceNumber),
		Date:        payment.ReceivedAt,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		return billingdomain.Payment{}, err
	}
	payment.JournalEntryID = &entry.ID

	if err := tx.Create(&payment).Error; err != nil {
		return billingdomain.Payment{}, err
	}
	if err := tx.Model(&billingdomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"amount_paid": amountPaid,
			"balance_due": balanceDue,
			"status":      status,
			"updated_at":  now,
		}).Error; err != nil {
		return billingdomain.Payment{}, err
	}
	return payment, nil
}

// PayInvoiceFromTrust moves earned fees from the client trust ledger into
// operating and applies them to the invoice. The trust debit and the payment
// share one transaction; if either fails neither is recorded.
func (s *Service) PayInvoiceFromTrust(ctx context.Context, req billingdomain.PayFromTrustRequest) (billingdomain.Payment, error) {
	var payment billingdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, req.OrgID, req.InvoiceID)
		if err != nil {
			return err
		}
		if !invoice.Status.Payable() {
			return billingdomain.ErrInvoiceNotPayable
		}
		if req.Amount.GreaterThan(invoice.BalanceDue) {
			return &billingdomain.OverpaymentError{
				InvoiceID:   invoice.ID,
				Requested:   req.Amount,
				Outstanding: invoice.BalanceDue,
			}
		}

		txn, err := s.trustSvc.ApplyTransactionInTx(ctx, tx, trustdomain.ApplyTransactionRequest{
			OrgID:          req.OrgID,
			TrustAccountID: req.TrustAccountID,
			ClientLedgerID: req.ClientLedgerID,
			Type:           trustdomain.TransactionTypeTransferToOperating,
			Amount:         req.Amount,
			Description:    fmt.Sprintf("Fee transfer for invoice %s", invoice.InvoiceNumber),
			IdempotencyKey: req.IdempotencyKey,
			PerformedBy:    req.PerformedBy,
		})
		if err != nil {
			return err
		}

		applied, err := s.createPaymentInTx(ctx, tx, billingdomain.CreatePaymentRequest{
			OrgID:       req.OrgID,
			InvoiceID:   req.InvoiceID,
			Amount:      req.Amount,
			Method:      billingdomain.PaymentMethodTrust,
			ReceivedAt:  txn.TransactionDate,
			PerformedBy: req.PerformedBy,
		}, &txn.ID)
		if err != nil {
			return err
		}
		payment = applied
		return nil
	})
	if err != nil {
		return billingdomain.Payment{}, err
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "billing.invoice_paid_from_trust", "payment", payment.ID, map[string]any{
		"invoice": req.InvoiceID.String(),
		"amount":  money.Format(req.Amount),
	})
	return payment, nil
}

// BatchCreateInvoices creates each invoice independently; a bad item reports
// its failure without blocking the rest.
func (s *Service) BatchCreateInvoices(ctx context.Context, orgID snowflake.ID, reqs []billingdomain.CreateInvoiceRequest) (billingdomain.BatchInvoiceResult, error) {
	if orgID == 0 {
		return billingdomain.BatchInvoiceResult{}, auditdomain.ErrInvalidOrganization
	}
	var result billingdomain.BatchInvoiceResult
	for i, req := range reqs {
		req.OrgID = orgID
		invoice, err := s.CreateInvoice(ctx, req)
		if err != nil {
			result.Failed = append(result.Failed, billingdomain.BatchInvoiceFailure{
				Index:  i,
				Reason: err.Error(),
				Err:    err,
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, invoice)
	}
	return result, nil
}

func (s *Service) MarkOverdueInvoices(ctx context.Context, orgID snowflake.ID, asOf time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&billingdomain.Invoice{}).
		Where("org_id = ? AND status IN ? AND due_date < ?",
			orgID,
			[]billingdomain.InvoiceStatus{billingdomain.InvoiceStatusSent, billingdomain.InvoiceStatusViewed},
			asOf.UTC(),
		).
		Updates(map[string]any{
			"status":     billingdomain.InvoiceStatusOverdue,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (billingdomain.Invoice, error) {
	var invoice billingdomain.Invoice
	stmt := tx.WithContext(ctx).Where("id = ? AND org_id = ?", invoiceID, orgID)
	stmt = option.WithLock().Apply(stmt)
	if err := stmt.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billingdomain.Invoice{}, billingdomain.ErrInvoiceNotFound
		}
		return billingdomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) audit(ctx context.Context, orgID, performedBy snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	if err := s.auditSvc.Record(ctx, orgID, performedBy, action, targetType, &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
