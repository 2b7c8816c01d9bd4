package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	"github.com/lexfirma/trustledger/internal/money"
	obsmetrics "github.com/lexfirma/trustledger/internal/observability/metrics"
	"github.com/lexfirma/trustledger/internal/providers/pdf"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"github.com/lexfirma/trustledger/pkg/db"
	"github.com/lexfirma/trustledger/pkg/db/option"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"github.com/lexfirma/trustledger/pkg/secret"
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
	Sealer      *secret.Sealer
	JournalSvc  journaldomain.Service
	AuditSvc    auditdomain.Service
	PDFProvider pdf.Provider        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
	Config      Config              `optional:"true"`
}

// Config tunes batch processing.
type Config struct {
	// BatchWorkers bounds the worker pool for ProcessBatch.
	BatchWorkers int
}

func (c Config) withDefaults() Config {
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = 4
	}
	return c
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	sealer      *secret.Sealer
	journalSvc  journaldomain.Service
	auditSvc    auditdomain.Service
	pdfProvider pdf.Provider
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) trustdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("trust.service"),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		sealer:      p.Sealer,
		journalSvc:  p.JournalSvc,
		auditSvc:    p.AuditSvc,
		pdfProvider: p.PDFProvider,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreateTrustAccount(ctx context.Context, req trustdomain.CreateTrustAccountRequest) (trustdomain.TrustAccount, error) {
	if req.OrgID == 0 {
		return trustdomain.TrustAccount{}, auditdomain.ErrInvalidOrganization
	}
	bankName := strings.TrimSpace(req.BankName)
	accountNumber := strings.TrimSpace(req.AccountNumber)
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if bankName == "" || accountNumber == "" || currency == "" {
		return trustdomain.TrustAccount{}, trustdomain.ErrInvalidTransaction
	}
	if req.InterestRate.IsNegative() {
		return trustdomain.TrustAccount{}, trustdomain.ErrInvalidTransaction
	}

	sealed, err := s.sealer.Seal(accountNumber)
	if err != nil {
		return trustdomain.TrustAccount{}, err
	}

	now := time.Now().UTC()
	account := trustdomain.TrustAccount{
		ID:              s.genID.Generate(),
		OrgID:           req.OrgID,
		BankName:        bankName,
		AccountNumber:   sealed,
		Jurisdiction:    strings.TrimSpace(req.Jurisdiction),
		Currency:        currency,
		Status:          trustdomain.AccountStatusActive,
		InterestRate:    req.InterestRate,
		RecordedBalance: decimal.Zero,
		CreatedBy:       req.PerformedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return trustdomain.TrustAccount{}, err
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "trust.account_created", "trust_account", account.ID, map[string]any{
		"bank_name":      bankName,
		"account_number": accountNumber,
		"jurisdiction":   account.Jurisdiction,
	})
	return account, nil
}

// CloseTrustAccount flips the lifecycle state to closed. Accounts still
// holding client funds cannot close; history is kept forever.
func (s *Service) CloseTrustAccount(ctx context.Context, orgID, accountID, performedBy snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.lockAccount(ctx, tx, orgID, accountID)
		if err != nil {
			return err
		}
		if !account.Status.CanTransitionTo(trustdomain.AccountStatusClosed) {
			return trustdomain.ErrInvalidTransition
		}

		var total decimal.Decimal
		row := tx.WithContext(ctx).
			Table("client_ledgers").
			Where("trust_account_id = ? AND status = ?", accountID, trustdomain.LedgerStatusActive).
			Select("COALESCE(SUM(balance), 0)").
			Row()
		var raw string
		if err := row.Scan(&raw); err != nil {
			return err
		}
		total, err = decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		if total.IsPositive() {
			return trustdomain.ErrAccountHasFunds
		}

		return tx.WithContext(ctx).Model(&trustdomain.TrustAccount{}).
			Where("id = ?", accountID).
			Updates(map[string]any{
				"status":     trustdomain.AccountStatusClosed,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.audit(ctx, orgID, performedBy, "trust.account_closed", "trust_account", accountID, nil)
	return nil
}

func (s *Service) GetTrustAccount(ctx context.Context, orgID, accountID snowflake.ID) (trustdomain.TrustAccount, error) {
	var account trustdomain.TrustAccount
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", accountID, orgID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return trustdomain.TrustAccount{}, trustdomain.ErrAccountNotFound
		}
		return trustdomain.TrustAccount{}, err
	}
	return account, nil
}

func (s *Service) AccountNumber(ctx context.Context, orgID, accountID snowflake.ID) (string, error) {
	account, err := s.GetTrustAccount(ctx, orgID, accountID)
	if err != nil {
		return "", err
	}
	return s.sealer.Open(account.AccountNumber)
}

func (s *Service) CreateClientLedger(ctx context.Context, req trustdomain.CreateClientLedgerRequest) (trustdomain.ClientLedger, error) {
	if req.OrgID == 0 {
		return trustdomain.ClientLedger{}, auditdomain.ErrInvalidOrganization
	}
	if req.ClientID == 0 {
		return trustdomain.ClientLedger{}, trustdomain.ErrInvalidTransaction
	}
	name := strings.TrimSpace(req.LedgerName)
	if name == "" {
		return trustdomain.ClientLedger{}, trustdomain.ErrInvalidTransaction
	}

	account, err := s.GetTrustAccount(ctx, req.OrgID, req.TrustAccountID)
	if err != nil {
		return trustdomain.ClientLedger{}, err
	}
	if account.Status != trustdomain.AccountStatusActive {
		return trustdomain.ClientLedger{}, trustdomain.ErrAccountClosed
	}

	// The unique index does not catch two NULL matter IDs, so the scope
	// check runs here as well.
	scope := s.db.WithContext(ctx).Model(&trustdomain.ClientLedger{}).
		Where("trust_account_id = ? AND client_id = ?", req.TrustAccountID, req.ClientID)
	if req.MatterID == nil {
		scope = scope.Where("matter_id IS NULL")
	} else {
		scope = scope.Where("matter_id = ?", *req.MatterID)
	}
	var existing int64
	if err := scope.Count(&existing).Error; err != nil {
		return trustdomain.ClientLedger{}, err
	}
	if existing > 0 {
		return trustdomain.ClientLedger{}, trustdomain.ErrDuplicateLedger
	}

	now := time.Now().UTC()
	ledger := trustdomain.ClientLedger{
		ID:             s.genID.Generate(),
		OrgID:          req.OrgID,
		TrustAccountID: req.TrustAccountID,
		ClientID:       req.ClientID,
		MatterID:       req.MatterID,
		LedgerName:     name,
		Balance:        decimal.Zero,
		Status:         trustdomain.LedgerStatusActive,
		CreatedBy:      req.PerformedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&ledger).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return trustdomain.ClientLedger{}, trustdomain.ErrDuplicateLedger
		}
		return trustdomain.ClientLedger{}, err
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "trust.ledger_created", "client_ledger", ledger.ID, map[string]any{
		"client_id":   req.ClientID.String(),
		"ledger_name": name,
	})
	return ledger, nil
}

// CloseClientLedger requires a zero balance; funds must be disbursed or
// refunded first. A zero balance alone never closes a ledger.
func (s *Service) CloseClientLedger(ctx context.Context, orgID, ledgerID, performedBy snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger, err := s.lockLedger(ctx, tx, orgID, ledgerID)
		if err != nil {
			return err
		}
		if !ledger.Status.CanTransitionTo(trustdomain.LedgerStatusClosed) {
			return trustdomain.ErrInvalidTransition
		}
		if !ledger.Balance.IsZero() {
			return trustdomain.ErrLedgerNotEmpty
		}
		return tx.WithContext(ctx).Model(&trustdomain.ClientLedger{}).
			Where("id = ?", ledgerID).
			Updates(map[string]any{
				"status":     trustdomain.LedgerStatusClosed,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.audit(ctx, orgID, performedBy, "trust.ledger_closed", "client_ledger", ledgerID, nil)
	return nil
}

func (s *Service) GetClientLedger(ctx context.Context, orgID, ledgerID snowflake.ID) (trustdomain.ClientLedger, error) {
	var ledger trustdomain.ClientLedger
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", ledgerID, orgID).
		First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return trustdomain.ClientLedger{}, trustdomain.ErrLedgerNotFound
		}
		return trustdomain.ClientLedger{}, err
	}
	return ledger, nil
}

func (s *Service) ApplyTransaction(ctx context.Context, req trustdomain.ApplyTransactionRequest) (trustdomain.TrustTransaction, error) {
	var txn trustdomain.TrustTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.ApplyTransactionInTx(ctx, tx, req)
		if err != nil {
			return err
		}
		txn = applied
		return nil
	})
	if err != nil {
		return trustdomain.TrustTransaction{}, err
	}
	s.audit(ctx, req.OrgID, req.PerformedBy, "trust.transaction_applied", "trust_transaction", txn.ID, map[string]any{
		"type":   string(req.Type),
		"amount": money.Format(req.Amount),
		"ledger": req.ClientLedgerID.String(),
	})
	return txn, nil
}

// ApplyTransactionInTx is the serializable unit at the heart of the engine:
// read balance, validate the non-negative invariant, write the new balance
// and the immutable record, derive the journal entry. All inside the
// caller's transaction; once this returns nil the transaction is permanent.
func (s *Service) ApplyTransactionInTx(ctx context.Context, tx *gorm.DB, req trustdomain.ApplyTransactionRequest) (trustdomain.TrustTransaction, error) {
	if req.OrgID == 0 {
		return trustdomain.TrustTransaction{}, auditdomain.ErrInvalidOrganization
	}
	if !req.Type.Valid() {
		return trustdomain.TrustTransaction{}, trustdomain.ErrInvalidTransaction
	}
	if err := money.RequirePositive(req.Amount); err != nil {
		s.obsMetrics.IncTransactionRejected("invalid_amount")
		return trustdomain.TrustTransaction{}, trustdomain.ErrInvalidTransaction
	}

	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		var existing trustdomain.TrustTransaction
		err := tx.WithContext(ctx).
			Where("org_id = ? AND idempotency_key = ?", req.OrgID, key).
			First(&existing).Error
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return trustdomain.TrustTransaction{}, err
		}
	}

	ledger, err := s.lockLedger(ctx, tx, req.OrgID, req.ClientLedgerID)
	if err != nil {
		return trustdomain.TrustTransaction{}, err
	}
	if ledger.TrustAccountID != req.TrustAccountID {
		return trustdomain.TrustTransaction{}, trustdomain.ErrLedgerNotFound
	}
	if ledger.Status != trustdomain.LedgerStatusActive {
		return trustdomain.TrustTransaction{}, trustdomain.ErrLedgerClosed
	}

	account, err := s.lockAccount(ctx, tx, req.OrgID, req.TrustAccountID)
	if err != nil {
		return trustdomain.TrustTransaction{}, err
	}
	if account.Status != trustdomain.AccountStatusActive {
		return trustdomain.TrustTransaction{}, trustdomain.ErrAccountClosed
	}

	now := time.Now().UTC()
	if req.Type.Debits() {
		// Guarded decrement: the balance check and the write are one
		// statement, so concurrent disbursements cannot both pass the check.
		res := tx.WithContext(ctx).Exec(
			`UPDATE client_ledgers
			 SET balance = balance - ?, updated_at = ?
			 WHERE id = ? AND balance >= ?`,
			req.Amount, now, ledger.ID, req.Amount,
		)
		if res.Error != nil {
			return trustdomain.TrustTransaction{}, res.Error
		}
		if res.RowsAffected == 0 {
			s.obsMetrics.IncTransactionRejected("insufficient_funds")
			return trustdomain.TrustTransaction{}, &trustdomain.InsufficientFundsError{
				LedgerID:  ledger.ID,
				Requested: req.Amount,
				Available: ledger.Balance,
			}
		}
	} else {
		res := tx.WithContext(ctx).Exec(
			`UPDATE client_ledgers
			 SET balance = balance + ?, updated_at = ?
			 WHERE id = ?`,
			req.Amount, now, ledger.ID,
		)
		if res.Error != nil {
			return trustdomain.TrustTransaction{}, res.Error
		}
	}

	txnDate := req.TransactionDate
	if txnDate.IsZero() {
		txnDate = now
	}
	txn := trustdomain.TrustTransaction{
		ID:              s.genID.Generate(),
		OrgID:           req.OrgID,
		TrustAccountID:  req.TrustAccountID,
		ClientLedgerID:  req.ClientLedgerID,
		Type:            req.Type,
		Amount:          req.Amount,
		Description:     strings.TrimSpace(req.Description),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		TransactionDate: txnDate.UTC(),
		CreatedBy:       req.PerformedBy,
		CreatedAt:       now,
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		txn.IdempotencyKey = &key
	}

	// Derive the journal entry in the same unit so it can never lag behind
	// the ledger.
	entry, err := s.journalSvc.CreateFromTrustTransaction(ctx, tx, journaldomain.TrustEvent{
		TransactionID: txn.ID,
		OrgID:         req.OrgID,
		Type:          string(req.Type),
		Amount:        req.Amount,
		Description:   txn.Description,
		Date:          txn.TransactionDate,
		PerformedBy:   req.PerformedBy,
	})
	if err != nil {
		return trustdomain.TrustTransaction{}, err
	}
	txn.JournalEntryID = &entry.ID

	if err := tx.WithContext(ctx).Create(&txn).Error; err != nil {
		return trustdomain.TrustTransaction{}, err
	}

	s.obsMetrics.IncTransactionApplied(string(req.Type))
	return txn, nil
}

// PostInterest credits the account's interest rate across its active ledgers
// proportional to balance. Rate is annual percent; one posting covers one
// month.
func (s *Service) PostInterest(ctx context.Context, orgID, accountID, performedBy snowflake.ID) ([]trustdomain.TrustTransaction, error) {
	account, err := s.GetTrustAccount(ctx, orgID, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != trustdomain.AccountStatusActive {
		return nil, trustdomain.ErrAccountClosed
	}
	if !account.InterestRate.IsPositive() {
		return nil, nil
	}

	var ledgers []trustdomain.ClientLedger
	if err := s.db.WithContext(ctx).
		Where("trust_account_id = ? AND status = ?", accountID, trustdomain.LedgerStatusActive).
		Find(&ledgers).Error; err != nil {
		return nil, err
	}

	monthlyRate := account.InterestRate.Div(decimal.NewFromInt(1200))
	var posted []trustdomain.TrustTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ledger := range ledgers {
			interest := ledger.Balance.Mul(monthlyRate).Round(2)
			if !interest.IsPositive() {
				continue
			}
			txn, err := s.ApplyTransactionInTx(ctx, tx, trustdomain.ApplyTransactionRequest{
				OrgID:          orgID,
				TrustAccountID: accountID,
				ClientLedgerID: ledger.ID,
				Type:           trustdomain.TransactionTypeInterest,
				Amount:         interest,
				Description:    "Monthly interest",
				PerformedBy:    performedBy,
			})
			if err != nil {
				return err
			}
			posted = append(posted, txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// Reconcile records a reconciliation pass: flags covered transactions,
// captures the bank-reported balance, and compares it to the sum of client
// ledgers.
func (s *Service) Reconcile(ctx context.Context, req trustdomain.ReconcileRequest) (trustdomain.Reconciliation, error) {
	var rec trustdomain.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.lockAccount(ctx, tx, req.OrgID, req.TrustAccountID)
		if err != nil {
			return err
		}

		if len(req.TransactionIDs) > 0 {
			if err := tx.WithContext(ctx).Model(&trustdomain.TrustTransaction{}).
				Where("trust_account_id = ? AND id IN ?", account.ID, req.TransactionIDs).
				Update("is_reconciled", true).Error; err != nil {
				return err
			}
		}

		var raw string
		row := tx.WithContext(ctx).
			Table("client_ledgers").
			Where("trust_account_id = ? AND status = ?", account.ID, trustdomain.LedgerStatusActive).
			Select("COALESCE(SUM(balance), 0)").
			Row()
		if err := row.Scan(&raw); err != nil {
			return err
		}
		ledgerBalance, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}

		statementDate := req.StatementDate
		if statementDate.IsZero() {
			statementDate = time.Now().UTC()
		}
		difference := req.BankBalance.Sub(ledgerBalance)
		rec = trustdomain.Reconciliation{
			ID:             s.genID.Generate(),
			OrgID:          req.OrgID,
			TrustAccountID: account.ID,
			BankBalance:    req.BankBalance,
			LedgerBalance:  ledgerBalance,
			Difference:     difference,
			Balanced:       difference.IsZero(),
			ReconciledAt:   statementDate.UTC(),
			CreatedBy:      req.PerformedBy,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&rec).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).Model(&trustdomain.TrustAccount{}).
			Where("id = ?", account.ID).
			Updates(map[string]any{
				"recorded_balance":   req.BankBalance,
				"last_reconciled_at": statementDate.UTC(),
				"updated_at":         time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return trustdomain.Reconciliation{}, err
	}

	s.audit(ctx, req.OrgID, req.PerformedBy, "trust.reconciled", "trust_account", req.TrustAccountID, map[string]any{
		"bank_balance":   money.Format(rec.BankBalance),
		"ledger_balance": money.Format(rec.LedgerBalance),
		"balanced":       rec.Balanced,
	})
	return rec, nil
}

func (s *Service) ListTransactions(ctx context.Context, req trustdomain.ListTransactionsRequest) (trustdomain.ListTransactionsResponse, error) {
	if req.OrgID == 0 {
		return trustdomain.ListTransactionsResponse{}, auditdomain.ErrInvalidOrganization
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	stmt := s.db.WithContext(ctx).Model(&trustdomain.TrustTransaction{}).
		Where("org_id = ?", req.OrgID)
	if req.TrustAccountID != 0 {
		stmt = stmt.Where("trust_account_id = ?", req.TrustAccountID)
	}
	if req.ClientLedgerID != 0 {
		stmt = stmt.Where("client_ledger_id = ?", req.ClientLedgerID)
	}
	if req.From != nil {
		stmt = stmt.Where("transaction_date >= ?", req.From.UTC())
	}
	if req.To != nil {
		stmt = stmt.Where("transaction_date <= ?", req.To.UTC())
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return trustdomain.ListTransactionsResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return trustdomain.ListTransactionsResponse{}, auditdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("id < ?", id)
	}

	var txns []*trustdomain.TrustTransaction
	if err := stmt.Order("id desc").Limit(pageSize + 1).Find(&txns).Error; err != nil {
		return trustdomain.ListTransactionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(txns, int32(pageSize), func(item *trustdomain.TrustTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(txns) > pageSize {
		txns = txns[:pageSize]
	}

	out := make([]trustdomain.TrustTransaction, 0, len(txns))
	for _, t := range txns {
		out = append(out, *t)
	}
	return trustdomain.ListTransactionsResponse{PageInfo: *pageInfo, Transactions: out}, nil
}

func (s *Service) lockLedger(ctx context.Context, tx *gorm.DB, orgID, ledgerID snowflake.ID) (trustdomain.ClientLedger, error) {
	var ledger trustdomain.ClientLedger
	stmt := tx.WithContext(ctx).Where("id = ? AND org_id = ?", ledgerID, orgID)
	stmt = option.WithLock().Apply(stmt)
	if err := stmt.First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return trustdomain.ClientLedger{}, trustdomain.ErrLedgerNotFound
		}
		return trustdomain.ClientLedger{}, err
	}
	return ledger, nil
}

func (s *Service) lockAccount(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID) (trustdomain.TrustAccount, error) {
	var account trustdomain.TrustAccount
	stmt := tx.WithContext(ctx).Where("id = ? AND org_id = ?", accountID, orgID)
	stmt = option.WithLock().Apply(stmt)
	if err := stmt.First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return trustdomain.TrustAccount{}, trustdomain.ErrAccountNotFound
		}
		return trustdomain.TrustAccount{}, err
	}
	return account, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, performedBy snowflake.ID, action string, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	if err := s.auditSvc.Record(ctx, orgID, performedBy, action, targetType, &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
