package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	obsmetrics "github.com/lexfirma/trustledger/internal/observability/metrics"
	"github.com/lexfirma/trustledger/pkg/db"
	"github.com/lexfirma/trustledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) journaldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("journal.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, req journaldomain.CreateEntryRequest) (journaldomain.JournalEntry, error) {
	var entry journaldomain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.CreateEntryInTx(ctx, tx, req)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return journaldomain.JournalEntry{}, err
	}
	s.audit(ctx, req.OrgID, req.PerformedBy, "journal.entry_created", entry.ID, map[string]any{
		"source_type": string(entry.SourceType),
		"line_count":  len(req.Lines),
	})
	return entry, nil
}

// CreateEntryInTx validates and persists an entry with all its lines in the
// caller's transaction. Partial posting is impossible: any validation failure
// aborts before the first write.
func (s *Service) CreateEntryInTx(ctx context.Context, tx *gorm.DB, req journaldomain.CreateEntryRequest) (journaldomain.JournalEntry, error) {
	if req.OrgID == 0 {
		return journaldomain.JournalEntry{}, auditdomain.ErrInvalidOrganization
	}
	if !req.Type.Valid() {
		return journaldomain.JournalEntry{}, journaldomain.ErrInvalidType
	}
	if req.PostedDate.IsZero() {
		req.PostedDate = time.Now().UTC()
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = journaldomain.SourceTypeManual
	}

	// Auto-generated entries are idempotent on (org, source_type, source_id):
	// a second derivation for the same source returns the stored entry.
	if sourceType != journaldomain.SourceTypeManual && req.SourceID != nil {
		var existing journaldomain.JournalEntry
		err := tx.WithContext(ctx).
			Where("org_id = ? AND source_type = ? AND source_id = ?", req.OrgID, sourceType, *req.SourceID).
			First(&existing).Error
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return journaldomain.JournalEntry{}, err
		}
	}

	lines, err := s.resolveLines(ctx, tx, req.OrgID, req.Lines)
	if err != nil {
		return journaldomain.JournalEntry{}, err
	}
	if err := journaldomain.ValidateLines(lines); err != nil {
		return journaldomain.JournalEntry{}, err
	}
	if err := journaldomain.ValidateBalanced(lines); err != nil {
		return journaldomain.JournalEntry{}, err
	}

	now := time.Now().UTC()
	entry := journaldomain.JournalEntry{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
		PostedDate:  req.PostedDate.UTC(),
		SourceType:  sourceType,
		SourceID:    req.SourceID,
		CreatedBy:   req.PerformedBy,
		CreatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		if db.IsDuplicateKeyErr(err) && sourceType != journaldomain.SourceTypeManual && req.SourceID != nil {
			// Lost a race with a concurrent derivation of the same source.
			var existing journaldomain.JournalEntry
			if ferr := tx.WithContext(ctx).
				Where("org_id = ? AND source_type = ? AND source_id = ?", req.OrgID, sourceType, *req.SourceID).
				First(&existing).Error; ferr == nil {
				return existing, nil
			}
		}
		return journaldomain.JournalEntry{}, err
	}

	for i := range lines {
		lines[i].ID = s.genID.Generate()
		lines[i].JournalEntryID = entry.ID
		lines[i].CreatedAt = now
	}
	if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
		return journaldomain.JournalEntry{}, err
	}

	s.obsMetrics.IncJournalPosted(string(sourceType))
	return entry, nil
}

func (s *Service) resolveLines(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, inputs []journaldomain.LineInput) ([]journaldomain.JournalLine, error) {
	codes := make([]journaldomain.AccountCode, 0, len(inputs))
	for _, in := range inputs {
		if in.AccountID == 0 {
			if in.AccountCode == "" {
				return nil, journaldomain.ErrInvalidAccount
			}
			codes = append(codes, in.AccountCode)
		}
	}

	accounts := map[journaldomain.AccountCode]journaldomain.ChartAccount{}
	if len(codes) > 0 {
		resolved, err := s.ensureAccounts(ctx, tx, orgID, codes)
		if err != nil {
			return nil, err
		}
		accounts = resolved
	}

	lines := make([]journaldomain.JournalLine, 0, len(inputs))
	for _, in := range inputs {
		accountID := in.AccountID
		if accountID == 0 {
			account, ok := accounts[in.AccountCode]
			if !ok {
				return nil, journaldomain.ErrInvalidAccount
			}
			accountID = account.ID
		} else {
			var count int64
			if err := tx.WithContext(ctx).Model(&journaldomain.ChartAccount{}).
				Where("id = ? AND org_id = ?", accountID, orgID).
				Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, journaldomain.ErrInvalidAccount
			}
		}
		lines = append(lines, journaldomain.JournalLine{
			AccountID: accountID,
			Debit:     in.Debit,
			Credit:    in.Credit,
			Memo:      strings.TrimSpace(in.Memo),
		})
	}
	return lines, nil
}

// ensureAccounts resolves well-known chart accounts for an org, creating any
// that do not exist yet.
func (s *Service) ensureAccounts(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, codes []journaldomain.AccountCode) (map[journaldomain.AccountCode]journaldomain.ChartAccount, error) {
	var existing []journaldomain.ChartAccount
	if err := tx.WithContext(ctx).
		Where("org_id = ? AND code IN ?", orgID, codes).
		Find(&existing).Error; err != nil {
		return nil, err
	}

	result := make(map[journaldomain.AccountCode]journaldomain.ChartAccount, len(codes))
	for _, account := range existing {
		result[account.Code] = account
	}

	for _, code := range codes {
		if _, ok := result[code]; ok {
			continue
		}
		account := journaldomain.ChartAccount{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			Code:      code,
			Name:      code.DefaultName(),
			Type:      code.Type(),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return nil, err
			}
			if ferr := tx.WithContext(ctx).
				Where("org_id = ? AND code = ?", orgID, code).
				First(&account).Error; ferr != nil {
				return nil, ferr
			}
		}
		result[code] = account
	}
	return result, nil
}

func (s *Service) ListEntries(ctx context.Context, req journaldomain.ListEntriesRequest) (journaldomain.ListEntriesResponse, error) {
	if req.OrgID == 0 {
		return journaldomain.ListEntriesResponse{}, auditdomain.ErrInvalidOrganization
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	stmt := s.db.WithContext(ctx).Model(&journaldomain.JournalEntry{}).
		Where("org_id = ?", req.OrgID)
	if req.From != nil {
		stmt = stmt.Where("posted_date >= ?", req.From.UTC())
	}
	if req.To != nil {
		stmt = stmt.Where("posted_date <= ?", req.To.UTC())
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return journaldomain.ListEntriesResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return journaldomain.ListEntriesResponse{}, auditdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("id < ?", id)
	}

	var entries []*journaldomain.JournalEntry
	if err := stmt.Order("id desc").Limit(pageSize + 1).Find(&entries).Error; err != nil {
		return journaldomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, int32(pageSize), func(item *journaldomain.JournalEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(entries) > pageSize {
		entries = entries[:pageSize]
	}

	out := make([]journaldomain.JournalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return journaldomain.ListEntriesResponse{PageInfo: *pageInfo, Entries: out}, nil
}

func (s *Service) GetEntryLines(ctx context.Context, orgID, entryID snowflake.ID) ([]journaldomain.JournalLine, error) {
	var entry journaldomain.JournalEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", entryID, orgID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, journaldomain.ErrEntryNotFound
		}
		return nil, err
	}

	var lines []journaldomain.JournalLine
	if err := s.db.WithContext(ctx).
		Where("journal_entry_id = ?", entryID).
		Order("id asc").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, performedBy snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	if err := s.auditSvc.Record(ctx, orgID, performedBy, action, "journal_entry", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
