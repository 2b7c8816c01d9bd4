// Package authorization resolves whether a user may perform an engine
// operation for an organization. Mutating engine calls require the caller to
// have verified access here first; the engine itself never authenticates.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTrustAccount     = "trust_account"
	ObjectClientLedger     = "client_ledger"
	ObjectTrustTransaction = "trust_transaction"
	ObjectCheckBatch       = "check_batch"
	ObjectJournal          = "journal"
	ObjectInvoice          = "invoice"
	ObjectPayment          = "payment"
	ObjectCompliance       = "compliance"
	ObjectAuditLog         = "audit_log"
)

const (
	ActionView       = "view"
	ActionCreate     = "create"
	ActionDisburse   = "disburse"
	ActionReconcile  = "reconcile"
	ActionVoid       = "void"
	ActionExport     = "export"
	ActionRunChecks  = "run_checks"
	ActionAdminister = "administer"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

// Service is the access-check collaborator consumed by every mutating engine
// call site.
type Service interface {
	// HasAccess reports whether the user holds one of the required roles in
	// the organization.
	HasAccess(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, requiredRoles []string) (bool, error)
	// Authorize enforces an object/action capability for the user's resolved
	// role; returns ErrForbidden on denial.
	Authorize(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, object string, action string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) HasAccess(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, requiredRoles []string) (bool, error) {
	if orgID == 0 {
		return false, ErrInvalidOrganization
	}
	if userID == 0 {
		return false, ErrInvalidActor
	}

	role, err := s.roleForUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return false, nil
		}
		return false, err
	}
	if len(requiredRoles) == 0 {
		return true, nil
	}
	for _, required := range requiredRoles {
		if strings.EqualFold(strings.TrimSpace(required), role) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, object string, action string) error {
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	if userID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.roleForUser(ctx, orgID, userID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("user:%s", userID)
	roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", userID.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Paralegal permissions (read-only)
		{"role:paralegal", ObjectTrustAccount, ActionView},
		{"role:paralegal", ObjectClientLedger, ActionView},
		{"role:paralegal", ObjectTrustTransaction, ActionView},
		{"role:paralegal", ObjectInvoice, ActionView},

		// Bookkeeper permissions
		{"role:bookkeeper", ObjectTrustAccount, ActionView},
		{"role:bookkeeper", ObjectClientLedger, ActionView},
		{"role:bookkeeper", ObjectClientLedger, ActionCreate},
		{"role:bookkeeper", ObjectTrustTransaction, ActionView},
		{"role:bookkeeper", ObjectTrustTransaction, ActionCreate},
		{"role:bookkeeper", ObjectJournal, ActionView},
		{"role:bookkeeper", ObjectJournal, ActionCreate},
		{"role:bookkeeper", ObjectInvoice, ActionView},
		{"role:bookkeeper", ObjectInvoice, ActionCreate},
		{"role:bookkeeper", ObjectPayment, ActionCreate},
		{"role:bookkeeper", ObjectInvoice, ActionExport},

		// Attorney permissions
		{"role:attorney", ObjectTrustAccount, ActionView},
		{"role:attorney", ObjectClientLedger, ActionView},
		{"role:attorney", ObjectClientLedger, ActionCreate},
		{"role:attorney", ObjectTrustTransaction, ActionView},
		{"role:attorney", ObjectTrustTransaction, ActionCreate},
		{"role:attorney", ObjectTrustTransaction, ActionDisburse},
		{"role:attorney", ObjectCheckBatch, ActionCreate},
		{"role:attorney", ObjectInvoice, ActionView},
		{"role:attorney", ObjectInvoice, ActionCreate},
		{"role:attorney", ObjectPayment, ActionCreate},
		{"role:attorney", ObjectInvoice, ActionExport},
		{"role:attorney", ObjectCompliance, ActionRunChecks},

		// Admin permissions
		{"role:admin", ObjectTrustAccount, ActionView},
		{"role:admin", ObjectTrustAccount, ActionCreate},
		{"role:admin", ObjectTrustAccount, ActionReconcile},
		{"role:admin", ObjectTrustAccount, ActionAdminister},
		{"role:admin", ObjectClientLedger, ActionView},
		{"role:admin", ObjectClientLedger, ActionCreate},
		{"role:admin", ObjectTrustTransaction, ActionView},
		{"role:admin", ObjectTrustTransaction, ActionCreate},
		{"role:admin", ObjectTrustTransaction, ActionDisburse},
		{"role:admin", ObjectCheckBatch, ActionCreate},
		{"role:admin", ObjectCheckBatch, ActionVoid},
		{"role:admin", ObjectJournal, ActionView},
		{"role:admin", ObjectJournal, ActionCreate},
		{"role:admin", ObjectInvoice, ActionView},
		{"role:admin", ObjectInvoice, ActionCreate},
		{"role:admin", ObjectInvoice, ActionVoid},
		{"role:admin", ObjectInvoice, ActionExport},
		{"role:admin", ObjectPayment, ActionCreate},
		{"role:admin", ObjectCompliance, ActionRunChecks},
		{"role:admin", ObjectAuditLog, ActionView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

// Module wires the casbin enforcer and authorization service.
var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
