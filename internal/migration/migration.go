// Package migration creates the engine's schema on startup so local and
// self-hosted deployments are usable out of the box.
package migration

import (
	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	compliancedomain "github.com/lexfirma/trustledger/internal/compliance/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	organizationdomain "github.com/lexfirma/trustledger/internal/organization/domain"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&trustdomain.TrustAccount{},
		&trustdomain.ClientLedger{},
		&trustdomain.TrustTransaction{},
		&trustdomain.CheckBatch{},
		&trustdomain.Check{},
		&trustdomain.CheckNumberSequence{},
		&trustdomain.Reconciliation{},
		&journaldomain.ChartAccount{},
		&journaldomain.JournalEntry{},
		&journaldomain.JournalLine{},
		&billingdomain.Invoice{},
		&billingdomain.InvoiceLineItem{},
		&billingdomain.Payment{},
		&compliancedomain.Alert{},
		&auditdomain.AuditLog{},
	}
}

// Run applies the schema.
func Run(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)
