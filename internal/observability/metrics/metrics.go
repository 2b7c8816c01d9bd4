// Package metrics exposes prometheus instruments for the ledger engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	transactionsApplied  *prometheus.CounterVec
	transactionsRejected *prometheus.CounterVec
	batchItems           *prometheus.CounterVec
	journalEntriesPosted *prometheus.CounterVec
	complianceAlerts     *prometheus.CounterVec
	schedulerJobRuns     *prometheus.CounterVec
}

// New registers the engine's instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_transactions_applied_total",
			Help: "Trust transactions applied, by transaction type.",
		}, []string{"type"}),
		transactionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_transactions_rejected_total",
			Help: "Trust transactions rejected, by reason.",
		}, []string{"reason"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_batch_items_total",
			Help: "Batch items processed, by outcome.",
		}, []string{"outcome"}),
		journalEntriesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_journal_entries_posted_total",
			Help: "Journal entries posted, by source type.",
		}, []string{"source"}),
		complianceAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_compliance_alerts_total",
			Help: "Compliance alerts emitted, by severity.",
		}, []string{"severity"}),
		schedulerJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustledger_scheduler_job_runs_total",
			Help: "Scheduler job executions, by job name.",
		}, []string{"job"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.transactionsApplied,
			m.transactionsRejected,
			m.batchItems,
			m.journalEntriesPosted,
			m.complianceAlerts,
			m.schedulerJobRuns,
		)
	}
	return m
}

func (m *Metrics) IncTransactionApplied(txType string) {
	if m == nil {
		return
	}
	m.transactionsApplied.WithLabelValues(txType).Inc()
}

func (m *Metrics) IncTransactionRejected(reason string) {
	if m == nil {
		return
	}
	m.transactionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncBatchItem(outcome string) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncJournalPosted(source string) {
	if m == nil {
		return
	}
	m.journalEntriesPosted.WithLabelValues(source).Inc()
}

func (m *Metrics) IncComplianceAlert(severity string) {
	if m == nil {
		return
	}
	m.complianceAlerts.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.schedulerJobRuns.WithLabelValues(job).Inc()
}

func newRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	return reg, reg
}

// Module wires the prometheus registry and engine instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(newRegistry),
	fx.Provide(New),
)
