package service

import (
	"context"
	"sort"
	"sync"

	auditdomain "github.com/lexfirma/trustledger/internal/audit/domain"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProcessBatch applies each item in its own transaction. Item failures are
// collected, not propagated: one overdrawn ledger must not block the rest of
// a payroll-style run. Items are fanned out across a bounded worker pool;
// results keep submission order.
func (s *Service) ProcessBatch(ctx context.Context, req trustdomain.ProcessBatchRequest) (trustdomain.BatchResult, error) {
	if req.OrgID == 0 {
		return trustdomain.BatchResult{}, auditdomain.ErrInvalidOrganization
	}
	if len(req.Items) == 0 {
		return trustdomain.BatchResult{}, nil
	}
	mode := req.Mode
	if mode == "" {
		mode = trustdomain.BatchModeMixed
	}

	type itemResult struct {
		index int
		txn   trustdomain.TrustTransaction
		err   error
	}

	workers := s.cfg.BatchWorkers
	if workers > len(req.Items) {
		workers = len(req.Items)
	}

	jobs := make(chan int)
	results := make(chan itemResult, len(req.Items))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				item := req.Items[idx]
				item.OrgID = req.OrgID
				item.TrustAccountID = req.TrustAccountID
				if item.PerformedBy == 0 {
					item.PerformedBy = req.PerformedBy
				}

				if !mode.Allows(item.Type) {
					results <- itemResult{index: idx, err: trustdomain.ErrInvalidTransaction}
					continue
				}

				var txn trustdomain.TrustTransaction
				err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
					applied, err := s.ApplyTransactionInTx(ctx, tx, item)
					if err != nil {
						return err
					}
					txn = applied
					return nil
				})
				results <- itemResult{index: idx, txn: txn, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range req.Items {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]itemResult, 0, len(req.Items))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	var out trustdomain.BatchResult
	for _, r := range collected {
		if r.err != nil {
			s.obsMetrics.IncBatchItem("failed")
			out.Failed = append(out.Failed, trustdomain.BatchFailure{
				Index:  r.index,
				Reason: r.err.Error(),
				Err:    r.err,
			})
			continue
		}
		s.obsMetrics.IncBatchItem("succeeded")
		out.Succeeded = append(out.Succeeded, r.txn)
	}

	s.log.Info("batch processed",
		zap.Int("items", len(req.Items)),
		zap.Int("succeeded", len(out.Succeeded)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}
