package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/pkg/logger"
)

const defaultReconcileBatch = 200

type debtReconciler interface {
	ReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	ReconcileCustomer(ctx context.Context, customerID uuid.UUID) (*debt.Reconciliation, error)
}

// NewDebtReconcileJob realigns customer debt balances with their outstanding orders. A failing
// customer does not stop the batch; all failures are returned together.
func NewDebtReconcileJob(logg *logger.Logger, ledger debtReconciler, batch int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("debt ledger required")
	}
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &debtReconcileJob{logg: logg, ledger: ledger, batch: batch}, nil
}

type debtReconcileJob struct {
	logg   *logger.Logger
	ledger debtReconciler
	batch  int
}

func (j *debtReconcileJob) Name() string { return "debt-reconcile" }

func (j *debtReconcileJob) Run(ctx context.Context) error {
	ids, err := j.ledger.ReconcileCandidates(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list reconcile candidates: %w", err)
	}
	var errs error
	adjusted := 0
	for _, id := range ids {
		result, err := j.ledger.ReconcileCustomer(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile customer %s: %w", id, err))
			continue
		}
		if result != nil && result.Entry != nil {
			adjusted++
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"customer_id": id.String(),
				"recorded":    result.Recorded.String(),
				"expected":    result.Expected.String(),
				"drift":       result.Drift.String(),
			}), "customer debt drift corrected")
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked":  len(ids),
		"adjusted": adjusted,
		"failed":   len(multierr.Errors(errs)),
	}), "debt reconciliation complete")
	return errs
}
