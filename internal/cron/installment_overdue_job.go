package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/evdms/dealer-backend/pkg/logger"
)

type overdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// NewInstallmentOverdueJob flags unpaid installments past their due date.
func NewInstallmentOverdueJob(logg *logger.Logger, installments overdueMarker) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if installments == nil {
		return nil, fmt.Errorf("installment service required")
	}
	return &installmentOverdueJob{logg: logg, installments: installments, now: time.Now}, nil
}

type installmentOverdueJob struct {
	logg         *logger.Logger
	installments overdueMarker
	now          func() time.Time
}

func (j *installmentOverdueJob) Name() string { return "installment-overdue" }

func (j *installmentOverdueJob) Run(ctx context.Context) error {
	marked, err := j.installments.MarkOverdue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("mark overdue installments: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "marked", marked), "installment overdue sweep complete")
	return nil
}
