package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/evdms/dealer-backend/pkg/logger"
)

type quoteExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// NewQuoteExpiryJob lapses open quotes whose validity window has closed.
func NewQuoteExpiryJob(logg *logger.Logger, quotes quoteExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("quote service required")
	}
	return &quoteExpiryJob{logg: logg, quotes: quotes, now: time.Now}, nil
}

type quoteExpiryJob struct {
	logg   *logger.Logger
	quotes quoteExpirer
	now    func() time.Time
}

func (j *quoteExpiryJob) Name() string { return "quote-expiry" }

func (j *quoteExpiryJob) Run(ctx context.Context) error {
	expired, err := j.quotes.ExpireStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("expire quotes: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "quote expiry complete")
	return nil
}
