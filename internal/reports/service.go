package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
)

// Service loads payments and aggregates them.
type Service struct {
	store payments.Reader
	now   func() time.Time
}

// NewService creates a report service over the read side of a store.
func NewService(store payments.Reader) *Service {
	return &Service{store: store, now: time.Now}
}

// Stats summarizes every payment.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	list, err := s.store.List(ctx, models.ListFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("list payments: %w", err)
	}
	return Summarize(list, s.now()), nil
}

// Monthly breaks down the month starting at month.
func (s *Service) Monthly(ctx context.Context, month time.Time) (Month, error) {
	start, end := MonthRange(month)
	list, err := s.store.List(ctx, models.ListFilter{Since: start, Until: end})
	if err != nil {
		return Month{}, fmt.Errorf("list payments: %w", err)
	}
	return MonthlyTotals(list, start), nil
}

// Creator returns the creator's payments, newest first, with up to limit of them attached.
// Count is zero when the creator has none.
func (s *Service) Creator(ctx context.Context, name string, limit int) (CreatorSummary, error) {
	list, err := s.store.List(ctx, models.ListFilter{Creator: name})
	if err != nil {
		return CreatorSummary{}, fmt.Errorf("list payments: %w", err)
	}
	if len(list) == 0 {
		return CreatorSummary{Creator: name, Totals: []CurrencyTotal{}}, nil
	}
	out := summarize(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out.Payments = list
	return out, nil
}
