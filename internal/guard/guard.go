// Package guard checks whether a video has already been paid before a dialog starts.
package guard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
)

// Guard is an advisory duplicate check. It never writes; the confirmation
// gate's insert-if-absent remains the authority on duplicates.
type Guard struct {
	store  payments.Reader
	logger *zap.Logger
}

// New creates a Guard over the read side of a payment store.
func New(store payments.Reader, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, logger: logger}
}

// Check returns the committed payment for videoID, or nil when there is none.
func (g *Guard) Check(ctx context.Context, videoID string) (*models.Payment, error) {
	p, err := g.store.Lookup(ctx, videoID)
	if errors.Is(err, payments.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	g.logger.Info("duplicate submission detected", zap.String("video_id", videoID), zap.String("creator", p.CreatorName))
	return p, nil
}
