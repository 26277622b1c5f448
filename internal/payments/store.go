// Package payments persists committed payment records keyed uniquely by video id.
package payments

import (
	"context"
	"errors"

	"github.com/creatorpay/tracker/internal/models"
)

// ErrNotFound is returned when no payment exists for a video id.
var ErrNotFound = errors.New("payment not found")

// maxInsertAttempts bounds retries when a conflicting row vanishes before it can be read back.
const maxInsertAttempts = 3

// Outcome is the result of an insert-if-absent.
type Outcome int

const (
	// Inserted means the record was stored.
	Inserted Outcome = iota
	// Conflict means a record for the video already existed; see InsertResult.Existing.
	Conflict
)

func (o Outcome) String() string {
	if o == Conflict {
		return "conflict"
	}
	return "inserted"
}

// InsertResult carries the outcome of InsertIfAbsent.
type InsertResult struct {
	Outcome  Outcome
	Existing *models.Payment
}

// Reader looks payments up.
type Reader interface {
	Lookup(ctx context.Context, videoID string) (*models.Payment, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.Payment, error)
}

// Inserter atomically stores a payment unless one exists for the same video.
type Inserter interface {
	InsertIfAbsent(ctx context.Context, p *models.Payment) (InsertResult, error)
}

// Editor changes or removes committed payments.
type Editor interface {
	Update(ctx context.Context, videoID string, patch models.PaymentPatch) (*models.Payment, error)
	Delete(ctx context.Context, videoID string) error
}

// Store is the full payment store contract implemented by every backend.
type Store interface {
	Reader
	Inserter
	Editor
}
