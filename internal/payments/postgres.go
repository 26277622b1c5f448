package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/models"
)

const paymentColumns = `video_id, url, creator_name, amount::text, currency, notes, resolved, submitted_by, submitted_at, updated_at`

// Repository handles payment persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var amount string
	err := row.Scan(&p.VideoID, &p.URL, &p.CreatorName, &amount, &p.Currency, &p.Notes,
		&p.Resolved, &p.SubmittedBy, &p.SubmittedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Currency = strings.TrimSpace(p.Currency)
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return &p, nil
}

// Lookup returns the payment for videoID.
func (r *Repository) Lookup(ctx context.Context, videoID string) (*models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE video_id = $1`
	p, err := scanPayment(r.pool.QueryRow(ctx, query, videoID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	return p, err
}

// InsertIfAbsent inserts p, relying on the UNIQUE(video_id) constraint for atomicity.
func (r *Repository) InsertIfAbsent(ctx context.Context, p *models.Payment) (InsertResult, error) {
	const query = `INSERT INTO payments (video_id, url, creator_name, amount, currency, notes, resolved, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, COALESCE($9, NOW()))
		ON CONFLICT (video_id) DO NOTHING
		RETURNING submitted_at, updated_at`
	var submittedAt *time.Time
	if !p.SubmittedAt.IsZero() {
		submittedAt = &p.SubmittedAt
	}
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		err := r.pool.QueryRow(ctx, query, p.VideoID, p.URL, p.CreatorName, p.Amount.StringFixed(2), p.Currency,
			p.Notes, p.Resolved, p.SubmittedBy, submittedAt).Scan(&p.SubmittedAt, &p.UpdatedAt)
		if err == nil {
			return InsertResult{Outcome: Inserted}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return InsertResult{}, fmt.Errorf("insert payment: %w", err)
		}
		existing, err := r.Lookup(ctx, p.VideoID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return InsertResult{}, err
		}
		return InsertResult{Outcome: Conflict, Existing: existing}, nil
	}
	return InsertResult{}, fmt.Errorf("insert payment %s: conflicting row vanished %d times", p.VideoID, maxInsertAttempts)
}

// Update applies patch to the payment for videoID and returns the updated row.
func (r *Repository) Update(ctx context.Context, videoID string, patch models.PaymentPatch) (*models.Payment, error) {
	if patch.Empty() {
		return r.Lookup(ctx, videoID)
	}
	args := []any{videoID}
	var sets []string
	set := func(column string, value any, cast string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}
	if patch.CreatorName != nil {
		set("creator_name", *patch.CreatorName, "")
	}
	if patch.Amount != nil {
		set("amount", patch.Amount.StringFixed(2), "::numeric")
	}
	if patch.Currency != nil {
		set("currency", *patch.Currency, "")
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes, "")
	}
	if patch.URL != nil {
		set("url", *patch.URL, "")
	}
	query := `UPDATE payments SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE video_id = $1 RETURNING ` + paymentColumns
	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return p, err
}

// Delete removes the payment for videoID.
func (r *Repository) Delete(ctx context.Context, videoID string) error {
	const query = `DELETE FROM payments WHERE video_id = $1`
	tag, err := r.pool.Exec(ctx, query, videoID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns matching payments, newest first.
func (r *Repository) List(ctx context.Context, filter models.ListFilter) ([]models.Payment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Creator != "" {
		where = append(where, "LOWER(creator_name) = LOWER("+arg(filter.Creator)+")")
	}
	if filter.Query != "" {
		p := arg("%" + escapeLike(filter.Query) + "%")
		where = append(where, "(video_id ILIKE "+p+" OR creator_name ILIKE "+p+" OR notes ILIKE "+p+")")
	}
	if !filter.Since.IsZero() {
		where = append(where, "submitted_at >= "+arg(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "submitted_at < "+arg(filter.Until))
	}
	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at DESC, video_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var list []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
