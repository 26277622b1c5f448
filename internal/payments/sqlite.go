package payments

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/models"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps payments in a single SQLite file.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type sqliteRow struct {
	VideoID     string `db:"video_id"`
	URL         string `db:"url"`
	CreatorName string `db:"creator_name"`
	Amount      string `db:"amount"`
	Currency    string `db:"currency"`
	Notes       string `db:"notes"`
	Resolved    bool   `db:"resolved"`
	SubmittedBy string `db:"submitted_by"`
	SubmittedAt string `db:"submitted_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r sqliteRow) payment() (*models.Payment, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", r.Amount, err)
	}
	submittedAt, err := time.Parse(sqliteTimeLayout, r.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	updatedAt, err := time.Parse(sqliteTimeLayout, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &models.Payment{
		VideoID:     r.VideoID,
		URL:         r.URL,
		CreatorName: r.CreatorName,
		Amount:      amount,
		Currency:    r.Currency,
		Notes:       r.Notes,
		Resolved:    r.Resolved,
		SubmittedBy: r.SubmittedBy,
		SubmittedAt: submittedAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Lookup returns the payment for videoID.
func (s *SQLiteStore) Lookup(ctx context.Context, videoID string) (*models.Payment, error) {
	var row sqliteRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM payments WHERE video_id = ?`, videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	return row.payment()
}

// InsertIfAbsent inserts p unless the video id is already taken.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, p *models.Payment) (InsertResult, error) {
	const query = `INSERT INTO payments (video_id, url, creator_name, amount, currency, notes, resolved, submitted_by, submitted_at, updated_at)
		VALUES (:video_id, :url, :creator_name, :amount, :currency, :notes, :resolved, :submitted_by, :submitted_at, :updated_at)
		ON CONFLICT(video_id) DO NOTHING`
	now := s.now().UTC()
	submittedAt := p.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = now
	}
	row := sqliteRow{
		VideoID:     p.VideoID,
		URL:         p.URL,
		CreatorName: p.CreatorName,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
		Notes:       p.Notes,
		Resolved:    p.Resolved,
		SubmittedBy: p.SubmittedBy,
		SubmittedAt: formatSQLiteTime(submittedAt),
		UpdatedAt:   formatSQLiteTime(now),
	}
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		res, err := s.db.NamedExecContext(ctx, query, row)
		if err != nil {
			return InsertResult{}, fmt.Errorf("insert payment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return InsertResult{}, fmt.Errorf("insert payment rows affected: %w", err)
		}
		if n == 1 {
			p.SubmittedAt = submittedAt.UTC()
			p.UpdatedAt = now
			return InsertResult{Outcome: Inserted}, nil
		}
		existing, err := s.Lookup(ctx, p.VideoID)
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

// Update applies patch to the payment for videoID.
func (s *SQLiteStore) Update(ctx context.Context, videoID string, patch models.PaymentPatch) (*models.Payment, error) {
	if patch.Empty() {
		return s.Lookup(ctx, videoID)
	}
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.CreatorName != nil {
		set("creator_name", *patch.CreatorName)
	}
	if patch.Amount != nil {
		set("amount", patch.Amount.StringFixed(2))
	}
	if patch.Currency != nil {
		set("currency", *patch.Currency)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.URL != nil {
		set("url", *patch.URL)
	}
	set("updated_at", formatSQLiteTime(s.now()))
	args = append(args, videoID)

	res, err := s.db.ExecContext(ctx, `UPDATE payments SET `+strings.Join(sets, ", ")+` WHERE video_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Lookup(ctx, videoID)
}

// Delete removes the payment for videoID.
func (s *SQLiteStore) Delete(ctx context.Context, videoID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete payment rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns matching payments, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter models.ListFilter) ([]models.Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.Creator != "" {
		where = append(where, "creator_name = ? COLLATE NOCASE")
		args = append(args, filter.Creator)
	}
	if filter.Query != "" {
		like := "%" + escapeLike(filter.Query) + "%"
		where = append(where, `(video_id LIKE ? ESCAPE '\' OR creator_name LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if !filter.Since.IsZero() {
		where = append(where, "submitted_at >= ?")
		args = append(args, formatSQLiteTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "submitted_at < ?")
		args = append(args, formatSQLiteTime(filter.Until))
	}
	query := `SELECT * FROM payments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at DESC, video_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []sqliteRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	list := make([]models.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := row.payment()
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, nil
}
