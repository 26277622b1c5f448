package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ShortIDPrefix marks a video id derived from an unresolved short link.
const ShortIDPrefix = "short_"

// Payment is a committed payment for one video. VideoID is unique across the store.
type Payment struct {
	VideoID     string          `json:"video_id"`
	URL         string          `json:"url"`
	CreatorName string          `json:"creator_name"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Notes       string          `json:"notes,omitempty"`
	Resolved    bool            `json:"resolved"`
	SubmittedBy string          `json:"submitted_by,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PaymentPatch holds the editable fields of a payment; nil fields are left unchanged.
type PaymentPatch struct {
	CreatorName *string          `json:"creator_name,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
	URL         *string          `json:"url,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PaymentPatch) Empty() bool {
	return p.CreatorName == nil && p.Amount == nil && p.Currency == nil && p.Notes == nil && p.URL == nil
}

// Apply copies the set fields of the patch onto pay.
func (p PaymentPatch) Apply(pay *Payment) {
	if p.CreatorName != nil {
		pay.CreatorName = *p.CreatorName
	}
	if p.Amount != nil {
		pay.Amount = *p.Amount
	}
	if p.Currency != nil {
		pay.Currency = *p.Currency
	}
	if p.Notes != nil {
		pay.Notes = *p.Notes
	}
	if p.URL != nil {
		pay.URL = *p.URL
	}
}

// ListFilter narrows a payment listing. Zero values mean no constraint.
type ListFilter struct {
	Creator string    // case-insensitive exact match
	Query   string    // case-insensitive substring of video id, creator or notes
	Since   time.Time // inclusive
	Until   time.Time // exclusive
	Limit   int
}

// Matches reports whether p satisfies the filter (Limit is not considered).
func (f ListFilter) Matches(p *Payment) bool {
	if f.Creator != "" && !strings.EqualFold(p.CreatorName, f.Creator) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(p.VideoID), q) &&
			!strings.Contains(strings.ToLower(p.CreatorName), q) &&
			!strings.Contains(strings.ToLower(p.Notes), q) {
			return false
		}
	}
	if !f.Since.IsZero() && p.SubmittedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !p.SubmittedAt.Before(f.Until) {
		return false
	}
	return true
}

// DisplayVideoID renders a video id for humans: short-link fallbacks show the bare code.
func DisplayVideoID(id string) string {
	if code, ok := strings.CutPrefix(id, ShortIDPrefix); ok {
		return code + " (shortcode)"
	}
	return id
}
