// Package reports aggregates committed payments into totals for chat and the API.
package reports

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/models"
)

// ErrInvalidMonth is returned for months not in YYYY-MM form.
var ErrInvalidMonth = errors.New("month must be YYYY-MM")

const topWindow = 7 * 24 * time.Hour

// CurrencyTotal sums the payments of one currency.
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Average returns Total/Count rounded to cents.
func (c CurrencyTotal) Average() decimal.Decimal {
	if c.Count == 0 {
		return decimal.Zero
	}
	return c.Total.Div(decimal.NewFromInt(int64(c.Count))).Round(2)
}

// CreatorSummary is the payment history of one creator.
type CreatorSummary struct {
	Creator  string           `json:"creator"`
	Count    int              `json:"count"`
	Totals   []CurrencyTotal  `json:"totals"`
	Latest   time.Time        `json:"latest"`
	Payments []models.Payment `json:"payments,omitempty"`
}

// Stats is the overall summary.
type Stats struct {
	Count          int             `json:"count"`
	UniqueCreators int             `json:"unique_creators"`
	Totals         []CurrencyTotal `json:"totals"`
	Highest        *models.Payment `json:"highest,omitempty"`
	TopCreatorWeek *CreatorSummary `json:"top_creator_week,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Month is the per-creator breakdown of one calendar month (UTC).
type Month struct {
	Month    string           `json:"month"`
	Count    int              `json:"count"`
	Totals   []CurrencyTotal  `json:"totals"`
	Creators []CreatorSummary `json:"creators"`
}

// Totals groups amounts by currency, sorted by currency code.
func Totals(list []models.Payment) []CurrencyTotal {
	byCode := map[string]*CurrencyTotal{}
	for _, p := range list {
		t, ok := byCode[p.Currency]
		if !ok {
			t = &CurrencyTotal{Currency: p.Currency, Total: decimal.Zero}
			byCode[p.Currency] = t
		}
		t.Total = t.Total.Add(p.Amount)
		t.Count++
	}
	out := make([]CurrencyTotal, 0, len(byCode))
	for _, t := range byCode {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// ByCreator groups payments by case-folded creator name. Each summary shows
// the spelling of the creator's newest payment. Ordered by count, then name.
func ByCreator(list []models.Payment) []CreatorSummary {
	groups := map[string][]models.Payment{}
	var order []string
	for _, p := range list {
		k := strings.ToLower(p.CreatorName)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	out := make([]CreatorSummary, 0, len(groups))
	for _, k := range order {
		out = append(out, summarize(groups[k]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.ToLower(out[i].Creator) < strings.ToLower(out[j].Creator)
	})
	return out
}

func summarize(list []models.Payment) CreatorSummary {
	s := CreatorSummary{Count: len(list), Totals: Totals(list)}
	for _, p := range list {
		if s.Creator == "" || p.SubmittedAt.After(s.Latest) {
			s.Creator = p.CreatorName
			s.Latest = p.SubmittedAt
		}
	}
	return s
}

// Summarize computes Stats at now. The top creator of the week has the most
// payments in the last seven days; ties go to the larger summed amount.
func Summarize(list []models.Payment, now time.Time) Stats {
	st := Stats{Count: len(list), Totals: Totals(list), GeneratedAt: now.UTC()}
	st.UniqueCreators = len(ByCreator(list))
	for i := range list {
		if st.Highest == nil || list[i].Amount.GreaterThan(st.Highest.Amount) {
			p := list[i]
			st.Highest = &p
		}
	}

	var week []models.Payment
	for _, p := range list {
		if !p.SubmittedAt.Before(now.Add(-topWindow)) {
			week = append(week, p)
		}
	}
	creators := ByCreator(week)
	if len(creators) > 0 {
		sort.SliceStable(creators, func(i, j int) bool {
			if creators[i].Count != creators[j].Count {
				return creators[i].Count > creators[j].Count
			}
			return sum(creators[i].Totals).GreaterThan(sum(creators[j].Totals))
		})
		top := creators[0]
		st.TopCreatorWeek = &top
	}
	return st
}

func sum(totals []CurrencyTotal) decimal.Decimal {
	out := decimal.Zero
	for _, t := range totals {
		out = out.Add(t.Total)
	}
	return out
}

// MonthRange returns [start, end) of the UTC month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ParseMonth parses YYYY-MM. An empty string means the month of now.
func ParseMonth(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		start, _ := MonthRange(now)
		return start, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return t, nil
}

// MonthlyTotals breaks down the payments of the month starting at month.
func MonthlyTotals(list []models.Payment, month time.Time) Month {
	start, end := MonthRange(month)
	var in []models.Payment
	for _, p := range list {
		if !p.SubmittedAt.Before(start) && p.SubmittedAt.Before(end) {
			in = append(in, p)
		}
	}
	creators := ByCreator(in)
	return Month{
		Month:    start.Format("2006-01"),
		Count:    len(in),
		Totals:   Totals(in),
		Creators: creators,
	}
}
