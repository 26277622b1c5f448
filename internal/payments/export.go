package payments

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/creatorpay/tracker/internal/models"
)

var csvHeader = []string{
	"Date Submitted", "Creator", "Video ID", "URL", "Amount", "Currency", "Resolved", "Submitted By", "Notes",
}

// WriteCSV writes list as CSV with a header row.
func WriteCSV(w io.Writer, list []models.Payment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range list {
		row := []string{
			p.SubmittedAt.UTC().Format("2006-01-02"),
			p.CreatorName,
			p.VideoID,
			p.URL,
			p.Amount.StringFixed(2),
			p.Currency,
			strconv.FormatBool(p.Resolved),
			p.SubmittedBy,
			p.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", p.VideoID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
