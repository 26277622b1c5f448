package payments

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/internal/models"
)

func TestWriteCSV(t *testing.T) {
	list := []models.Payment{
		{
			VideoID:     "short_ZMabc",
			URL:         "https://vm.tiktok.com/ZMabc/",
			CreatorName: "Bob, Jr.",
			Amount:      decimal.RequireFromString("1250.5"),
			Currency:    "EUR",
			Notes:       `said "thanks"`,
			Resolved:    false,
			SubmittedBy: "u2",
			SubmittedAt: time.Date(2026, 3, 3, 23, 30, 0, 0, time.UTC),
		},
		{
			VideoID:     "7123456789",
			URL:         "https://www.tiktok.com/@alice/video/7123456789",
			CreatorName: "Alice",
			Amount:      decimal.NewFromInt(50),
			Currency:    "USD",
			Resolved:    true,
			SubmittedBy: "u1",
			SubmittedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, list))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_csv", buf.Bytes())
}
