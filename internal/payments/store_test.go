package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPayment(videoID, creator, amount string, at time.Time) *models.Payment {
	return &models.Payment{
		VideoID:     videoID,
		URL:         "https://www.tiktok.com/@" + creator + "/video/" + videoID,
		CreatorName: creator,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Resolved:    true,
		SubmittedBy: "user-1",
		SubmittedAt: at,
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert then lookup", func(t *testing.T) {
		s := newStore(t)
		p := newPayment("7001", "alice", "50", baseTime)
		p.Notes = "first post"
		res, err := s.InsertIfAbsent(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, Inserted, res.Outcome)
		assert.Nil(t, res.Existing)

		got, err := s.Lookup(ctx, "7001")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.CreatorName)
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, "USD", got.Currency)
		assert.Equal(t, "first post", got.Notes)
		assert.True(t, got.Resolved)
		assert.True(t, got.SubmittedAt.Equal(baseTime))
	})

	t.Run("lookup missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Lookup(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("second insert conflicts and keeps the first", func(t *testing.T) {
		s := newStore(t)
		_, err := s.InsertIfAbsent(ctx, newPayment("7002", "alice", "50", baseTime))
		require.NoError(t, err)

		res, err := s.InsertIfAbsent(ctx, newPayment("7002", "bob", "75.25", baseTime.Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, Conflict, res.Outcome)
		require.NotNil(t, res.Existing)
		assert.Equal(t, "alice", res.Existing.CreatorName)

		got, err := s.Lookup(ctx, "7002")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.CreatorName)
	})

	t.Run("concurrent inserts yield exactly one winner", func(t *testing.T) {
		s := newStore(t)
		const n = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
			conflict int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.InsertIfAbsent(ctx, newPayment("7003", "racer", "10", baseTime))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if res.Outcome == Inserted {
					inserted++
				} else {
					conflict++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, inserted)
		assert.Equal(t, n-1, conflict)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		_, err := s.InsertIfAbsent(ctx, newPayment("7004", "alice", "50", baseTime))
		require.NoError(t, err)

		creator := "Alice B"
		amount := decimal.RequireFromString("62.5")
		got, err := s.Update(ctx, "7004", models.PaymentPatch{CreatorName: &creator, Amount: &amount})
		require.NoError(t, err)
		assert.Equal(t, "Alice B", got.CreatorName)
		assert.True(t, got.Amount.Equal(amount))

		_, err = s.Update(ctx, "missing", models.PaymentPatch{CreatorName: &creator})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		_, err := s.InsertIfAbsent(ctx, newPayment("7005", "alice", "50", baseTime))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "7005"))
		_, err = s.Lookup(ctx, "7005")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "7005"), ErrNotFound)

		res, err := s.InsertIfAbsent(ctx, newPayment("7005", "bob", "20", baseTime))
		require.NoError(t, err)
		assert.Equal(t, Inserted, res.Outcome)
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		s := newStore(t)
		seed := []*models.Payment{
			newPayment("8001", "Alice", "10", baseTime),
			newPayment("8002", "bob", "20", baseTime.Add(time.Hour)),
			newPayment("8003", "alice", "30", baseTime.Add(2*time.Hour)),
			newPayment("8004", "carol", "40", baseTime.Add(48*time.Hour)),
		}
		seed[1].Notes = "bonus for ALICE collab"
		for _, p := range seed {
			_, err := s.InsertIfAbsent(ctx, p)
			require.NoError(t, err)
		}

		all, err := s.List(ctx, models.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"8004", "8003", "8002", "8001"}, videoIDs(all))

		byCreator, err := s.List(ctx, models.ListFilter{Creator: "ALICE"})
		require.NoError(t, err)
		assert.Equal(t, []string{"8003", "8001"}, videoIDs(byCreator))

		byQuery, err := s.List(ctx, models.ListFilter{Query: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []string{"8003", "8002", "8001"}, videoIDs(byQuery))

		window, err := s.List(ctx, models.ListFilter{Since: baseTime.Add(time.Hour), Until: baseTime.Add(24 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, []string{"8003", "8002"}, videoIDs(window))

		limited, err := s.List(ctx, models.ListFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"8004", "8003"}, videoIDs(limited))
	})
}

func videoIDs(list []models.Payment) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.VideoID)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_InsertStampsTimes(t *testing.T) {
	s := NewMemoryStore()
	s.now = func() time.Time { return baseTime }
	p := newPayment("9001", "alice", "5", time.Time{})

	_, err := s.InsertIfAbsent(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, p.SubmittedAt.Equal(baseTime))
	assert.True(t, p.UpdatedAt.Equal(baseTime))
	assert.Equal(t, 1, s.Len())
}
