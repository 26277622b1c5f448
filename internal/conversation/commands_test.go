package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
)

func seededStore(t *testing.T) *payments.MemoryStore {
	t.Helper()
	store := payments.NewMemoryStore()
	now := time.Now().UTC()
	for i, p := range []*models.Payment{
		{VideoID: "7001", URL: videoURL, CreatorName: "alice", Amount: decimal.NewFromInt(50), Currency: "USD", Notes: "launch collab"},
		{VideoID: "7002", CreatorName: "bob", Amount: decimal.NewFromInt(20), Currency: "USD"},
		{VideoID: "7003", CreatorName: "Alice", Amount: decimal.RequireFromString("12.50"), Currency: "EUR"},
	} {
		p.SubmittedAt = now.Add(time.Duration(i-3) * time.Hour)
		seed(t, store, p)
	}
	return store
}

func TestCommands_Lookup(t *testing.T) {
	h := newHarness(t, harnessConfig{store: seededStore(t)})

	h.say("bob", "!lookup "+videoURL)
	details := h.wait(titleDetails)
	assert.Equal(t, "alice", details.Msg.Embed.Fields[0].Value)
	assert.NotEmpty(t, details.Msg.ReplyTo)

	h.say("bob", "!lookup 9999")
	h.wait(titleNotFound)
	h.say("bob", "!lookup")
	h.wait(titleUsage)
}

func TestCommands_Recent(t *testing.T) {
	h := newHarness(t, harnessConfig{store: seededStore(t)})

	h.say("bob", "!recent 2")
	recent := h.wait(titleRecent)
	assert.Contains(t, recent.Msg.Embed.Description, "`7003`")
	assert.Contains(t, recent.Msg.Embed.Description, "`7002`")
	assert.NotContains(t, recent.Msg.Embed.Description, "`7001`")

	h.say("bob", "!recent 50")
	h.wait(titleUsage)
}

func TestCommands_CreatorAndSearch(t *testing.T) {
	h := newHarness(t, harnessConfig{store: seededStore(t)})

	h.say("bob", "!creator ALICE")
	summary := h.wait("👤 ")
	assert.Equal(t, "2", summary.Msg.Embed.Fields[0].Value)
	assert.Contains(t, summary.Msg.Embed.Fields[1].Value, "$50.00 (1)")
	assert.Contains(t, summary.Msg.Embed.Fields[1].Value, "€12.50 (1)")

	h.say("bob", "!creator nobody")
	h.wait("Creator Not Found")

	h.say("bob", "!search collab")
	found := h.wait(titleSearch)
	assert.Contains(t, found.Msg.Embed.Description, "`7001`")
	assert.NotContains(t, found.Msg.Embed.Description, "`7002`")
}

func TestCommands_StatsAndMonthly(t *testing.T) {
	h := newHarness(t, harnessConfig{store: seededStore(t)})

	h.say("bob", "!stats")
	stats := h.wait(titleStats)
	assert.Equal(t, "3", stats.Msg.Embed.Fields[0].Value)
	assert.Equal(t, "2", stats.Msg.Embed.Fields[1].Value)

	h.say("bob", "!monthly 2026-13")
	h.wait(titleUsage)
	h.say("bob", "!monthly 1999-01")
	empty := h.wait("Monthly Report: 1999-01")
	assert.Equal(t, "No payments this month.", empty.Msg.Embed.Description)
}

func TestCommands_Export(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.say("bob", "!export")
	h.wait(titleExportQueued)
	h.jobs.mu.Lock()
	require.Len(t, h.jobs.exports, 1)
	assert.Equal(t, channel, h.jobs.exports[0].ChannelID)
	assert.Equal(t, "bob", h.jobs.exports[0].RequestedBy)
	h.jobs.mu.Unlock()

	unconfigured := newHarness(t, harnessConfig{noJobs: true})
	unconfigured.say("bob", "!export")
	msg := unconfigured.wait(titleError)
	assert.Equal(t, "Exports are not configured.", msg.Msg.Embed.Description)
}

func TestCommands_Edit(t *testing.T) {
	store := seededStore(t)
	h := newHarness(t, harnessConfig{store: store})

	h.say("bob", "!edit 7002 amount 25 EUR")
	updated := h.wait(titleUpdated)
	assert.Equal(t, "€25.00", updated.Msg.Embed.Fields[1].Value)
	p, err := store.Lookup(context.Background(), "7002")
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(25)))

	h.say("bob", "!edit 7002 notes skip")
	h.waitCount(titleUpdated, 2)
	p, err = store.Lookup(context.Background(), "7002")
	require.NoError(t, err)
	assert.Empty(t, p.Notes)

	h.say("bob", "!edit 7002 amount -5")
	h.wait(titleInvalidAmount)
	h.say("bob", "!edit 7002 colour red")
	h.wait(titleUsage)
	h.say("bob", "!edit 9999 creator carol")
	h.wait(titleNotFound)
}

func TestCommands_DeleteFlow(t *testing.T) {
	store := seededStore(t)
	h := newHarness(t, harnessConfig{store: store})

	h.say("bob", "!delete 7002")
	prompt := h.wait(titleDeleteConfirm)
	require.Eventually(t, func() bool { return h.msgr.reacted(prompt.ID, chat.EmojiConfirm) }, waitFor, tick)

	h.react("alice", prompt.ID, chat.EmojiConfirm)
	assert.Never(t, func() bool { return h.msgr.count(titleDeleted) > 0 }, 50*time.Millisecond, tick)

	h.react("bob", prompt.ID, chat.EmojiConfirm)
	h.wait(titleDeleted)
	_, err := store.Lookup(context.Background(), "7002")
	assert.ErrorIs(t, err, payments.ErrNotFound)

	h.say("bob", "!delete 7001")
	second := h.waitCount(titleDeleteConfirm, 2)[1]
	h.react("bob", second.ID, chat.EmojiReject)
	h.wait(titleDeleteAborted)
	_, err = store.Lookup(context.Background(), "7001")
	assert.NoError(t, err)
}

func TestCommands_DeleteTimesOut(t *testing.T) {
	h := newHarness(t, harnessConfig{store: seededStore(t), opts: func(o *Options) {
		o.ConfirmTimeout = 30 * time.Millisecond
		o.SweepInterval = 5 * time.Millisecond
	}})

	h.say("bob", "!delete 7001")
	prompt := h.wait(titleDeleteConfirm)
	h.wait(titleDeleteTimeout)
	h.react("bob", prompt.ID, chat.EmojiConfirm)
	assert.Never(t, func() bool { return h.msgr.count(titleDeleted) > 0 }, 50*time.Millisecond, tick)
}

func TestCommands_Unknown(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.say("bob", "!dance")
	h.wait("Unknown command")
	h.say("bob", "just chatting")
	assert.Never(t, func() bool { return h.msgr.count("") > 1 }, 50*time.Millisecond, tick)
}
