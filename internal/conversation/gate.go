package conversation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/session"
)

// Decision is the gate's reading of a reaction.
type Decision int

const (
	Ignore Decision = iota
	Confirm
	Reject
)

// Gate asks the session owner to confirm a candidate record and commits it.
// It is the only caller of InsertIfAbsent.
type Gate struct {
	store          payments.Inserter
	messenger      chat.Messenger
	confirmTimeout time.Duration
	commitTimeout  time.Duration
	logger         *zap.Logger
}

// NewGate creates a confirmation gate.
func NewGate(store payments.Inserter, messenger chat.Messenger, confirmTimeout, commitTimeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, messenger: messenger, confirmTimeout: confirmTimeout, commitTimeout: commitTimeout, logger: logger}
}

// Present posts the summary of s with the confirm and reject reactions and
// records the summary message on the session.
func (g *Gate) Present(ctx context.Context, s *session.Session) error {
	id, err := g.messenger.Send(ctx, s.Key.ChannelID, summaryMessage(s, int(g.confirmTimeout/time.Second)))
	if err != nil {
		return err
	}
	s.ConfirmMessageID = id
	for _, emoji := range []string{chat.EmojiConfirm, chat.EmojiReject} {
		if err := g.messenger.React(ctx, s.Key.ChannelID, id, emoji); err != nil {
			g.logger.Warn("add reaction", zap.String("channel_id", s.Key.ChannelID), zap.String("emoji", emoji), zap.Error(err))
		}
	}
	return nil
}

// Decide reads ev against s. Only the owner's reaction on the summary
// message counts, and only while the session is awaiting confirmation.
func (g *Gate) Decide(s *session.Session, ev chat.Event) Decision {
	if ev.Kind != chat.KindReaction || s.Step != session.AwaitingConfirmation || s.Committing {
		return Ignore
	}
	if ev.UserID != s.Key.UserID || ev.ChannelID != s.Key.ChannelID || ev.MessageID != s.ConfirmMessageID {
		return Ignore
	}
	switch ev.Emoji {
	case chat.EmojiConfirm, chat.EmojiConfirmBare:
		return Confirm
	case chat.EmojiReject:
		return Reject
	}
	return Ignore
}

// Commit inserts p unless the video is already recorded. Store failures are
// returned as STORE_UNAVAILABLE errors.
func (g *Gate) Commit(ctx context.Context, p *models.Payment) (payments.InsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.commitTimeout)
	defer cancel()
	res, err := g.store.InsertIfAbsent(ctx, p)
	if err != nil {
		reason := "The payment could not be saved. Please submit it again."
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "Saving the payment timed out. Please submit it again."
		}
		return res, newError(CodeStoreUnavailable, reason, err)
	}
	return res, nil
}
