package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/pkg/queue"
)

type sentMessage struct {
	ID        string
	ChannelID string
	Msg       chat.Message
}

// label is the embed title, or the text of a plain message.
func (s sentMessage) label() string {
	if s.Msg.Embed != nil {
		return s.Msg.Embed.Title
	}
	return s.Msg.Content
}

type sentReaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

type fakeMessenger struct {
	mu        sync.Mutex
	seq       int
	sent      []sentMessage
	reactions []sentReaction
}

func (m *fakeMessenger) Send(_ context.Context, channelID string, msg chat.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("bot-%d", m.seq)
	m.sent = append(m.sent, sentMessage{ID: id, ChannelID: channelID, Msg: msg})
	return id, nil
}

func (m *fakeMessenger) React(_ context.Context, channelID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, sentReaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (m *fakeMessenger) matching(label string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if strings.Contains(s.label(), label) {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) count(label string) int {
	return len(m.matching(label))
}

func (m *fakeMessenger) reacted(messageID, emoji string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reactions {
		if r.MessageID == messageID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// fakeResolver parses full and mobile links offline and serves canned
// references for anything else. A non-nil gate blocks Resolve until closed.
type fakeResolver struct {
	refs map[string]models.VideoReference
	gate chan struct{}
}

func (f *fakeResolver) Resolve(ctx context.Context, text string) (models.VideoReference, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return models.VideoReference{}, ctx.Err()
		}
	}
	if ref, ok := f.refs[text]; ok {
		return ref, nil
	}
	if ref, ok := resolver.Parse(text); ok {
		return ref, nil
	}
	return models.VideoReference{}, resolver.ErrNotTikTokURL
}

type fakeJobs struct {
	mu        sync.Mutex
	exports   []queue.ExportPayload
	committed []queue.PaymentCommittedPayload
}

func (f *fakeJobs) EnqueueExport(_ context.Context, p queue.ExportPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, p)
	return fmt.Sprintf("job-%d", len(f.exports)), nil
}

func (f *fakeJobs) EnqueuePaymentCommitted(_ context.Context, p queue.PaymentCommittedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, p)
	return nil
}

func (f *fakeJobs) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

// failingStore serves reads from memory but cannot insert.
type failingStore struct {
	*payments.MemoryStore
	err error
}

func (s *failingStore) InsertIfAbsent(context.Context, *models.Payment) (payments.InsertResult, error) {
	return payments.InsertResult{}, s.err
}

// slowStore blocks inserts until the context ends.
type slowStore struct {
	*payments.MemoryStore
}

func (s *slowStore) InsertIfAbsent(ctx context.Context, _ *models.Payment) (payments.InsertResult, error) {
	<-ctx.Done()
	return payments.InsertResult{}, ctx.Err()
}
