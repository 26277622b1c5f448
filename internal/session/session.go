// Package session holds the in-memory submission dialogs, one per user and channel.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/models"
)

var (
	// ErrInProgress is returned when the key already has an active or reserved session.
	ErrInProgress = errors.New("session already in progress")
	// ErrRegistryFull is returned when the registry holds its maximum number of sessions.
	ErrRegistryFull = errors.New("too many active sessions")
)

// Step is the dialog position of a session.
type Step int

const (
	AwaitingCreator Step = iota
	AwaitingAmount
	AwaitingNotes
	AwaitingConfirmation
)

func (s Step) String() string {
	switch s {
	case AwaitingCreator:
		return "awaiting_creator"
	case AwaitingAmount:
		return "awaiting_amount"
	case AwaitingNotes:
		return "awaiting_notes"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	}
	return "unknown"
}

// Key identifies a session: one user in one channel.
type Key struct {
	UserID    string
	ChannelID string
}

func (k Key) String() string { return k.UserID + "@" + k.ChannelID }

// Session is one in-flight submission dialog.
type Session struct {
	Key             Key
	Video           models.VideoReference
	SubmitMessageID string
	Step            Step
	CreatorName     string
	Amount          decimal.Decimal
	Currency        string
	Notes           string
	CreatedAt       time.Time
	Deadline        time.Time

	// ConfirmMessageID is the summary message awaiting a reaction.
	ConfirmMessageID string
	// Committing is set once the owner confirmed; the session no longer expires.
	Committing bool
}

// Advance moves to step and restarts the deadline.
func (s *Session) Advance(step Step, now time.Time, timeout time.Duration) {
	s.Step = step
	s.Deadline = now.Add(timeout)
}

// Refresh restarts the deadline of the current step.
func (s *Session) Refresh(now time.Time, timeout time.Duration) {
	s.Deadline = now.Add(timeout)
}

// Expired reports whether the deadline has passed. Committing sessions never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.Committing && !now.Before(s.Deadline)
}

// Payment builds the record the session will commit.
func (s *Session) Payment(submittedBy string) *models.Payment {
	return &models.Payment{
		VideoID:     s.Video.CanonicalID,
		URL:         s.Video.SourceURL,
		CreatorName: s.CreatorName,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Notes:       s.Notes,
		Resolved:    s.Video.Resolved,
		SubmittedBy: submittedBy,
	}
}

// Registry maps keys to sessions. Reservations hold a key while its submit is resolved.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
	reserved map[Key]struct{}
	max      int
}

// NewRegistry creates a registry bounded to max live entries (0 means unbounded).
func NewRegistry(max int) *Registry {
	return &Registry{
		sessions: make(map[Key]*Session),
		reserved: make(map[Key]struct{}),
		max:      max,
	}
}

// Reserve claims key for a submit that is still being resolved.
func (r *Registry) Reserve(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy(key) {
		return ErrInProgress
	}
	if r.max > 0 && len(r.sessions)+len(r.reserved) >= r.max {
		return ErrRegistryFull
	}
	r.reserved[key] = struct{}{}
	return nil
}

// Release drops a reservation that did not become a session.
func (r *Registry) Release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, key)
}

// Open turns the reservation for s.Key into an active session.
func (r *Registry) Open(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Key]; ok {
		return ErrInProgress
	}
	if _, ok := r.reserved[s.Key]; !ok && r.max > 0 && len(r.sessions)+len(r.reserved) >= r.max {
		return ErrRegistryFull
	}
	delete(r.reserved, s.Key)
	r.sessions[s.Key] = s
	return nil
}

// Get returns the active session for key.
func (r *Registry) Get(key Key) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Busy reports whether key has an active or reserved session.
func (r *Registry) Busy(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.busy(key)
}

func (r *Registry) busy(key Key) bool {
	if _, ok := r.sessions[key]; ok {
		return true
	}
	_, ok := r.reserved[key]
	return ok
}

// Remove deletes and returns the session for key.
func (r *Registry) Remove(key Key) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	return s, ok
}

// Expired returns the sessions whose deadline has passed, oldest deadline first.
// They stay registered; the caller removes them.
func (r *Registry) Expired(now time.Time) []*Session {
	r.mu.RLock()
	var out []*Session
	for _, s := range r.sessions {
		if s.Expired(now) {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// ByConfirmMessage returns the session awaiting a reaction on messageID in channelID.
func (r *Registry) ByConfirmMessage(channelID, messageID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ConfirmMessageID == messageID && s.Key.ChannelID == channelID && s.Step == AwaitingConfirmation {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reserved returns the number of pending reservations.
func (r *Registry) Reserved() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reserved)
}
