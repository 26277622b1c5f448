// Package conversation runs the chat dialog that turns a submitted TikTok
// link into a confirmed payment record, plus the bot's report commands.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/guard"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/reports"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/internal/session"
	"github.com/creatorpay/tracker/pkg/queue"
)

const postedBuffer = 64

// Resolver turns submitted text into a video reference.
type Resolver interface {
	Resolve(ctx context.Context, text string) (models.VideoReference, error)
}

// DuplicateChecker returns the existing payment for a video, or nil.
type DuplicateChecker interface {
	Check(ctx context.Context, videoID string) (*models.Payment, error)
}

// JobQueue accepts background jobs for the worker.
type JobQueue interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) (string, error)
	EnqueuePaymentCommitted(ctx context.Context, payload queue.PaymentCommittedPayload) error
}

// Options tunes the engine. Zero values take the defaults.
type Options struct {
	StepTimeout     time.Duration
	ConfirmTimeout  time.Duration
	CommitTimeout   time.Duration
	ResolveTimeout  time.Duration
	SweepInterval   time.Duration
	DefaultCurrency string
	AllowedUsers    []string
	CommandPrefix   string
	CancelWords     []string
	SkipWords       []string
	Symbols         map[string]string
}

// OptionsFromConfig maps bot settings onto engine options.
func OptionsFromConfig(b config.BotConfig) Options {
	return Options{
		StepTimeout:     b.StepTimeout(),
		ConfirmTimeout:  b.ConfirmTimeout(),
		CommitTimeout:   b.CommitTimeout(),
		ResolveTimeout:  b.ResolveTimeout(),
		SweepInterval:   b.SweepInterval(),
		DefaultCurrency: b.DefaultCurrency,
		AllowedUsers:    b.AllowedUsers,
		CommandPrefix:   b.CommandPrefix,
		CancelWords:     b.CancelWords,
		SkipWords:       b.SkipWords,
		Symbols:         b.CurrencySymbols,
	}
}

func (o *Options) setDefaults() {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 60 * time.Second
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 30 * time.Second
	}
	if o.CommitTimeout <= 0 {
		o.CommitTimeout = 10 * time.Second
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = resolver.DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "USD"
	}
	if o.CommandPrefix == "" {
		o.CommandPrefix = "!"
	}
	if len(o.CancelWords) == 0 {
		o.CancelWords = []string{"cancel", "stop", "exit"}
	}
	if len(o.SkipWords) == 0 {
		o.SkipWords = []string{"skip", "none"}
	}
	if len(o.Symbols) == 0 {
		o.Symbols = DefaultSymbols
	}
}

// Deps are the collaborators of the engine. Guard, Reports, Jobs and
// Sessions are optional.
type Deps struct {
	Messenger chat.Messenger
	Resolver  Resolver
	Guard     DuplicateChecker
	Store     payments.Store
	Reports   *reports.Service
	Jobs      JobQueue
	Sessions  *session.Registry
	Logger    *zap.Logger
}

// Engine owns every session. All session state is touched only by the
// goroutine running Run; blocking work runs in background tasks whose
// results are posted back to it.
type Engine struct {
	opts      Options
	messenger chat.Messenger
	resolver  Resolver
	guard     DuplicateChecker
	store     payments.Store
	reports   *reports.Service
	jobs      JobQueue
	sessions  *session.Registry
	gate      *Gate
	parser    AmountParser
	logger    *zap.Logger

	allowed     map[string]struct{}
	cancelWords map[string]struct{}
	skipWords   map[string]struct{}

	// pending maps reserved keys to the submit message being resolved.
	pending map[session.Key]string
	// deletes maps delete confirmation messages to their requests.
	deletes map[string]*pendingDelete

	posted   chan func()
	inflight int
	wg       sync.WaitGroup
	now      func() time.Time
}

// resolution is the outcome of resolving and duplicate-checking a submit.
type resolution struct {
	ref      models.VideoReference
	existing *models.Payment
	err      error
}

// NewEngine creates an engine.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	if deps.Messenger == nil || deps.Resolver == nil || deps.Store == nil {
		return nil, errors.New("conversation: messenger, resolver and store are required")
	}
	opts.setDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		opts:        opts,
		messenger:   deps.Messenger,
		resolver:    deps.Resolver,
		guard:       deps.Guard,
		store:       deps.Store,
		reports:     deps.Reports,
		jobs:        deps.Jobs,
		sessions:    deps.Sessions,
		parser:      AmountParser{DefaultCurrency: opts.DefaultCurrency, Symbols: opts.Symbols},
		logger:      logger,
		allowed:     wordSet(opts.AllowedUsers, false),
		cancelWords: wordSet(opts.CancelWords, true),
		skipWords:   wordSet(opts.SkipWords, true),
		pending:     make(map[session.Key]string),
		deletes:     make(map[string]*pendingDelete),
		posted:      make(chan func(), postedBuffer),
		now:         time.Now,
	}
	if e.guard == nil {
		e.guard = guard.New(deps.Store, logger)
	}
	if e.reports == nil {
		e.reports = reports.NewService(deps.Store)
	}
	if e.sessions == nil {
		e.sessions = session.NewRegistry(0)
	}
	e.gate = NewGate(deps.Store, deps.Messenger, opts.ConfirmTimeout, opts.CommitTimeout, logger)
	return e, nil
}

func wordSet(words []string, fold bool) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if fold {
			w = strings.ToLower(w)
		}
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

// Sessions returns the registry of live sessions.
func (e *Engine) Sessions() *session.Registry {
	return e.sessions
}

// Run processes events until ctx is done, or until events is closed and
// every background task has reported back.
func (e *Engine) Run(ctx context.Context, events <-chan chat.Event) error {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	defer e.wg.Wait()

	e.logger.Info("conversation engine started", zap.Duration("step_timeout", e.opts.StepTimeout))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				if e.inflight == 0 {
					return nil
				}
				continue
			}
			e.handle(ctx, ev)
		case fn := <-e.posted:
			e.inflight--
			fn()
			if events == nil && e.inflight == 0 {
				return nil
			}
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

// spawn runs work off the loop. The func it returns, if any, runs on the loop.
func (e *Engine) spawn(ctx context.Context, work func(ctx context.Context) func()) {
	e.inflight++
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		done := work(ctx)
		if done == nil {
			done = func() {}
		}
		select {
		case e.posted <- done:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) send(ctx context.Context, channelID string, msg chat.Message) string {
	id, err := e.messenger.Send(ctx, channelID, msg)
	if err != nil {
		e.logger.Warn("send message", zap.String("channel_id", channelID), zap.Error(err))
	}
	return id
}

func (e *Engine) reply(ctx context.Context, ev chat.Event, msg chat.Message) string {
	msg.ReplyTo = ev.MessageID
	return e.send(ctx, ev.ChannelID, msg)
}

func (e *Engine) react(ctx context.Context, channelID, messageID, emoji string) {
	if messageID == "" {
		return
	}
	if err := e.messenger.React(ctx, channelID, messageID, emoji); err != nil {
		e.logger.Warn("add reaction", zap.String("channel_id", channelID), zap.String("emoji", emoji), zap.Error(err))
	}
}

func keyOf(ev chat.Event) session.Key {
	return session.Key{UserID: ev.UserID, ChannelID: ev.ChannelID}
}

func (e *Engine) handle(ctx context.Context, ev chat.Event) {
	switch ev.Kind {
	case chat.KindMessage:
		e.handleMessage(ctx, ev)
	case chat.KindReaction:
		e.handleReaction(ctx, ev)
	}
}

func (e *Engine) handleMessage(ctx context.Context, ev chat.Event) {
	key := keyOf(ev)
	e.expireIfDue(ctx, key)

	text := strings.TrimSpace(ev.Content)
	if name, args, ok := e.parseCommand(text); ok {
		if !e.isAllowed(ev.UserID) {
			e.reply(ctx, ev, errorMessage(titlePrivate, "You are not allowed to use this bot."))
			return
		}
		e.command(ctx, ev, name, args)
		return
	}

	s, ok := e.sessions.Get(key)
	if !ok {
		return
	}
	if e.isCancelWord(text) {
		e.cancelSession(ctx, s)
		return
	}
	e.advance(ctx, s, text)
}

func (e *Engine) parseCommand(text string) (name, args string, ok bool) {
	rest, ok := strings.CutPrefix(text, e.opts.CommandPrefix)
	if !ok {
		return "", "", false
	}
	name, args, _ = strings.Cut(strings.TrimSpace(rest), " ")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

func (e *Engine) isAllowed(userID string) bool {
	if len(e.allowed) == 0 {
		return true
	}
	_, ok := e.allowed[userID]
	return ok
}

func (e *Engine) isCancelWord(text string) bool {
	_, ok := e.cancelWords[strings.ToLower(text)]
	return ok
}

func (e *Engine) isSkipWord(text string) bool {
	_, ok := e.skipWords[strings.ToLower(text)]
	return ok
}

// advance applies one line of user input to the session's current step.
func (e *Engine) advance(ctx context.Context, s *session.Session, text string) {
	if s.Committing {
		return
	}
	now := e.now()
	channelID := s.Key.ChannelID
	switch s.Step {
	case session.AwaitingCreator:
		name := norm.NFC.String(text)
		if name == "" {
			s.Refresh(now, e.opts.StepTimeout)
			e.send(ctx, channelID, promptCreator(s))
			return
		}
		s.CreatorName = name
		s.Advance(session.AwaitingAmount, now, e.opts.StepTimeout)
		e.send(ctx, channelID, promptAmount(s, e.opts.DefaultCurrency))

	case session.AwaitingAmount:
		amount, currency, err := e.parser.Parse(text)
		if err != nil {
			s.Refresh(now, e.opts.StepTimeout)
			e.logger.Debug("invalid amount", zap.String("user_id", s.Key.UserID), zap.String("input", text))
			e.send(ctx, channelID, renderError(err))
			return
		}
		s.Amount, s.Currency = amount, currency
		s.Advance(session.AwaitingNotes, now, e.opts.StepTimeout)
		e.send(ctx, channelID, promptNotes())

	case session.AwaitingNotes:
		if e.isSkipWord(text) {
			s.Notes = ""
		} else {
			s.Notes = text
		}
		s.Advance(session.AwaitingConfirmation, now, e.opts.ConfirmTimeout)
		if err := e.gate.Present(ctx, s); err != nil {
			e.logger.Warn("present confirmation", zap.String("user_id", s.Key.UserID), zap.Error(err))
		}

	case session.AwaitingConfirmation:
		e.send(ctx, channelID, textMessage(fmt.Sprintf("React %s or %s on the summary above.", chat.EmojiConfirm, chat.EmojiReject)))
	}
}

func (e *Engine) handleReaction(ctx context.Context, ev chat.Event) {
	e.expireIfDue(ctx, keyOf(ev))

	if d, ok := e.deletes[ev.MessageID]; ok {
		e.decideDelete(ctx, d, ev)
		return
	}
	s, ok := e.sessions.ByConfirmMessage(ev.ChannelID, ev.MessageID)
	if !ok {
		return
	}
	switch e.gate.Decide(s, ev) {
	case Confirm:
		e.commit(ctx, s)
	case Reject:
		e.cancelSession(ctx, s)
	}
}

// submit reserves the caller's key and resolves the link in the background.
func (e *Engine) submit(ctx context.Context, ev chat.Event, args string) {
	if args == "" {
		e.reply(ctx, ev, errorMessage(titleUsage, fmt.Sprintf("`%ssubmit <tiktok url>`", e.opts.CommandPrefix)))
		return
	}
	key := keyOf(ev)
	if err := e.sessions.Reserve(key); err != nil {
		if errors.Is(err, session.ErrInProgress) {
			e.reply(ctx, ev, renderError(newError(CodeSessionInProgress,
				fmt.Sprintf("Finish or cancel your current submission first (`%scancel`).", e.opts.CommandPrefix), err)))
			return
		}
		e.logger.Warn("session registry full", zap.Int("sessions", e.sessions.Len()))
		e.reply(ctx, ev, embedMessage(titleBusy, "Too many submissions in progress. Try again shortly.", chat.ColorWarning))
		return
	}
	e.pending[key] = ev.MessageID
	e.react(ctx, ev.ChannelID, ev.MessageID, chat.EmojiWorking)

	e.spawn(ctx, func(ctx context.Context) func() {
		r := e.resolve(ctx, args)
		return func() { e.resolved(ctx, ev, r) }
	})
}

// resolve runs off the loop.
func (e *Engine) resolve(ctx context.Context, text string) resolution {
	rctx, cancel := context.WithTimeout(ctx, e.opts.ResolveTimeout)
	ref, err := e.resolver.Resolve(rctx, text)
	cancel()
	if err != nil {
		reason := "Please provide a valid TikTok video URL."
		return resolution{err: newError(CodeNotATikTokURL, reason, err)}
	}

	gctx, cancel := context.WithTimeout(ctx, e.opts.CommitTimeout)
	existing, err := e.guard.Check(gctx, ref.CanonicalID)
	cancel()
	if err != nil {
		return resolution{ref: ref, err: newError(CodeStoreUnavailable, "Could not check for duplicates. Please try again shortly.", err)}
	}
	return resolution{ref: ref, existing: existing}
}

// resolved opens the session for a resolved submit, unless it was cancelled meanwhile.
func (e *Engine) resolved(ctx context.Context, ev chat.Event, r resolution) {
	key := keyOf(ev)
	if id, ok := e.pending[key]; !ok || id != ev.MessageID {
		return
	}
	delete(e.pending, key)

	if r.err != nil {
		e.sessions.Release(key)
		e.logger.Info("submission rejected", zap.String("user_id", ev.UserID), zap.String("code", string(CodeOf(r.err))), zap.Error(r.err))
		e.reply(ctx, ev, renderError(r.err))
		return
	}
	if r.existing != nil {
		e.sessions.Release(key)
		e.reply(ctx, ev, duplicateMessage(r.existing))
		return
	}

	now := e.now()
	s := &session.Session{
		Key:             key,
		Video:           r.ref,
		SubmitMessageID: ev.MessageID,
		Currency:        e.opts.DefaultCurrency,
		CreatedAt:       now,
	}
	s.Advance(session.AwaitingCreator, now, e.opts.StepTimeout)
	if err := e.sessions.Open(s); err != nil {
		e.sessions.Release(key)
		e.logger.Warn("open session", zap.String("user_id", ev.UserID), zap.Error(err))
		e.reply(ctx, ev, embedMessage(titleBusy, "Too many submissions in progress. Try again shortly.", chat.ColorWarning))
		return
	}
	e.logger.Info("session started",
		zap.String("user_id", ev.UserID), zap.String("channel_id", ev.ChannelID),
		zap.String("video_id", r.ref.CanonicalID), zap.Bool("resolved", r.ref.Resolved))

	if !r.ref.Resolved {
		e.reply(ctx, ev, renderError(newError(CodeResolutionDegraded,
			"The short link could not be followed. The payment will be tracked by its shortcode.", nil)))
	}
	e.send(ctx, ev.ChannelID, promptCreator(s))
}

// commit marks s committing and inserts its record in the background.
func (e *Engine) commit(ctx context.Context, s *session.Session) {
	s.Committing = true
	p := s.Payment(s.Key.UserID)
	e.spawn(ctx, func(ctx context.Context) func() {
		res, err := e.gate.Commit(ctx, p)
		return func() { e.committed(ctx, s, p, res, err) }
	})
}

func (e *Engine) committed(ctx context.Context, s *session.Session, p *models.Payment, res payments.InsertResult, err error) {
	e.sessions.Remove(s.Key)
	channelID := s.Key.ChannelID
	log := e.logger.With(zap.String("video_id", p.VideoID), zap.String("user_id", s.Key.UserID))

	switch {
	case err != nil:
		log.Error("commit payment", zap.String("code", string(CodeStoreUnavailable)), zap.Error(err))
		e.send(ctx, channelID, renderError(err))
	case res.Outcome == payments.Conflict:
		log.Info("commit lost to an existing payment", zap.String("code", string(CodeStoreConflict)))
		if res.Existing == nil {
			e.send(ctx, channelID, embedMessage(titleDuplicate, "This video has already been paid. Nothing was saved.", chat.ColorWarning))
			return
		}
		e.send(ctx, channelID, duplicateMessage(res.Existing))
	default:
		log.Info("payment recorded", zap.String("creator", p.CreatorName), zap.String("amount", p.Amount.StringFixed(2)), zap.String("currency", p.Currency))
		e.send(ctx, channelID, paymentMessage(titleRecorded, chat.ColorSuccess, p))
		e.react(ctx, channelID, s.SubmitMessageID, chat.EmojiDone)
		e.announce(ctx, p, channelID)
	}
}

func (e *Engine) announce(ctx context.Context, p *models.Payment, channelID string) {
	if e.jobs == nil {
		return
	}
	payload := queue.PaymentCommittedPayload{
		VideoID:     p.VideoID,
		URL:         p.URL,
		CreatorName: p.CreatorName,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
		SubmittedBy: p.SubmittedBy,
		ChannelID:   channelID,
	}
	e.spawn(ctx, func(ctx context.Context) func() {
		ctx, cancel := context.WithTimeout(ctx, e.opts.CommitTimeout)
		defer cancel()
		if err := e.jobs.EnqueuePaymentCommitted(ctx, payload); err != nil {
			e.logger.Warn("enqueue commit announcement", zap.String("video_id", payload.VideoID), zap.Error(err))
		}
		return nil
	})
}

// cancelSession ends s without persisting anything.
func (e *Engine) cancelSession(ctx context.Context, s *session.Session) {
	if s.Committing {
		e.send(ctx, s.Key.ChannelID, textMessage("The payment is already being saved."))
		return
	}
	e.sessions.Remove(s.Key)
	e.logger.Info("session cancelled", zap.String("user_id", s.Key.UserID), zap.String("step", s.Step.String()))
	e.send(ctx, s.Key.ChannelID, renderError(newError(CodeSessionCancelled, "Nothing was saved.", nil)))
	e.react(ctx, s.Key.ChannelID, s.SubmitMessageID, chat.EmojiReject)
}

// cancel handles the cancel command, including a submit still being resolved.
func (e *Engine) cancel(ctx context.Context, ev chat.Event) {
	key := keyOf(ev)
	if s, ok := e.sessions.Get(key); ok {
		e.cancelSession(ctx, s)
		return
	}
	if _, ok := e.pending[key]; ok {
		delete(e.pending, key)
		e.sessions.Release(key)
		e.reply(ctx, ev, renderError(newError(CodeSessionCancelled, "Nothing was saved.", nil)))
		return
	}
	e.reply(ctx, ev, textMessage("You have no submission in progress."))
}

func (e *Engine) expireIfDue(ctx context.Context, key session.Key) {
	if s, ok := e.sessions.Get(key); ok && s.Expired(e.now()) {
		e.expire(ctx, s)
	}
}

func (e *Engine) expire(ctx context.Context, s *session.Session) {
	e.sessions.Remove(s.Key)
	e.logger.Info("session expired", zap.String("user_id", s.Key.UserID), zap.String("step", s.Step.String()), zap.String("video_id", s.Video.CanonicalID))
	if s.Step == session.AwaitingConfirmation {
		e.send(ctx, s.Key.ChannelID, embedMessage(titleConfirmTimeout, "Operation cancelled. Nothing was saved.", chat.ColorWarning))
		return
	}
	reason := fmt.Sprintf("No response in time. Nothing was saved; use `%ssubmit` to start again.", e.opts.CommandPrefix)
	e.send(ctx, s.Key.ChannelID, renderError(newError(CodeSessionExpired, reason, nil)))
}

func (e *Engine) sweep(ctx context.Context) {
	now := e.now()
	for _, s := range e.sessions.Expired(now) {
		e.expire(ctx, s)
	}
	for id, d := range e.deletes {
		if !now.Before(d.deadline) {
			delete(e.deletes, id)
			e.send(ctx, d.channelID, embedMessage(titleDeleteTimeout, "Nothing was deleted.", chat.ColorWarning))
		}
	}
}
