package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/reports"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/pkg/queue"
)

const (
	defaultRecent = 10
	maxRecent     = 20
	listShown     = 10
)

type pendingDelete struct {
	videoID   string
	userID    string
	channelID string
	requestID string
	deadline  time.Time
}

func (e *Engine) command(ctx context.Context, ev chat.Event, name, args string) {
	switch name {
	case "submit":
		e.submit(ctx, ev, args)
	case "cancel":
		e.cancel(ctx, ev)
	case "help":
		e.reply(ctx, ev, helpMessage(e.opts.CommandPrefix))
	case "lookup":
		e.lookup(ctx, ev, args)
	case "recent":
		e.recent(ctx, ev, args)
	case "creator":
		e.creator(ctx, ev, args)
	case "search":
		e.search(ctx, ev, args)
	case "stats":
		e.stats(ctx, ev)
	case "monthly":
		e.monthly(ctx, ev, args)
	case "export":
		e.export(ctx, ev)
	case "edit":
		e.edit(ctx, ev, args)
	case "delete":
		e.requestDelete(ctx, ev, args)
	default:
		e.reply(ctx, ev, textMessage(fmt.Sprintf("Unknown command. Try `%shelp`.", e.opts.CommandPrefix)))
	}
}

func (e *Engine) usage(ctx context.Context, ev chat.Event, form string) {
	e.reply(ctx, ev, errorMessage(titleUsage, "`"+e.opts.CommandPrefix+form+"`"))
}

// query runs a store read off the loop and replies with the message it builds.
func (e *Engine) query(ctx context.Context, ev chat.Event, fn func(ctx context.Context) chat.Message) {
	e.spawn(ctx, func(ctx context.Context) func() {
		qctx, cancel := context.WithTimeout(ctx, e.opts.CommitTimeout)
		defer cancel()
		msg := fn(qctx)
		return func() { e.reply(ctx, ev, msg) }
	})
}

func (e *Engine) storeFailure(op string, err error) chat.Message {
	e.logger.Error(op, zap.String("code", string(CodeStoreUnavailable)), zap.Error(err))
	return errorMessage(titleError, "The payment store is unavailable. Please try again shortly.")
}

// videoIDArg accepts a bare id or any full or mobile link.
func videoIDArg(arg string) string {
	if ref, ok := resolver.Parse(arg); ok {
		return ref.CanonicalID
	}
	return arg
}

func notFoundMessage(videoID string) chat.Message {
	return errorMessage(titleNotFound, fmt.Sprintf("No payment recorded for `%s`.", models.DisplayVideoID(videoID)))
}

func (e *Engine) lookup(ctx context.Context, ev chat.Event, args string) {
	if args == "" {
		e.usage(ctx, ev, "lookup <video id or url>")
		return
	}
	id := videoIDArg(args)
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		p, err := e.store.Lookup(ctx, id)
		if errors.Is(err, payments.ErrNotFound) {
			return notFoundMessage(id)
		}
		if err != nil {
			return e.storeFailure("lookup payment", err)
		}
		return paymentMessage(titleDetails, chat.ColorInfo, p)
	})
}

func (e *Engine) recent(ctx context.Context, ev chat.Event, args string) {
	n := defaultRecent
	if args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v < 1 || v > maxRecent {
			e.usage(ctx, ev, fmt.Sprintf("recent [1-%d]", maxRecent))
			return
		}
		n = v
	}
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		list, err := e.store.List(ctx, models.ListFilter{Limit: n})
		if err != nil {
			return e.storeFailure("list recent payments", err)
		}
		return listMessage(titleRecent, list)
	})
}

func (e *Engine) creator(ctx context.Context, ev chat.Event, args string) {
	if args == "" {
		e.usage(ctx, ev, "creator <name>")
		return
	}
	name := norm.NFC.String(args)
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		sum, err := e.reports.Creator(ctx, name, listShown)
		if err != nil {
			return e.storeFailure("creator report", err)
		}
		if sum.Count == 0 {
			return errorMessage("❓ Creator Not Found", fmt.Sprintf("No payments recorded for **%s**.", name))
		}
		return creatorMessage(sum)
	})
}

func (e *Engine) search(ctx context.Context, ev chat.Event, args string) {
	if args == "" {
		e.usage(ctx, ev, "search <text>")
		return
	}
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		list, err := e.store.List(ctx, models.ListFilter{Query: args, Limit: listShown})
		if err != nil {
			return e.storeFailure("search payments", err)
		}
		return listMessage(titleSearch+": "+args, list)
	})
}

func (e *Engine) stats(ctx context.Context, ev chat.Event) {
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		st, err := e.reports.Stats(ctx)
		if err != nil {
			return e.storeFailure("stats", err)
		}
		return statsMessage(st)
	})
}

func (e *Engine) monthly(ctx context.Context, ev chat.Event, args string) {
	month, err := reports.ParseMonth(args, e.now())
	if err != nil {
		e.usage(ctx, ev, "monthly [YYYY-MM]")
		return
	}
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		m, err := e.reports.Monthly(ctx, month)
		if err != nil {
			return e.storeFailure("monthly report", err)
		}
		return monthlyMessage(m)
	})
}

func (e *Engine) export(ctx context.Context, ev chat.Event) {
	if e.jobs == nil {
		e.reply(ctx, ev, errorMessage(titleError, "Exports are not configured."))
		return
	}
	payload := queue.ExportPayload{ChannelID: ev.ChannelID, RequestedBy: ev.UserID}
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		jobID, err := e.jobs.EnqueueExport(ctx, payload)
		if err != nil {
			e.logger.Error("enqueue export", zap.Error(err))
			return errorMessage(titleError, "The export could not be queued. Please try again shortly.")
		}
		e.logger.Info("export queued", zap.String("job_id", jobID), zap.String("channel_id", payload.ChannelID))
		return embedMessage(titleExportQueued, "A download link will be posted here shortly.", chat.ColorInfo)
	})
}

// editPatch builds the patch for "edit <id> <field> <value>".
func (e *Engine) editPatch(field, value string) (models.PaymentPatch, error) {
	var patch models.PaymentPatch
	switch strings.ToLower(field) {
	case "creator":
		name := norm.NFC.String(value)
		if name == "" {
			return patch, errors.New("creator must not be empty")
		}
		patch.CreatorName = &name
	case "amount":
		amount, currency, err := e.parser.Parse(value)
		if err != nil {
			return patch, err
		}
		patch.Amount, patch.Currency = &amount, &currency
	case "notes":
		if e.isSkipWord(value) {
			value = ""
		}
		patch.Notes = &value
	case "url":
		if value == "" {
			return patch, errors.New("url must not be empty")
		}
		patch.URL = &value
	default:
		return patch, fmt.Errorf("unknown field %q", field)
	}
	return patch, nil
}

func (e *Engine) edit(ctx context.Context, ev chat.Event, args string) {
	id, rest, _ := strings.Cut(args, " ")
	field, value, _ := strings.Cut(strings.TrimSpace(rest), " ")
	value = strings.TrimSpace(value)
	if id == "" || field == "" || (value == "" && !strings.EqualFold(field, "notes")) {
		e.usage(ctx, ev, "edit <id> <creator|amount|notes|url> <value>")
		return
	}
	patch, err := e.editPatch(field, value)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Code == CodeInvalidAmountFormat {
			e.reply(ctx, ev, errorMessage(titleInvalidAmount, ce.Reason))
			return
		}
		e.reply(ctx, ev, errorMessage(titleUsage, err.Error()))
		return
	}
	id = videoIDArg(id)
	e.query(ctx, ev, func(ctx context.Context) chat.Message {
		p, err := e.store.Update(ctx, id, patch)
		if errors.Is(err, payments.ErrNotFound) {
			return notFoundMessage(id)
		}
		if err != nil {
			return e.storeFailure("update payment", err)
		}
		e.logger.Info("payment updated", zap.String("video_id", id), zap.String("user_id", ev.UserID), zap.String("field", field))
		return paymentMessage(titleUpdated, chat.ColorSuccess, p)
	})
}

// requestDelete shows the record and waits for the requester's reaction.
func (e *Engine) requestDelete(ctx context.Context, ev chat.Event, args string) {
	if args == "" {
		e.usage(ctx, ev, "delete <id>")
		return
	}
	id := videoIDArg(args)
	e.spawn(ctx, func(ctx context.Context) func() {
		qctx, cancel := context.WithTimeout(ctx, e.opts.CommitTimeout)
		defer cancel()
		p, err := e.store.Lookup(qctx, id)
		return func() {
			switch {
			case errors.Is(err, payments.ErrNotFound):
				e.reply(ctx, ev, notFoundMessage(id))
			case err != nil:
				e.reply(ctx, ev, e.storeFailure("lookup payment", err))
			default:
				e.presentDelete(ctx, ev, p)
			}
		}
	})
}

func (e *Engine) presentDelete(ctx context.Context, ev chat.Event, p *models.Payment) {
	msg := paymentMessage(titleDeleteConfirm, chat.ColorWarning, p)
	msg.Embed.Footer = fmt.Sprintf("React %s to delete or %s to keep (%ds)", chat.EmojiConfirm, chat.EmojiReject, int(e.opts.ConfirmTimeout/time.Second))
	msg.ReplyTo = ev.MessageID
	id := e.send(ctx, ev.ChannelID, msg)
	if id == "" {
		return
	}
	e.react(ctx, ev.ChannelID, id, chat.EmojiConfirm)
	e.react(ctx, ev.ChannelID, id, chat.EmojiReject)
	e.deletes[id] = &pendingDelete{
		videoID:   p.VideoID,
		userID:    ev.UserID,
		channelID: ev.ChannelID,
		requestID: ev.MessageID,
		deadline:  e.now().Add(e.opts.ConfirmTimeout),
	}
}

func (e *Engine) decideDelete(ctx context.Context, d *pendingDelete, ev chat.Event) {
	if ev.UserID != d.userID || ev.ChannelID != d.channelID {
		return
	}
	switch ev.Emoji {
	case chat.EmojiConfirm, chat.EmojiConfirmBare:
		delete(e.deletes, ev.MessageID)
		req := chat.Event{ChannelID: d.channelID, MessageID: d.requestID}
		e.query(ctx, req, func(ctx context.Context) chat.Message {
			err := e.store.Delete(ctx, d.videoID)
			if errors.Is(err, payments.ErrNotFound) {
				return notFoundMessage(d.videoID)
			}
			if err != nil {
				return e.storeFailure("delete payment", err)
			}
			e.logger.Info("payment deleted", zap.String("video_id", d.videoID), zap.String("user_id", d.userID))
			return embedMessage(titleDeleted, fmt.Sprintf("`%s` was removed.", models.DisplayVideoID(d.videoID)), chat.ColorSuccess)
		})
	case chat.EmojiReject:
		delete(e.deletes, ev.MessageID)
		e.send(ctx, d.channelID, embedMessage(titleDeleteAborted, "Nothing was deleted.", chat.ColorInfo))
	}
}
