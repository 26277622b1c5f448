// Package worker runs background jobs queued by the bot: CSV exports and
// announcements of newly recorded payments.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/money"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/pkg/queue"
	"github.com/creatorpay/tracker/pkg/storage"
)

const dequeueTimeout = 5 * time.Second

// JobSource is the queue the worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ObjectStore holds uploaded exports and signs links to them.
type ObjectStore interface {
	ExportsBucket() string
	PresignExpire() time.Duration
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// Processor executes export and announcement jobs.
type Processor struct {
	store      payments.Reader
	objects    ObjectStore
	messenger  chat.Messenger
	queue      JobSource
	logChannel string
	backoff    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewProcessor creates a job processor. objects may be nil, in which case
// exports are answered with an error message. An empty logChannel disables
// commit announcements.
func NewProcessor(store payments.Reader, objects ObjectStore, messenger chat.Messenger, q JobSource, logChannel string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:      store,
		objects:    objects,
		messenger:  messenger,
		queue:      q,
		logChannel: logChannel,
		backoff:    queue.RetryBackoff,
		now:        time.Now,
		logger:     logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeExport:
		var payload queue.ExportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.export(ctx, job.ID, payload)
	case queue.JobTypePaymentCommitted:
		var payload queue.PaymentCommittedPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.announce(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) export(ctx context.Context, jobID string, payload queue.ExportPayload) error {
	if p.objects == nil {
		p.logger.Warn("export requested but S3 is not configured", zap.String("job_id", jobID))
		return p.post(ctx, payload.ChannelID, chat.Message{Embed: &chat.Embed{
			Title: "❌ Export Failed", Description: "Export storage is not configured.", Color: chat.ColorError,
		}})
	}

	list, err := p.store.List(ctx, models.ListFilter{Creator: payload.Creator, Since: payload.Since, Until: payload.Until})
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	var buf bytes.Buffer
	if err := payments.WriteCSV(&buf, list); err != nil {
		return err
	}

	bucket := p.objects.ExportsBucket()
	key := storage.ExportKey(jobID, p.now())
	if err := p.objects.Upload(ctx, bucket, key, "text/csv", &buf); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	expires := p.objects.PresignExpire()
	link, err := p.objects.GeneratePresignedDownloadURL(ctx, bucket, key, expires)
	if err != nil {
		return fmt.Errorf("presign: %w", err)
	}

	embed := &chat.Embed{
		Title:       "📁 Export Ready",
		Description: fmt.Sprintf("[Download CSV](%s)", link),
		Color:       chat.ColorSuccess,
		Footer:      fmt.Sprintf("Link expires in %s", expires),
	}
	embed.AddField("Payments", fmt.Sprint(len(list)), true).
		AddField("Requested by", payload.RequestedBy, true)
	if err := p.post(ctx, payload.ChannelID, chat.Message{Embed: embed}); err != nil {
		return err
	}
	p.logger.Info("export completed", zap.String("job_id", jobID), zap.String("s3_key", key), zap.Int("payments", len(list)))
	return nil
}

func (p *Processor) announce(ctx context.Context, payload queue.PaymentCommittedPayload) error {
	if p.logChannel == "" {
		return nil
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	embed := &chat.Embed{Title: "💸 New Payment Tracked", Color: chat.ColorSuccess}
	embed.AddField("Creator", payload.CreatorName, true).
		AddField("Amount", money.Format(amount, payload.Currency), true).
		AddField("Submitted by", payload.SubmittedBy, true).
		AddField("Video ID", "`"+models.DisplayVideoID(payload.VideoID)+"`", false)
	if payload.URL != "" {
		embed.AddField("URL", payload.URL, false)
	}
	return p.post(ctx, p.logChannel, chat.Message{Embed: embed})
}

func (p *Processor) post(ctx context.Context, channelID string, msg chat.Message) error {
	if _, err := p.messenger.Send(ctx, channelID, msg); err != nil {
		return fmt.Errorf("post to %s: %w", channelID, err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
