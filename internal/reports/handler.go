package reports

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/middleware"
	"github.com/creatorpay/tracker/pkg/queue"
	"github.com/creatorpay/tracker/pkg/response"
)

const creatorPaymentsShown = 50

// SessionCounter reports live conversation sessions.
type SessionCounter interface {
	Len() int
	Reserved() int
}

// ExportQueue accepts CSV export jobs.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) (string, error)
}

// ExportRequest is the body for POST /exports.
type ExportRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	Creator   string `json:"creator"`
	Since     string `json:"since"`
	Until     string `json:"until"`
}

// Handler serves reports over HTTP.
type Handler struct {
	svc      *Service
	sessions SessionCounter
	exports  ExportQueue
	logger   *zap.Logger
}

// NewHandler creates a reports handler. sessions and exports may be nil.
func NewHandler(svc *Service, sessions SessionCounter, exports ExportQueue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, sessions: sessions, exports: exports, logger: logger}
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, st)
}

// Monthly handles GET /stats/monthly?month=YYYY-MM.
func (h *Handler) Monthly(c *gin.Context) {
	month, err := ParseMonth(c.Query("month"), h.svc.now())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Monthly(c.Request.Context(), month)
	if err != nil {
		h.logger.Error("monthly stats", zap.Error(err))
		response.Internal(c, "failed to compute monthly stats")
		return
	}
	response.OK(c, m)
}

// Creator handles GET /creators/:name.
func (h *Handler) Creator(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	sum, err := h.svc.Creator(c.Request.Context(), name, creatorPaymentsShown)
	if err != nil {
		h.logger.Error("creator report", zap.String("creator", name), zap.Error(err))
		response.Internal(c, "failed to load creator")
		return
	}
	if sum.Count == 0 {
		response.NotFound(c, "creator not found")
		return
	}
	response.OK(c, sum)
}

// Sessions handles GET /sessions.
func (h *Handler) Sessions(c *gin.Context) {
	if h.sessions == nil {
		response.OK(c, gin.H{"active": 0, "resolving": 0})
		return
	}
	response.OK(c, gin.H{"active": h.sessions.Len(), "resolving": h.sessions.Reserved()})
}

// Export handles POST /exports.
func (h *Handler) Export(c *gin.Context) {
	if h.exports == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	payload := queue.ExportPayload{
		ChannelID:   strings.TrimSpace(req.ChannelID),
		RequestedBy: c.GetString(middleware.ContextOperator),
		Creator:     strings.TrimSpace(req.Creator),
	}
	var err error
	if payload.Since, err = parseDay(req.Since); err != nil {
		response.BadRequest(c, "invalid since (want YYYY-MM-DD)")
		return
	}
	if payload.Until, err = parseDay(req.Until); err != nil {
		response.BadRequest(c, "invalid until (want YYYY-MM-DD)")
		return
	}
	jobID, err := h.exports.EnqueueExport(c.Request.Context(), payload)
	if err != nil {
		h.logger.Error("enqueue export", zap.Error(err))
		response.ServiceUnavailable(c, "failed to queue export")
		return
	}
	h.logger.Info("export queued", zap.String("job_id", jobID), zap.String("channel_id", payload.ChannelID))
	response.Created(c, gin.H{"job_id": jobID})
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
