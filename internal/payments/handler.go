package payments

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/middleware"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/money"
	"github.com/creatorpay/tracker/pkg/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// UpdateRequest is the body for PATCH /payments/:videoId.
type UpdateRequest struct {
	CreatorName *string          `json:"creator_name"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	Notes       *string          `json:"notes"`
	URL         *string          `json:"url"`
}

// Handler serves payment records over HTTP.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /payments?creator=&q=&since=&until=&limit=.
func (h *Handler) List(c *gin.Context) {
	filter := models.ListFilter{
		Creator: strings.TrimSpace(c.Query("creator")),
		Query:   strings.TrimSpace(c.Query("q")),
		Limit:   defaultListLimit,
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			response.BadRequest(c, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	var err error
	if filter.Since, err = parseDate(c.Query("since")); err != nil {
		response.BadRequest(c, "invalid since (want YYYY-MM-DD)")
		return
	}
	if filter.Until, err = parseDate(c.Query("until")); err != nil {
		response.BadRequest(c, "invalid until (want YYYY-MM-DD)")
		return
	}

	list, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list payments", zap.Error(err))
		response.Internal(c, "failed to list payments")
		return
	}
	if list == nil {
		list = []models.Payment{}
	}
	response.OK(c, list)
}

// Get handles GET /payments/:videoId.
func (h *Handler) Get(c *gin.Context) {
	p, err := h.store.Lookup(c.Request.Context(), c.Param("videoId"))
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("lookup payment", zap.String("video_id", c.Param("videoId")), zap.Error(err))
		response.Internal(c, "failed to load payment")
		return
	}
	response.OK(c, p)
}

// Update handles PATCH /payments/:videoId.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if patch.Empty() {
		response.BadRequest(c, "nothing to update")
		return
	}

	videoID := c.Param("videoId")
	p, err := h.store.Update(c.Request.Context(), videoID, patch)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("update payment", zap.String("video_id", videoID), zap.Error(err))
		response.Internal(c, "failed to update payment")
		return
	}
	h.logger.Info("payment updated via api", zap.String("video_id", videoID), zap.String("operator", c.GetString(middleware.ContextOperator)))
	response.OK(c, p)
}

// Delete handles DELETE /payments/:videoId (admin only).
func (h *Handler) Delete(c *gin.Context) {
	videoID := c.Param("videoId")
	err := h.store.Delete(c.Request.Context(), videoID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("delete payment", zap.String("video_id", videoID), zap.Error(err))
		response.Internal(c, "failed to delete payment")
		return
	}
	h.logger.Info("payment deleted via api", zap.String("video_id", videoID), zap.String("operator", c.GetString(middleware.ContextOperator)))
	response.NoContent(c)
}

func (r UpdateRequest) patch() (models.PaymentPatch, error) {
	var patch models.PaymentPatch
	if r.CreatorName != nil {
		name := strings.TrimSpace(*r.CreatorName)
		if name == "" {
			return patch, errors.New("creator_name must not be empty")
		}
		patch.CreatorName = &name
	}
	if r.Amount != nil {
		if err := money.ValidateAmount(*r.Amount); err != nil {
			return patch, err
		}
		patch.Amount = r.Amount
	}
	if r.Currency != nil {
		code, err := money.NormalizeCurrency(*r.Currency)
		if err != nil {
			return patch, err
		}
		patch.Currency = &code
	}
	if r.Notes != nil {
		notes := strings.TrimSpace(*r.Notes)
		patch.Notes = &notes
	}
	if r.URL != nil {
		u := strings.TrimSpace(*r.URL)
		if u == "" {
			return patch, errors.New("url must not be empty")
		}
		patch.URL = &u
	}
	return patch, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
