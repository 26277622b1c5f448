package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/pkg/response"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token    string                `json:"token"`
	Operator models.OperatorPublic `json:"operator"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	dir    *Directory
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(dir *Directory, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	op, err := h.dir.Authenticate(req.Name, req.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("operator", req.Name))
		response.Unauthorized(c, "invalid operator or password")
		return
	}

	token, err := h.jwt.Generate(op.Name, string(op.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Operator: op.ToPublic()})
}
