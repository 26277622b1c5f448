package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creatorpay/tracker/internal/auth"
	"github.com/creatorpay/tracker/pkg/response"
)

const (
	// ContextOperator is the key for the operator name in gin context.
	ContextOperator = "operator"
	// ContextRole is the key for the operator role in gin context.
	ContextRole = "role"
)

// JWT returns a middleware that validates JWT and sets operator claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextOperator, claims.Operator())
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
