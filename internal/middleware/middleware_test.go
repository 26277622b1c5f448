package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/auth"
)

func newRouter(svc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	api := r.Group("", JWT(svc))
	api.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextOperator)+"/"+c.GetString(ContextRole))
	})
	api.DELETE("/admin", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc)
	token, err := svc.Generate("bob", "operator")
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/whoami", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob/operator", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", "garbage").Code)
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc)
	opToken, err := svc.Generate("bob", "operator")
	require.NoError(t, err)
	adminToken, err := svc.Generate("alice", "admin")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/admin", opToken).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin", adminToken).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://a.example"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://a.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://a.example", w.Header().Get("Access-Control-Allow-Origin"))
}
