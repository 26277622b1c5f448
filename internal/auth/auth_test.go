package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/pkg/utils"
)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)
	dir, err := NewDirectory([]config.OperatorConfig{
		{Name: "alice", Role: "admin", PasswordHash: hash},
		{Name: "bob", Role: "operator", PasswordHash: hash},
	})
	require.NoError(t, err)
	return dir
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate("alice", "admin")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator())
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_RejectsForeignAndExpiredTokens(t *testing.T) {
	token, err := NewJWTService("other", 1).Generate("alice", "admin")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTService("secret", -1).Generate("alice", "admin")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTService("secret", 1).Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewDirectory_Validation(t *testing.T) {
	_, err := NewDirectory([]config.OperatorConfig{{Name: "x", Role: "root", PasswordHash: "h"}})
	assert.Error(t, err)
	_, err = NewDirectory([]config.OperatorConfig{
		{Name: "x", Role: "admin", PasswordHash: "h"},
		{Name: "x", Role: "operator", PasswordHash: "h"},
	})
	assert.Error(t, err)
}

func TestDirectory_Authenticate(t *testing.T) {
	dir := testDirectory(t)
	op, err := dir.Authenticate("bob", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "operator", string(op.Role))

	_, err = dir.Authenticate("bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = dir.Authenticate("mallory", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 2, dir.Len())
}

func TestHandler_Login(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("secret", 1)
	h := NewHandler(testDirectory(t), svc, nil)
	router := gin.New()
	router.POST("/auth/login", h.Login)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	w := post(`{"name":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool          `json:"success"`
		Data    TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "alice", resp.Data.Operator.Name)
	claims, err := svc.Validate(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)

	assert.Equal(t, http.StatusUnauthorized, post(`{"name":"alice","password":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"name":"alice"}`).Code)
}
