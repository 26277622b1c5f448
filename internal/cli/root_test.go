package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/auth"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/pkg/utils"
)

type offlineResolver struct{}

func (offlineResolver) Resolve(_ context.Context, text string) (models.VideoReference, error) {
	if ref, ok := resolver.Parse(text); ok {
		return ref, nil
	}
	return models.VideoReference{}, resolver.ErrNotTikTokURL
}

func newEnv(t *testing.T) (*Env, *payments.MemoryStore) {
	t.Helper()
	store := payments.NewMemoryStore()
	for i, name := range []string{"alice", "bob"} {
		_, err := store.InsertIfAbsent(context.Background(), &models.Payment{
			VideoID:     []string{"7001", "7002"}[i],
			CreatorName: name,
			Amount:      decimal.NewFromInt(int64(50 + i)),
			Currency:    "USD",
			SubmittedAt: time.Date(2026, 3, 1+i, 10, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpireHours: 1}}
	return &Env{
		Config:    cfg,
		OpenStore: func(context.Context) (payments.Store, func(), error) { return store, func() {}, nil },
		Resolver:  offlineResolver{},
	}, store
}

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(env)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	env, _ := newEnv(t)
	_, err := run(t, env, "--format", "yaml", "resolve", "https://www.tiktok.com/@a/video/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResolve(t *testing.T) {
	env, _ := newEnv(t)
	out, err := run(t, env, "resolve", "https://www.tiktok.com/@alice/video/7001")
	require.NoError(t, err)
	assert.Contains(t, out, "video id:  7001")
	assert.Contains(t, out, "username:  @alice")

	out, err = run(t, env, "--format", "json", "resolve", "tiktok.com/@alice/video/7001")
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	_, err = run(t, env, "resolve", "https://example.com")
	assert.ErrorIs(t, err, resolver.ErrNotTikTokURL)
}

func TestLookup(t *testing.T) {
	env, _ := newEnv(t)
	out, err := run(t, env, "lookup", "https://www.tiktok.com/@bob/video/7002")
	require.NoError(t, err)
	assert.Contains(t, out, "creator:   bob")
	assert.Contains(t, out, "amount:    $51.00")

	_, err = run(t, env, "lookup", "9999")
	assert.ErrorContains(t, err, "no payment recorded for 9999")

	env.OpenStore = func(context.Context) (payments.Store, func(), error) { return nil, nil, errors.New("db down") }
	_, err = run(t, env, "lookup", "7001")
	assert.ErrorContains(t, err, "db down")
}

func TestExport(t *testing.T) {
	env, _ := newEnv(t)
	out, err := run(t, env, "export")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	path := filepath.Join(t.TempDir(), "payments.csv")
	out, err = run(t, env, "export", "--out", path, "--until", "2026-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 payment(s)")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alice")
	assert.NotContains(t, string(data), "bob")

	_, err = run(t, env, "export", "--since", "March")
	assert.ErrorContains(t, err, "invalid --since")
}

func TestMigrate(t *testing.T) {
	env, _ := newEnv(t)
	_, err := run(t, env, "migrate")
	assert.ErrorContains(t, err, "postgres")

	called := false
	env.Migrate = func(context.Context) error { called = true; return nil }
	out, err := run(t, env, "migrate")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "up to date")
}

func TestHashPassword(t *testing.T) {
	env, _ := newEnv(t)
	out, err := run(t, env, "hash-password", "hunter2")
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("hunter2", strings.TrimSpace(out)))
}

func TestToken(t *testing.T) {
	env, _ := newEnv(t)
	out, err := run(t, env, "token", "dana", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.NewJWTService("test-secret", 1).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "dana", claims.Operator())
	assert.Equal(t, "admin", claims.Role)

	_, err = run(t, env, "token", "dana", "--role", "root")
	assert.ErrorContains(t, err, "--role")
}
