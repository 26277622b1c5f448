package payments

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return openTestSQLite(t) })
}

func TestSQLiteStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.InsertIfAbsent(context.Background(), newPayment("7100", "alice", "12.34", baseTime))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Lookup(context.Background(), "7100")
	require.NoError(t, err)
	assert.Equal(t, "12.34", got.Amount.StringFixed(2))
	assert.True(t, got.SubmittedAt.Equal(baseTime))
}
