package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewTestStore creates an empty store in a temporary directory for testing.
func NewTestStore(t *testing.T) *Store {
	t.Helper()
	return NewTestStoreAt(t, filepath.Join(t.TempDir(), "errors.sqlite3"))
}

// NewTestStoreAt creates or opens the store at path for testing.
func NewTestStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
