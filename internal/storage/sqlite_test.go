//go:build cgo

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/source"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sources.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorePutIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	content := "def f():\n    return 1\n"
	h1, err := store.Put(ctx, content)
	require.NoError(t, err)
	h2, err := store.Put(ctx, content)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, source.Hash(content), h1)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStoreRanges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hash, err := store.Put(ctx, "a\nb\nc\n")
	require.NoError(t, err)

	text, err := store.GetRange(ctx, hash, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "b\nc", text)

	_, err = store.GetRange(ctx, hash, 3, 4)
	assert.True(t, errors.HasCode(err, errors.CodeRange))

	_, err = store.GetRange(ctx, "nope", 1, 1)
	assert.True(t, errors.HasCode(err, errors.CodeRange))

	_, err = store.Document(ctx, "nope")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestSQLiteStoreWithReader(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hash, err := store.Put(ctx, "x = 1\ny = 2\n")
	require.NoError(t, err)

	reader, err := source.NewReader(ctx, store, hash)
	require.NoError(t, err)

	text, err := reader.ReferToSourceCode(ctx, 2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "y = 2", text)

	purged, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", nil)
	assert.Error(t, err)
}
