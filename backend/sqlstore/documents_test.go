package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocumentCreateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	props := value.Dictionary{"name": value.NewString("alice")}
	created, err := s.DocumentCreate(ctx, "user", "u1", now, now, props)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.Revision)
	assert.True(t, created.Active)

	got, err := s.DocumentGet(ctx, "user", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.DocID)
	name, err := got.Properties["name"].String()
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestDocumentCreateDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
	require.NoError(t, err)

	_, err = s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
	assert.ErrorIs(t, err, backend.ErrAlreadyExists)
}

func TestDocumentUpdateMergesAndRemovesProperties(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.DocumentCreate(ctx, "user", "u1", now, now,
		value.Dictionary{"a": value.NewInt64(1), "b": value.NewInt64(2)})
	require.NoError(t, err)

	updated, err := s.DocumentUpdate(ctx, "user", "u1",
		value.Dictionary{"a": value.NewInt64(10)}, map[string]struct{}{"b": {}}, now)
	require.NoError(t, err)

	a, err := updated.Properties["a"].Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(10), a)
	_, hasB := updated.Properties["b"]
	assert.False(t, hasB)
}

func TestDocumentRemoveTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
	require.NoError(t, err)

	removed, err := s.DocumentRemove(ctx, "user", "u1")
	require.NoError(t, err)
	assert.False(t, removed.Active)

	got, err := s.DocumentGet(ctx, "user", "u1")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestDocumentGetUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DocumentGet(context.Background(), "user", "missing")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestDocumentCountActiveOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
	require.NoError(t, err)
	_, err = s.DocumentCreate(ctx, "user", "u2", now, now, value.Dictionary{})
	require.NoError(t, err)
	_, err = s.DocumentRemove(ctx, "user", "u2")
	require.NoError(t, err)

	active, err := s.DocumentCount(ctx, "user", true)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	all, err := s.DocumentCount(ctx, "user", false)
	require.NoError(t, err)
	assert.Equal(t, 2, all)
}

func TestDocumentIterateSinceRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
	require.NoError(t, err)
	second, err := s.DocumentCreate(ctx, "user", "u2", now, now, value.Dictionary{})
	require.NoError(t, err)

	var seen []string
	err = s.DocumentIterateSinceRevision(ctx, "user", second.Revision-1, true, func(d *backend.DocumentInfo) error {
		seen = append(seen, d.DocID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, seen)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wantErr := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.DocumentCreate(ctx, "user", "u1", now, now, value.Dictionary{})
		require.NoError(t, err)
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, err = s.DocumentGet(ctx, "user", "u1")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}
