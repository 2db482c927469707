package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
)

func runStoreContract(t *testing.T, st PersistentStore) {
	ctx := context.Background()

	_, err := st.Get(ctx, "insight:missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, st.Set(ctx, "insight:dist:orders", []byte("v1")))
	got, err := st.Get(ctx, "insight:dist:orders")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Overwrite.
	require.NoError(t, st.Set(ctx, "insight:dist:orders", []byte("v2")))
	got, err = st.Get(ctx, "insight:dist:orders")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// Prefix listing skips other namespaces.
	require.NoError(t, st.Set(ctx, "insight:config:orders", []byte("cfg")))
	require.NoError(t, st.Set(ctx, "insight_meta", []byte("meta")))

	listed, err := st.List(ctx, "insight:")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, []byte("v2"), listed["insight:dist:orders"])
	assert.NotContains(t, listed, "insight_meta")

	// Removing a batch, including a missing key, is not an error.
	require.NoError(t, st.Remove(ctx, "insight:dist:orders", "insight:gone"))
	_, err = st.Get(ctx, "insight:dist:orders")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()
	runStoreContract(t, st)
}

func TestMemoryStore_FailNext(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	injected := errors.New("disk full")
	st.FailNext = injected

	err := st.Set(context.Background(), "insight:x", []byte("v"))
	assert.ErrorIs(t, err, injected)

	// The failure is consumed; the next operation succeeds.
	assert.NoError(t, st.Set(context.Background(), "insight:x", []byte("v")))
}

func TestBadgerStore(t *testing.T) {
	st, err := NewBadgerStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	runStoreContract(t, st)
}

func TestBadgerStore_ValuesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := NewBadgerStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), "insight:config:orders", []byte("cfg")))
	require.NoError(t, st.Close())

	st, err = NewBadgerStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Get(context.Background(), "insight:config:orders")
	require.NoError(t, err)
	assert.Equal(t, []byte("cfg"), got)
}
