package tags

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tags.db")
	idx, err := OpenSQLiteIndex(ctx, path, "text-embedding-3-small")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Put(ctx, "t1", []float32{0.25, -1.5, 3}))
	require.NoError(t, idx.Put(ctx, "t2", []float32{1, 0, 0}))
	require.NoError(t, idx.Put(ctx, "t1", []float32{0.5, 0.5, 0}))

	got, err := idx.Vectors(ctx, []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{
		"t1": {0.5, 0.5, 0},
		"t2": {1, 0, 0},
	}, got)

	// Vectors written under another model are invisible.
	other, err := OpenSQLiteIndex(ctx, path, "other-model")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	got, err = other.Vectors(ctx, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeVectorRejectsBadLength(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	v, err := decodeVector(encodeVector([]float32{1.25, -2}), 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.25, -2}, v)
}

func TestMemoryIndexCopiesVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	vec := []float32{1, 2}
	require.NoError(t, idx.Put(ctx, "t1", vec))
	vec[0] = 9

	got, err := idx.Vectors(ctx, []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got["t1"])
}
