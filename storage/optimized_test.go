package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/manifest"
)

func TestOptimizedBackendVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutVector(ctx, 1, []float32{1, 2, 3}))
	got, err := b.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestOptimizedBackendMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutMetadata(ctx, 1, []byte(`{"title":"a"}`)))
	got, err := b.GetMetadata(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"a"}`, string(got))

	require.NoError(t, b.DeleteMetadata(ctx, 1))
	_, err = b.GetMetadata(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOptimizedBackendGraphNodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutGraphNode(ctx, 1, []byte{0, 0, 0}))
	got, err := b.GetGraphNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, got)

	require.NoError(t, b.DeleteGraphNode(ctx, 1))
	_, err = b.GetGraphNode(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOptimizedBackendManifestDefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	m, err := b.GetManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest.CurrentVersion, m.Version)
}

func TestOptimizedBackendManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	want := &manifest.Manifest{Version: manifest.CurrentVersion, Dim: 3, Metric: "cosine", ItemCount: 5}
	require.NoError(t, b.PutManifest(ctx, want))

	got, err := b.GetManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Dim, got.Dim)
	assert.Equal(t, want.Metric, got.Metric)
	assert.Equal(t, want.ItemCount, got.ItemCount)
}

func TestOptimizedBackendSecondOpenFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenOptimized(dir, 3)
	require.NoError(t, err)
	defer b.Close()

	_, err = OpenOptimized(dir, 3)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestOptimizedBackendFsync(t *testing.T) {
	ctx := context.Background()
	b, err := OpenOptimized(t.TempDir(), 3)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutVector(ctx, core.LocalID(1), []float32{1, 2, 3}))
	assert.NoError(t, b.Fsync(ctx))
}
