package legacy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/manifest"
	"github.com/vectrix-db/vectrix/storage"
)

func TestOpenCreatesIndexFile(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutVector(context.Background(), core.LocalID(1), []float32{1, 2, 3}))

	_, err = os.Stat(filepath.Join(dir, IndexFileName))
	assert.NoError(t, err)
}

func TestVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutVector(ctx, core.LocalID(1), []float32{1, 2, 3}))
	got, err := b.GetVector(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	_, err = b.GetVector(ctx, core.LocalID(2))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetadataRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutMetadata(ctx, core.LocalID(1), []byte(`{"title":"a"}`)))
	got, err := b.GetMetadata(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"a"}`, string(got))

	require.NoError(t, b.DeleteMetadata(ctx, core.LocalID(1)))
	_, err = b.GetMetadata(ctx, core.LocalID(1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGraphNodeRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutGraphNode(ctx, core.LocalID(1), []byte{1, 2, 3}))
	got, err := b.GetGraphNode(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, b.DeleteGraphNode(ctx, core.LocalID(1)))
	_, err = b.GetGraphNode(ctx, core.LocalID(1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	want := &manifest.Manifest{Version: manifest.CurrentVersion, Dim: 3, Metric: "cosine", ItemCount: 7}
	require.NoError(t, b.PutManifest(ctx, want))

	got, err := b.GetManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Dim, got.Dim)
	assert.Equal(t, want.Metric, got.Metric)
	assert.Equal(t, want.ItemCount, got.ItemCount)
}

func TestReopenPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, b.PutVector(ctx, core.LocalID(1), []float32{4, 5, 6}))
	require.NoError(t, b.PutMetadata(ctx, core.LocalID(1), []byte(`{"k":"v"}`)))
	require.NoError(t, b.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.GetVector(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, v)

	m, err := reopened.GetMetadata(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(m))
}

func TestSaveRewritesFileNotAppends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutVector(ctx, core.LocalID(1), []float32{1, 1, 1}))
	first, err := os.Stat(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	require.NoError(t, b.PutVector(ctx, core.LocalID(1), []float32{2, 2, 2}))
	second, err := os.Stat(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)

	// Same logical record, rewritten: file should not have grown unboundedly
	// (an append-only format would grow with every write of the same key).
	assert.InDelta(t, float64(first.Size()), float64(second.Size()), 16)

	v, err := b.GetVector(ctx, core.LocalID(1))
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2}, v)
}

func TestGetManifestDefaultOnFreshIndex(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	m, err := b.GetManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest.CurrentVersion, m.Version)
}
