package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectrix-db/vectrix/core"
)

func TestVectorFilePutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	vf, err := OpenVectorFile(path, 4)
	require.NoError(t, err)
	defer vf.Close()

	want := []float32{1.5, -2.25, 0, 3.75}
	require.NoError(t, vf.PutVector(core.LocalID(3), want))

	got, err := vf.GetVector(core.LocalID(3))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVectorFileGrowsPastInitialCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	vf, err := OpenVectorFile(path, 2)
	require.NoError(t, err)
	defer vf.Close()

	id := core.LocalID(initialCapacity + 10)
	require.NoError(t, vf.PutVector(id, []float32{9, 9}))

	got, err := vf.GetVector(id)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, got)
}

func TestVectorFileGetUnwrittenIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	vf, err := OpenVectorFile(path, 3)
	require.NoError(t, err)
	defer vf.Close()

	_, err = vf.GetVector(core.LocalID(1_000_000))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVectorFileDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	vf, err := OpenVectorFile(path, 3)
	require.NoError(t, err)
	defer vf.Close()

	err = vf.PutVector(core.LocalID(0), []float32{1, 2})
	assert.Error(t, err)
}

func TestVectorFilePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	vf, err := OpenVectorFile(path, 2)
	require.NoError(t, err)
	require.NoError(t, vf.PutVector(core.LocalID(5), []float32{1, 2}))
	require.NoError(t, vf.Sync())
	require.NoError(t, vf.Close())

	reopened, err := OpenVectorFile(path, 2)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetVector(core.LocalID(5))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
}
