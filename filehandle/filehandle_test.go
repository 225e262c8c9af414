package filehandle_test

import (
	"path/filepath"
	"testing"

	"github.com/raddi-network/entrystore/filehandle"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesAndReportsCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content")

	h, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferSequential)
	require.NoError(t, err)
	require.True(t, h.Created())
	require.NoError(t, h.Close())

	h2, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferSequential)
	require.NoError(t, err)
	require.False(t, h2.Created())
	require.NoError(t, h2.Close())
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content")

	h, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferSequential)
	require.NoError(t, err)

	n, err := h.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.EqualValues(t, 5, h.Tell())

	require.NoError(t, h.Flush())

	buf := make([]byte, 5)
	_, err = h.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	require.NoError(t, h.Close())
}

func TestZeroOverwritesExtent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content")

	h, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferNone)
	require.NoError(t, err)

	_, err = h.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	require.NoError(t, h.Flush())

	require.NoError(t, h.Zero(2, 4))

	buf := make([]byte, 8)
	_, err = h.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b', 0, 0, 0, 0, 'g', 'h'}, buf)

	require.NoError(t, h.Close())
}

func TestResizeTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	h, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferNone)
	require.NoError(t, err)

	_, err = h.Write([]byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, h.Resize(4))

	size, err := h.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4, size)

	require.NoError(t, h.Close())
}

func TestReadUint64At(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	h, err := filehandle.Open(path, filehandle.ModeAlways, filehandle.AccessWrite, filehandle.ShareFull, filehandle.BufferNone)
	require.NoError(t, err)

	_, err = h.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)

	v, err := h.ReadUint64At(0)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	require.NoError(t, h.Close())
}
