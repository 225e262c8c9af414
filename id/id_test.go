package id_test

import (
	"bytes"
	"testing"

	"github.com/raddi-network/entrystore/id"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTrip(t *testing.T) {
	in := id.ID{
		Identity: id.Identity{Timestamp: 1000},
		Timestamp: 1005,
	}
	copy(in.Identity.Hash[:], []byte("0123456789abcdefghijklmnopq"))

	buf, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, id.Size)

	var out id.ID
	require.NoError(t, out.UnmarshalBinary(buf))
	require.Equal(t, in, out)
}

func TestNewIdentityHashesPublicKey(t *testing.T) {
	pub := bytes.Repeat([]byte{0xAA}, 32)

	a, err := id.NewIdentity(pub, 1000)
	require.NoError(t, err)
	require.EqualValues(t, 1000, a.Timestamp)

	b, err := id.NewIdentity(pub, 1000)
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := id.NewIdentity(bytes.Repeat([]byte{0xAB}, 32), 1000)
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, other.Hash)
}

func TestErasedSentinel(t *testing.T) {
	var z id.ID
	require.True(t, z.Erased())

	nz := id.ID{Timestamp: 1}
	require.False(t, nz.Erased())
}

func TestClassify(t *testing.T) {
	self := id.ID{Identity: id.Identity{Timestamp: 500}, Timestamp: 500}
	require.Equal(t, id.NewIdentityAnnouncement, id.Classify(self, self))

	channel := id.ID{Identity: id.Identity{Timestamp: 500}, Timestamp: 600}
	require.Equal(t, id.NewChannelAnnouncement, id.Classify(channel, channel))

	parent := id.ID{Identity: id.Identity{Timestamp: 500}, Timestamp: 700}
	child := id.ID{Identity: id.Identity{Timestamp: 500}, Timestamp: 800}
	require.Equal(t, id.NotAnnouncement, id.Classify(child, parent))
}

func TestLessIsStrictTotalOrder(t *testing.T) {
	a := id.ID{Identity: id.Identity{Timestamp: 1}, Timestamp: 1}
	b := id.ID{Identity: id.Identity{Timestamp: 1}, Timestamp: 2}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.False(t, a.Less(a))
}
