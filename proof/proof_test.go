package proof_test

import (
	"sync/atomic"
	"testing"

	"github.com/raddi-network/entrystore/proof"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	state := proof.NewPrehashState()
	state.Write([]byte("some entry bytes preceding the trailer"))

	p, ok := proof.Generate(state, proof.MaxLen, proof.Requirements{Complexity: 4}, nil)
	require.True(t, ok)
	require.True(t, len(p) >= proof.MinLen)
	require.Zero(t, len(p)%2)

	verifyState := proof.NewPrehashState()
	verifyState.Write([]byte("some entry bytes preceding the trailer"))
	require.True(t, proof.Verify(verifyState, p, 4))
}

func TestVerifyRejectsWrongComplexity(t *testing.T) {
	state := proof.NewPrehashState()
	state.Write([]byte("content"))

	p, ok := proof.Generate(state, proof.MaxLen, proof.Requirements{Complexity: 3}, nil)
	require.True(t, ok)

	verifyState := proof.NewPrehashState()
	verifyState.Write([]byte("content"))
	require.False(t, proof.Verify(verifyState, p, 40))
}

func TestLocateFindsTrailer(t *testing.T) {
	state := proof.NewPrehashState()
	prefix := []byte("prefix content here")
	state.Write(prefix)

	p, ok := proof.Generate(state, proof.MaxLen, proof.Requirements{Complexity: 4}, nil)
	require.True(t, ok)

	full := append(append([]byte{}, prefix...), p...)
	located, rest, ok := proof.Locate(full)
	require.True(t, ok)
	require.Equal(t, []byte(p), []byte(located))
	require.Equal(t, prefix, rest)
}

func TestLocateRejectsGarbage(t *testing.T) {
	_, _, ok := proof.Locate([]byte("too short"))
	require.False(t, ok)
}

func TestGenerateCancellation(t *testing.T) {
	state := proof.NewPrehashState()
	state.Write([]byte("x"))

	var cancel atomic.Bool
	cancel.Store(true)

	_, ok := proof.Generate(state, proof.MaxLen, proof.Requirements{Complexity: 255}, &cancel)
	require.False(t, ok)
}

func TestForkDoesNotMutateReceiver(t *testing.T) {
	state := proof.NewPrehashState()
	state.Write([]byte("abc"))
	before := state.Sum()

	_, _ = proof.Generate(state, proof.MaxLen, proof.Requirements{Complexity: 1}, nil)

	after := state.Sum()
	require.Equal(t, before, after)
}
