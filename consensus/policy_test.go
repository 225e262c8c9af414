package consensus_test

import (
	"testing"

	"github.com/raddi-network/entrystore/consensus"
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/proof"
	"github.com/stretchr/testify/require"
)

func TestOlder(t *testing.T) {
	require.True(t, consensus.Older(1, 2))
	require.False(t, consensus.Older(2, 1))
	require.False(t, consensus.Older(5, 5))
}

func TestSimpleStrategyIgnoresAnnouncementType(t *testing.T) {
	base := proof.Requirements{Complexity: consensus.ProofMinComplexity}
	require.Equal(t, base, consensus.SimpleStrategy(id.NotAnnouncement))
	require.Equal(t, base, consensus.SimpleStrategy(id.NewIdentityAnnouncement))
	require.Equal(t, base, consensus.SimpleStrategy(id.NewChannelAnnouncement))
}

func TestPerAnnouncementStrategyRaisesTheBar(t *testing.T) {
	plain := consensus.PerAnnouncementStrategy(id.NotAnnouncement)
	channel := consensus.PerAnnouncementStrategy(id.NewChannelAnnouncement)
	identity := consensus.PerAnnouncementStrategy(id.NewIdentityAnnouncement)

	require.Less(t, plain.Complexity, channel.Complexity)
	require.Less(t, channel.Complexity, identity.Complexity)
}

func TestDefaultPolicy(t *testing.T) {
	p := consensus.DefaultPolicy()
	require.NotNil(t, p.Now)
	require.NotNil(t, p.Requirements)
	require.EqualValues(t, consensus.DefaultMaxSkew, p.MaxSkew)
}
