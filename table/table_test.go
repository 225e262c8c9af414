package table_test

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/raddi-network/entrystore/consensus"
	"github.com/raddi-network/entrystore/entry"
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/proof"
	"github.com/raddi-network/entrystore/shard"
	"github.com/raddi-network/entrystore/table"
	"github.com/stretchr/testify/require"
)

func fixedPolicy(now uint32) consensus.Policy {
	p := consensus.DefaultPolicy()
	p.Now = func() uint32 { return now }
	return p
}

func makeID(hashByte byte, identityTS, ts uint32) id.ID {
	var out id.ID
	for i := range out.Identity.Hash {
		out.Identity.Hash[i] = hashByte
	}
	out.Identity.Timestamp = identityTS
	out.Timestamp = ts
	return out
}

func signedEntry(t *testing.T, hashByte byte, identityTS, ts uint32, content string) ([]byte, id.ID) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	self := makeID(hashByte, identityTS, ts)
	e := &entry.Entry{ID: self, Parent: self, Content: []byte(content)}
	parent := &entry.Entry{ID: self, Parent: self}

	n, err := e.Sign(parent, priv, proof.Requirements{Complexity: 1}, 1<<16, nil)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	buf, err := e.MarshalBinary()
	require.NoError(t, err)
	return buf, self
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(dbPath, "messages")
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(dbPath, "messages"))
	require.Empty(t, tbl.Shards())
}

func TestInsertRoutesAndCreatesShard(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(dbPath, "messages", table.Policy(fixedPolicy(2_000_000)))
	require.NoError(t, err)

	buf, self := signedEntry(t, 1, 900, 1_000_001, "hi")
	existed, ok, err := tbl.Insert(buf, id.ID{})
	require.NoError(t, err)
	require.False(t, existed)
	require.True(t, ok)

	require.Len(t, tbl.Shards(), 1)

	got, found := tbl.Get(1_000_001, self, shard.ReadContent, 0)
	require.True(t, found)
	require.Equal(t, "hi", string(got))
}

func TestInsertsIntoExistingShardDoNotFragmentWithoutSplitTrigger(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(dbPath, "messages", table.Policy(fixedPolicy(3_000_000)))
	require.NoError(t, err)

	buf1, _ := signedEntry(t, 1, 900, 1_000_001, "a")
	_, ok, err := tbl.Insert(buf1, id.ID{})
	require.NoError(t, err)
	require.True(t, ok)

	// A later timestamp with no shard starting after it still routes to
	// the one covering shard: only the size-triggered split policy
	// creates new shards.
	buf2, _ := signedEntry(t, 2, 900, 2_000_001, "b")
	_, ok, err = tbl.Insert(buf2, id.ID{})
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, tbl.Shards(), 1)
	require.Equal(t, 2, tbl.Shards()[0].Size(tbl))
}

func TestReadOnlyTableRejectsInsert(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(dbPath, "messages", table.ReadOnly(true))
	require.NoError(t, err)

	buf, _ := signedEntry(t, 1, 900, 1_000_001, "hi")
	_, _, err = tbl.Insert(buf, id.ID{})
	require.ErrorIs(t, err, table.ErrReadOnly)
}

func TestReconcileFindsExistingShardFiles(t *testing.T) {
	dbPath := t.TempDir()
	dir := filepath.Join(dbPath, "messages")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000003e8"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000003e8d"), nil, 0o644))

	tbl, err := table.Open(dbPath, "messages")
	require.NoError(t, err)
	require.Len(t, tbl.Shards(), 1)
	require.EqualValues(t, 0x3e8, tbl.Shards()[0].Base())
}

func TestReconcileRemovesOrphanedTempFiles(t *testing.T) {
	dbPath := t.TempDir()
	dir := filepath.Join(dbPath, "messages")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000003e8~1234567"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000003e8d~1234567"), nil, 0o644))

	_, err := table.Open(dbPath, "messages")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "*~*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestEnumerateVisitsInBaseThenIDOrder(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(dbPath, "messages", table.Policy(fixedPolicy(5_000_000)))
	require.NoError(t, err)

	buf1, id1 := signedEntry(t, 1, 900, 1_000_001, "a")
	buf2, id2 := signedEntry(t, 2, 900, 2_000_001, "b")
	_, _, err = tbl.Insert(buf1, id.ID{})
	require.NoError(t, err)
	_, _, err = tbl.Insert(buf2, id.ID{})
	require.NoError(t, err)

	var seen []id.ID
	tbl.Enumerate(func(k shard.Key, data []byte) bool {
		seen = append(seen, k.ID)
		return false
	})
	require.Equal(t, []id.ID{id1, id2}, seen)
}

func TestSizeTriggeredSplit(t *testing.T) {
	dbPath := t.TempDir()
	tbl, err := table.Open(
		dbPath, "messages",
		table.Policy(fixedPolicy(2_000_000)), // well after the entry's timestamp, so there is room to cut
		table.MaximumShardSize(1),            // any non-empty shard exceeds this
	)
	require.NoError(t, err)

	buf, _ := signedEntry(t, 1, 900, 1_000_001, "hi")
	_, ok, err := tbl.Insert(buf, id.ID{})
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, tbl.Shards(), 2)
}
