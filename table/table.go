// Package table implements a thin, directory-owning collection of shards
// for one key-record shape, routing inbound entries by timestamp and
// triggering size-based splits.
package table

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/raddi-network/entrystore/consensus"
	"github.com/raddi-network/entrystore/entry"
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/internal/rlog"
	"github.com/raddi-network/entrystore/shard"
	"github.com/raddi-network/entrystore/workpool"
	"go.uber.org/multierr"
)

const component = "table"

// Table owns a directory of shard files for one key-record shape,
// ordered by base timestamp, and routes operations to the shard covering
// a given entry's timestamp.
type Table struct {
	dir string
	cfg config

	mu     sync.RWMutex
	shards []*shard.Shard // kept sorted by Base()
}

// Open reconciles the table's shard set with whatever is already on disk
// under dbPath/name, creating the directory if it does not exist.
func Open(dbPath, name string, opts ...Option) (*Table, error) {
	cfg := config{
		maximumActiveShards:   defaultMaximumActiveShards,
		minimumActiveShards:   defaultMinimumActiveShards,
		maximumShardSize:      defaultMaxShardSize,
		forwardGranularity:    defaultForwardGranularity,
		reinsertionValidation: defaultReinsertionValidation,
		policy:                consensus.DefaultPolicy(),
	}
	cfg.apply(opts)

	dir := filepath.Join(dbPath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("table: create directory: %w", err)
	}

	t := &Table{dir: dir, cfg: cfg}
	if err := t.reconcile(); err != nil {
		return nil, err
	}
	return t, nil
}

// reconcile scans the directory for shard index files (named %08x, with
// no trailing "d") and instantiates an unopened shard.Shard per base
// timestamp found. Temp split files (~<microtimestamp> /
// d~<microtimestamp>) orphaned by a crash mid-split are deleted; anything
// else unrecognized is skipped. Shards open lazily on first use.
func (t *Table) reconcile() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("table: scan directory: %w", err)
	}

	var bases []uint32
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.Contains(name, "~") {
			if err := os.Remove(filepath.Join(t.dir, name)); err != nil {
				rlog.IO(component, "remove-orphaned-temp", err)
			}
			continue
		}
		if len(name) != 8 {
			continue // not a bare %08x index file (content files are 9: %08xd)
		}
		v, err := strconv.ParseUint(name, 16, 32)
		if err != nil {
			rlog.IO(component, "reconcile-scan", errBadShardFileName{name: name})
			continue
		}
		bases = append(bases, uint32(v))
	}

	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })

	shards := make([]*shard.Shard, 0, len(bases))
	for _, base := range bases {
		shards = append(shards, shard.New(base))
	}

	t.mu.Lock()
	t.shards = shards
	t.mu.Unlock()
	return nil
}

// shard.Context implementation. Table never imports package shard's
// Context type by name elsewhere; shard depends on this interface, not
// the reverse, so there is no import cycle.

func (t *Table) Dir() string                 { return t.dir }
func (t *Table) ReadOnly() bool              { return t.cfg.readOnly }
func (t *Table) MaxShardSize() uint64        { return t.cfg.maximumShardSize }
func (t *Table) ForwardGranularity() uint32  { return t.cfg.forwardGranularity }
func (t *Table) ReinsertionValidation() bool { return t.cfg.reinsertionValidation }
func (t *Table) Policy() consensus.Policy    { return t.cfg.policy }

// shardIndexLocked returns the index into t.shards of the shard covering
// ts: the last shard whose base is <= ts. Returns -1 if ts is before
// every known shard's base (including when there are no shards yet).
func (t *Table) shardIndexLocked(ts uint32) int {
	i := sort.Search(len(t.shards), func(i int) bool { return t.shards[i].Base() > ts })
	if i == 0 {
		return -1
	}
	return i - 1
}

// routeForWrite finds the shard covering ts, creating one with base=ts if
// none does.
func (t *Table) routeForWrite(ts uint32) *shard.Shard {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.shardIndexLocked(ts); i >= 0 {
		return t.shards[i]
	}

	s := shard.New(ts)
	t.shards = append(t.shards, nil)
	copy(t.shards[1:], t.shards)
	t.shards[0] = s
	return s
}

// routeForRead finds the shard covering ts without creating one.
func (t *Table) routeForRead(ts uint32) (*shard.Shard, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.shardIndexLocked(ts)
	if i < 0 {
		return nil, false
	}
	return t.shards[i], true
}

// Insert routes entryBytes to the shard covering its id's timestamp,
// inserts it, and evaluates the size-triggered split policy afterward.
// top is the caller's provenance root; opaque here, as in shard.Insert.
func (t *Table) Insert(entryBytes []byte, top id.ID) (existed bool, ok bool, err error) {
	if t.cfg.readOnly {
		return false, false, ErrReadOnly
	}

	var e entry.Entry
	if err := e.UnmarshalBinary(entryBytes); err != nil {
		return false, false, fmt.Errorf("table: decode entry: %w", err)
	}

	s := t.routeForWrite(e.ID.Timestamp)
	existed, ok = s.Insert(t, entryBytes, top)
	if ok && !existed {
		t.maybeSplit(s)
	}
	return existed, ok, nil
}

// maybeSplit is the size-threshold split policy: once a shard's on-disk
// size reaches the configured maximum, it is cut at the current consensus
// time, so everything inserted from now on lands in a fresh shard while
// the oversized one stops growing.
func (t *Table) maybeSplit(s *shard.Shard) {
	size, open := s.DiskSize()
	if !open || uint64(size) < t.cfg.maximumShardSize {
		return
	}

	now := t.cfg.policy.Now()
	if now <= s.Base() {
		return // nothing to cut yet; base is "now" or later
	}

	separated, err := s.Split(t, now)
	if err != nil {
		rlog.IO(component, "split", err)
		return
	}
	t.adopt(separated)
}

// adopt inserts a shard (typically the product of a split) into the
// table's ordered set, keeping it sorted by base. Exported via Split so
// maintenance tools that force a split outside of maybeSplit's automatic
// path (cmd/raddi-shard-tool) can register the result the same way.
func (t *Table) adopt(s *shard.Shard) {
	t.mu.Lock()
	defer t.mu.Unlock()
	base := s.Base()
	i := sort.Search(len(t.shards), func(i int) bool { return t.shards[i].Base() >= base })
	t.shards = append(t.shards, nil)
	copy(t.shards[i+1:], t.shards[i:])
	t.shards[i] = s
}

// Split forces a split of the shard whose base timestamp equals base, at
// cut, and registers the resulting shard in the table's ordered set. For
// maintenance use (cmd/raddi-shard-tool); the automatic size-triggered
// policy uses maybeSplit/adopt internally instead.
func (t *Table) Split(base, cut uint32) (*shard.Shard, error) {
	t.mu.RLock()
	var target *shard.Shard
	for _, s := range t.shards {
		if s.Base() == base {
			target = s
			break
		}
	}
	t.mu.RUnlock()

	if target == nil {
		return nil, ErrShardNotFound
	}

	separated, err := target.Split(t, cut)
	if err != nil {
		return nil, err
	}
	t.adopt(separated)
	return separated, nil
}

// Erase routes to the shard covering timestamp and erases target there.
func (t *Table) Erase(timestamp uint32, target id.ID, thorough bool) bool {
	s, found := t.routeForRead(timestamp)
	if !found {
		return false
	}
	return s.Erase(t, target, thorough)
}

// Get routes to the shard covering timestamp and reads target there.
func (t *Table) Get(timestamp uint32, target id.ID, what shard.ReadWhat, demand int) ([]byte, bool) {
	s, found := t.routeForRead(timestamp)
	if !found {
		return nil, false
	}
	return s.Read(t, target, what, demand)
}

// Enumerate visits every shard in ascending base order, and within each
// shard every row in ascending id order.
func (t *Table) Enumerate(cb func(shard.Key, []byte) bool) {
	t.mu.RLock()
	snapshot := append([]*shard.Shard(nil), t.shards...)
	t.mu.RUnlock()

	for _, s := range snapshot {
		s.Enumerate(t, cb)
	}
}

// Shards returns a snapshot of the table's shards in ascending base
// order, for maintenance tooling (cmd/raddi-shard-tool).
func (t *Table) Shards() []*shard.Shard {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*shard.Shard(nil), t.shards...)
}

// Flush flushes every open shard in parallel, joining before return and
// aggregating any errors.
func (t *Table) Flush() error {
	t.mu.RLock()
	snapshot := append([]*shard.Shard(nil), t.shards...)
	t.mu.RUnlock()

	var errMu sync.Mutex
	var errs error

	pool := workpool.Begin(len(snapshot))
	for _, s := range snapshot {
		s := s
		pool.Dispatch(func() error {
			if err := s.Flush(); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	if err := pool.Join(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Close closes every shard. The table itself holds no other resources.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.shards {
		s.Close()
	}
	return nil
}
