package shard

import (
	"bytes"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/raddi-network/entrystore/consensus"
	"github.com/raddi-network/entrystore/entry"
	"github.com/raddi-network/entrystore/filehandle"
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/internal/metrics"
	"github.com/raddi-network/entrystore/internal/rlog"
	"github.com/raddi-network/entrystore/proof"
)

const component = "shard"

// minReserveBytes is the floor the write-open reserve heuristic clamps
// to, in bytes worth of Keys; the age-halving division bottoms out at
// zero for very old shards without it.
const minReserveBytes = 4096

// Shard owns a paired index+content file and the sorted in-memory cache
// built from it. All exported methods take the shard's lock themselves;
// callers never see lock state.
type Shard struct {
	mu sync.RWMutex

	base uint32

	index   *filehandle.Handle
	content *filehandle.Handle

	cache      []Key
	everOpened bool
	accessed   uint32
}

// New constructs a shard covering [base, ...) that has not yet been
// opened on disk; Advance (called implicitly by every operation) performs
// the lazy open.
func New(base uint32) *Shard {
	return &Shard{base: base}
}

// Base returns the shard's base timestamp.
func (s *Shard) Base() uint32 {
	return s.base
}

func (s *Shard) indexPath(ctx Context) string {
	return filepath.Join(ctx.Dir(), fmt.Sprintf("%08x", s.base))
}

func (s *Shard) contentPath(ctx Context) string {
	return s.indexPath(ctx) + "d"
}

// Advance performs the lazy open: if the files are not open, open them
// (read-only or read-write per ctx.ReadOnly) and rebuild the cache. A
// no-op if already open.
func (s *Shard) Advance(ctx Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx)
}

func (s *Shard) advanceLocked(ctx Context) bool {
	if s.index != nil && s.content != nil {
		return true
	}

	accessMode := filehandle.AccessRead
	openMode := filehandle.ModeOpen
	if !ctx.ReadOnly() {
		accessMode = filehandle.AccessWrite
		openMode = filehandle.ModeAlways
	}

	idx, err := filehandle.Open(s.indexPath(ctx), openMode, accessMode, filehandle.ShareFull, filehandle.BufferRandom)
	if err != nil {
		rlog.IO(component, "open-index", err)
		return false
	}
	cnt, err := filehandle.Open(s.contentPath(ctx), openMode, accessMode, filehandle.ShareFull, filehandle.BufferSequential)
	if err != nil {
		idx.Close()
		rlog.IO(component, "open-content", err)
		return false
	}

	s.index = idx
	s.content = cnt

	if !s.loadCacheLocked(ctx) {
		s.unsynchronizedCloseLocked()
		return false
	}

	s.everOpened = true
	metrics.ShardOpened.Inc()
	metrics.OpenShards.Inc()
	return true
}

// loadCacheLocked rebuilds the sorted cache from the index file's current
// contents: read every Key-sized record, drop erased (all-zero) slots,
// and sort by id. First-time open and reopen-after-close converge on the
// same sorted, erased-filtered cache, so one implementation serves both.
func (s *Shard) loadCacheLocked(ctx Context) bool {
	size, err := s.index.Size()
	if err != nil {
		rlog.IO(component, "stat-index", err)
		return false
	}

	count := int(size) / KeySize
	reserve := reserveCount(ctx, s.base)
	if reserve > count {
		reserve = count
	}
	cache := make([]Key, 0, reserve)

	buf := make([]byte, KeySize)
	for off := int64(0); off+int64(KeySize) <= size; off += int64(KeySize) {
		if _, err := s.index.ReadAt(off, buf); err != nil {
			rlog.IO(component, "read-index", err)
			return false
		}
		var k Key
		if err := k.UnmarshalBinary(buf); err != nil {
			rlog.IO(component, "decode-index", err)
			return false
		}
		if k.Erased() {
			continue
		}
		cache = append(cache, k)
	}

	sort.Slice(cache, func(i, j int) bool { return cache[i].Less(cache[j]) })
	s.cache = cache
	metrics.CacheSize.Set(float64(len(s.cache)))
	return true
}

// reserveCount is the write-open reserve heuristic: reserve =
// maxShardSize >> floor(log2(ageFactor)), ageFactor =
// (now-base)/forwardGranularity, clamped to >= minReserveBytes worth of
// Keys. Older shards see less new traffic and get a smaller reserve.
func reserveCount(ctx Context, base uint32) int {
	maxSize := ctx.MaxShardSize()
	granularity := ctx.ForwardGranularity()
	if granularity == 0 {
		granularity = 1
	}

	now := ctx.Policy().Now()
	var ageFactor uint32
	if now > base {
		ageFactor = (now - base) / granularity
	}

	shift := 0
	if ageFactor > 1 {
		shift = bits.Len32(ageFactor) - 1
	}

	reserveBytes := maxSize >> uint(shift)
	if reserveBytes < minReserveBytes {
		reserveBytes = minReserveBytes
	}
	return int(reserveBytes) / KeySize
}

// unsynchronizedCloseLocked closes both files without touching the cache
// invariant beyond clearing it; the caller holds the exclusive lock.
func (s *Shard) unsynchronizedCloseLocked() {
	wasOpen := s.index != nil || s.content != nil
	if s.content != nil {
		s.content.Close()
		s.content = nil
	}
	if s.index != nil {
		s.index.Close()
		s.index = nil
	}
	s.cache = nil
	metrics.ShardClosed.Inc()
	if wasOpen {
		metrics.OpenShards.Dec()
	}
}

// Close closes the shard's files and clears its cache. The next operation
// re-opens it.
func (s *Shard) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsynchronizedCloseLocked()
}

// Reload force-closes and immediately re-advances, reconciling the cache
// with whatever is now on disk.
func (s *Shard) Reload(ctx Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsynchronizedCloseLocked()
	return s.advanceLocked(ctx)
}

// Flush pushes buffered writes to the kernel without forcing fsync.
func (s *Shard) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil || s.content == nil {
		return nil
	}
	if err := s.index.Flush(); err != nil {
		return err
	}
	return s.content.Flush()
}

// Size returns the shard's entry count, 0 if the shard failed to open.
func (s *Shard) Size(ctx Context) int {
	if !s.Advance(ctx) {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Shard) findLocked(target id.ID) (int, bool) {
	i := sort.Search(len(s.cache), func(i int) bool { return !s.cache[i].ID.Less(target) })
	if i < len(s.cache) && s.cache[i].ID.Equal(target) {
		return i, true
	}
	return i, false
}

// Lookup returns the cache row for id, without touching the files.
func (s *Shard) Lookup(target id.ID) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.findLocked(target); ok {
		return s.cache[i], true
	}
	return Key{}, false
}

func (s *Shard) insertCacheLocked(k Key) {
	if len(s.cache) == 0 || s.cache[len(s.cache)-1].Less(k) {
		s.cache = append(s.cache, k)
	} else {
		i, _ := s.findLocked(k.ID)
		s.cache = append(s.cache, Key{})
		copy(s.cache[i+1:], s.cache[i:])
		s.cache[i] = k
	}
	metrics.CacheSize.Set(float64(len(s.cache)))
}

// Insert appends entryBytes, a fully encoded, already-validated-and-signed
// entry (entry.Entry.MarshalBinary output). top is the caller's provenance
// root, opaque to this store's minimal Key layout. Returns (existed, ok):
// existed reports whether an entry with this id was already present
// (including the duplicate-identical no-op case); ok reports whether the
// shard now contains it.
func (s *Shard) Insert(ctx Context, entryBytes []byte, top id.ID) (existed bool, ok bool) {
	_ = top

	if !s.Advance(ctx) {
		return false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var e entry.Entry
	if err := e.UnmarshalBinary(entryBytes); err != nil {
		return false, false
	}

	// prefix is everything after id+parent: signature ‖ payload ‖ proof
	// (the proof trails the payload inside Content). This, not the full
	// inserted buffer, is what the shard actually persists (the id lives
	// in the Key; parent is not stored on disk), so
	// reinsertion comparison is against this same slice for both rows.
	prefix := entryBytes[id.Size*2:]

	if i, found := s.findLocked(e.ID); found {
		if !ctx.ReinsertionValidation() {
			return true, true
		}
		existingBuf, readOK := s.readLocked(ctx, s.cache[i], ReadVerificationAndContent, 0)
		if readOK && bytes.Equal(existingBuf, prefix) {
			return true, true
		}
		rlog.Data(component, consensus.CodeReinsertionMismatch, "reinsertion mismatch for id with hash prefix %x", e.ID.Identity.Hash[:4])
		return true, false
	}

	cposition := s.content.Tell()
	if _, err := s.content.Write(prefix); err != nil {
		s.content.Resize(cposition)
		rlog.IO(component, "write-content", err)
		return false, false
	}

	k := Key{
		ID:     e.ID,
		Offset: uint64(cposition),
		Length: uint32(len(e.Content)),
	}
	kBytes, err := k.MarshalBinary()
	if err != nil {
		s.content.Resize(cposition)
		return false, false
	}

	ipos := s.index.Tell()
	if _, err := s.index.Write(kBytes); err != nil {
		s.content.Resize(cposition)
		s.index.Resize(ipos)
		rlog.IO(component, "write-index", err)
		return false, false
	}

	// Reads go straight to the file (ReadAt), bypassing the sequential
	// write buffer, so flush immediately: the round-trip invariant
	// requires get() to see an entry right after insert(), with no
	// separate flush step from the caller.
	if err := s.content.Flush(); err != nil {
		rlog.IO(component, "flush-content", err)
		return false, false
	}
	if err := s.index.Flush(); err != nil {
		rlog.IO(component, "flush-index", err)
		return false, false
	}

	s.insertCacheLocked(k)
	s.accessed = ctx.Policy().Now()
	metrics.Inserts.Inc()
	return false, true
}

// Erase binary-searches the cache for target, zeroes its index slot in
// place, optionally zeroes the content extent, and drops the row from
// the cache.
func (s *Shard) Erase(ctx Context, target id.ID, thorough bool) bool {
	if !s.Advance(ctx) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := s.findLocked(target)
	if !found {
		return false
	}
	k := s.cache[i]

	if thorough {
		if err := s.content.Zero(int64(k.Offset), int64(entry.SignatureSize)+int64(k.Length)); err != nil {
			rlog.IO(component, "zero-content", err)
		}
	}

	if err := s.zeroIndexSlotLocked(target); err != nil {
		rlog.IO(component, "zero-index", err)
	}

	s.cache = append(s.cache[:i], s.cache[i+1:]...)
	metrics.Erases.Inc()
	metrics.CacheSize.Set(float64(len(s.cache)))
	return true
}

// zeroIndexSlotLocked streams the index file looking for the physical
// record matching target and zeroes it in place. The cache is sorted by
// id but the file is append-order, so this cannot use the cache's
// position.
func (s *Shard) zeroIndexSlotLocked(target id.ID) error {
	size, err := s.index.Size()
	if err != nil {
		return err
	}
	buf := make([]byte, KeySize)
	for off := int64(0); off+int64(KeySize) <= size; off += int64(KeySize) {
		if _, err := s.index.ReadAt(off, buf); err != nil {
			return err
		}
		var k Key
		if err := k.UnmarshalBinary(buf); err != nil {
			return err
		}
		if k.Erased() {
			continue
		}
		if k.ID.Equal(target) {
			return s.index.Zero(off, int64(KeySize))
		}
	}
	return nil
}

// ReadWhat selects which parts of a stored entry Read materializes.
type ReadWhat int

const (
	ReadNothing ReadWhat = iota
	ReadIdentification
	ReadVerification
	ReadContent
	ReadIdentificationAndVerification
	ReadIdentificationAndContent
	ReadVerificationAndContent
	ReadEverything
)

// Read materializes the selected parts of the entry stored under target.
// demand == 0 means "entire content"; demand beyond the stored length is
// an internal error that force-closes the shard (treated as corruption).
func (s *Shard) Read(ctx Context, target id.ID, what ReadWhat, demand int) ([]byte, bool) {
	if !s.Advance(ctx) {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := s.findLocked(target)
	if !found {
		return nil, false
	}
	return s.readLocked(ctx, s.cache[i], what, demand)
}

func (s *Shard) readLocked(ctx Context, k Key, what ReadWhat, demand int) ([]byte, bool) {
	contentLen := int(k.Length)
	if demand == 0 {
		demand = contentLen
	} else if demand > contentLen {
		rlog.IO(component, "demand-exceeds-length", fmt.Errorf("demand %d > length %d", demand, contentLen))
		s.unsynchronizedCloseLocked()
		return nil, false
	}

	if what == ReadNothing {
		return nil, true
	}

	idBytes, err := k.ID.MarshalBinary()
	if err != nil {
		return nil, false
	}
	if what == ReadIdentification {
		return idBytes, true
	}

	// Every remaining shape needs at least the signature, and verification
	// additionally needs the proof suffix of the payload, so read the full
	// row (signature ‖ payload) once and slice from it.
	row := make([]byte, entry.SignatureSize+demand)
	if _, err := s.content.ReadAt(int64(k.Offset), row); err != nil {
		rlog.IO(component, "read-content", err)
		s.unsynchronizedCloseLocked()
		return nil, false
	}
	signature := row[:entry.SignatureSize]
	payload := row[entry.SignatureSize:]

	verification := func() []byte {
		p, _, ok := proof.Locate(payload)
		if !ok {
			return signature
		}
		return append(append([]byte{}, signature...), p...)
	}

	// The content shapes return the payload without its proof trailer;
	// the trailer belongs to the verification shape.
	content := func() []byte {
		if _, rest, ok := proof.Locate(payload); ok {
			return rest
		}
		return payload
	}

	switch what {
	case ReadVerification:
		return verification(), true

	case ReadContent:
		return content(), true

	case ReadIdentificationAndVerification:
		return append(append([]byte{}, idBytes...), verification()...), true

	case ReadIdentificationAndContent:
		return append(append([]byte{}, idBytes...), content()...), true

	case ReadVerificationAndContent:
		return row, true

	case ReadEverything:
		return append(append([]byte{}, idBytes...), row...), true
	}

	return nil, false
}

// Enumerate iterates the cache under read-lock, invoking cb(k, nil) for
// each row; if cb returns true, the full entry is read and cb(k, data) is
// invoked a second time.
func (s *Shard) Enumerate(ctx Context, cb func(Key, []byte) bool) {
	if !s.Advance(ctx) {
		return
	}

	s.mu.RLock()
	snapshot := append([]Key(nil), s.cache...)
	s.mu.RUnlock()

	for _, k := range snapshot {
		if !cb(k, nil) {
			continue
		}
		s.mu.Lock()
		data, ok := s.readLocked(ctx, k, ReadEverything, 0)
		s.mu.Unlock()
		if ok {
			cb(k, data)
		}
	}

	s.mu.Lock()
	s.accessed = ctx.Policy().Now()
	s.mu.Unlock()
}

// Accessed returns the shard's last-accessed timestamp. May be read
// racily by eviction heuristics; staleness is tolerated there.
func (s *Shard) Accessed() uint32 {
	return s.accessed
}

// DiskSize reports the combined size of the index and content files, used
// by the table's size-triggered split policy. Returns false if the shard
// is not open.
func (s *Shard) DiskSize() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil || s.content == nil {
		return 0, false
	}
	iSize, err := s.index.Size()
	if err != nil {
		return 0, false
	}
	cSize, err := s.content.Size()
	if err != nil {
		return 0, false
	}
	return iSize + cSize, true
}

// Split renames the current files aside, builds two fresh shards
// (remaining at base, separated at cut) by routing every non-erased row
// by id.timestamp, takes over remaining's state, and returns separated.
// The shard's exclusive lock is held for the entire duration.
func (s *Shard) Split(ctx Context, cut uint32) (*Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.advanceLocked(ctx) {
		return nil, fmt.Errorf("shard: advance failed before split")
	}
	if cut <= s.base {
		return nil, fmt.Errorf("shard: split point %d must be strictly after base %d", cut, s.base)
	}

	idxPath := s.indexPath(ctx)
	cntPath := s.contentPath(ctx)

	ts := time.Now().UnixMicro()
	tmpIdx := fmt.Sprintf("%s~%d", idxPath, ts)
	tmpCnt := fmt.Sprintf("%sd~%d", idxPath, ts)

	if err := s.index.Close(); err != nil {
		return nil, fmt.Errorf("shard: split close index: %w", err)
	}
	if err := s.content.Close(); err != nil {
		return nil, fmt.Errorf("shard: split close content: %w", err)
	}
	s.index, s.content = nil, nil

	if err := os.Rename(idxPath, tmpIdx); err != nil {
		return nil, fmt.Errorf("shard: split rename index: %w", err)
	}
	if err := os.Rename(cntPath, tmpCnt); err != nil {
		return nil, fmt.Errorf("shard: split rename content: %w", err)
	}

	oldIdx, err := filehandle.Open(tmpIdx, filehandle.ModeOpen, filehandle.AccessRead, filehandle.ShareFull, filehandle.BufferRandom)
	if err != nil {
		return nil, fmt.Errorf("shard: split reopen temp index: %w", err)
	}
	defer oldIdx.Close()

	oldCnt, err := filehandle.Open(tmpCnt, filehandle.ModeOpen, filehandle.AccessRead, filehandle.ShareFull, filehandle.BufferRandom)
	if err != nil {
		return nil, fmt.Errorf("shard: split reopen temp content: %w", err)
	}
	defer oldCnt.Close()

	remaining := New(s.base)
	separated := New(cut)
	if !remaining.advanceLocked(ctx) {
		return nil, fmt.Errorf("shard: split could not open remaining shard")
	}
	if !separated.advanceLocked(ctx) {
		return nil, fmt.Errorf("shard: split could not open separated shard")
	}

	size, err := oldIdx.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, KeySize)
	for off := int64(0); off+int64(KeySize) <= size; off += int64(KeySize) {
		if _, err := oldIdx.ReadAt(off, buf); err != nil {
			return nil, fmt.Errorf("shard: split read old index: %w", err)
		}
		var k Key
		if err := k.UnmarshalBinary(buf); err != nil {
			return nil, fmt.Errorf("shard: split decode old index: %w", err)
		}
		if k.Erased() {
			continue
		}

		row := make([]byte, int(entry.SignatureSize)+int(k.Length))
		if _, err := oldCnt.ReadAt(int64(k.Offset), row); err != nil {
			// Skip unreadable rows rather than aborting the whole split;
			// they were already unreadable before the split began.
			continue
		}

		dest := remaining
		if k.ID.Timestamp >= cut {
			dest = separated
		}
		if err := dest.rawInsertLocked(row, k.ID, k.Length); err != nil {
			return nil, fmt.Errorf("shard: split reinsert: %w", err)
		}
	}

	s.index = remaining.index
	s.content = remaining.content
	s.cache = remaining.cache
	s.everOpened = true
	s.accessed = ctx.Policy().Now()

	os.Remove(tmpIdx)
	os.Remove(tmpCnt)

	metrics.Splits.Inc()
	return separated, nil
}

// rawInsertLocked appends a pre-assembled signature‖content row directly
// to this (already-open) shard's files, used only by Split to move
// physical rows between the two halves without re-validating them.
func (s *Shard) rawInsertLocked(row []byte, rowID id.ID, length uint32) error {
	cposition := s.content.Tell()
	if _, err := s.content.Write(row); err != nil {
		s.content.Resize(cposition)
		return err
	}

	k := Key{ID: rowID, Offset: uint64(cposition), Length: length}
	kBytes, err := k.MarshalBinary()
	if err != nil {
		s.content.Resize(cposition)
		return err
	}
	ipos := s.index.Tell()
	if _, err := s.index.Write(kBytes); err != nil {
		s.content.Resize(cposition)
		s.index.Resize(ipos)
		return err
	}

	if err := s.content.Flush(); err != nil {
		return err
	}
	if err := s.index.Flush(); err != nil {
		return err
	}

	s.insertCacheLocked(k)
	return nil
}
