// Package shard implements the centerpiece of the store: a shard is a pair
// of files (index + content) fronted by an in-memory sorted cache,
// supporting lookup, insert, erase, enumerate and live split. Every
// operation ensures the files are open first (lazy open) and any failed
// content read force-closes the shard so the next access re-opens and
// re-reads.
package shard

import (
	"encoding/binary"
	"fmt"

	"github.com/raddi-network/entrystore/id"
)

// KeySize is the fixed, little-endian, packed on-disk size of a Key:
// id ‖ offset(u64) ‖ length(u32).
const KeySize = id.Size + 8 + 4

// Key is a shard's index row: an entry's id plus a locator into the
// content file.
type Key struct {
	ID     id.ID
	Offset uint64
	Length uint32
}

// Erased reports whether this is the all-zero erasure sentinel slot.
func (k Key) Erased() bool {
	return k.ID.Erased() && k.Offset == 0 && k.Length == 0
}

// Less orders keys for the sorted cache, delegating to id.ID's order so
// cache and persisted-after-sort sequence agree for binary search.
func (k Key) Less(o Key) bool {
	return k.ID.Less(o.ID)
}

// MarshalBinary encodes a Key in its fixed wire layout.
func (k Key) MarshalBinary() ([]byte, error) {
	idBytes, err := k.ID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, KeySize)
	copy(buf, idBytes)
	binary.LittleEndian.PutUint64(buf[id.Size:id.Size+8], k.Offset)
	binary.LittleEndian.PutUint32(buf[id.Size+8:KeySize], k.Length)
	return buf, nil
}

// UnmarshalBinary decodes a Key from its fixed wire layout.
func (k *Key) UnmarshalBinary(buf []byte) error {
	if len(buf) < KeySize {
		return fmt.Errorf("shard: short key buffer: need %d, got %d", KeySize, len(buf))
	}
	if err := k.ID.UnmarshalBinary(buf[:id.Size]); err != nil {
		return err
	}
	k.Offset = binary.LittleEndian.Uint64(buf[id.Size : id.Size+8])
	k.Length = binary.LittleEndian.Uint32(buf[id.Size+8 : KeySize])
	return nil
}
