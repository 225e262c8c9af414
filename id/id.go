// Package id defines the entry identifier scheme: a sortable (identity,
// timestamp) pair used both as an entry's own id and as its parent
// reference.
package id

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// HashSize is the length of an identity's hashed public key.
	HashSize = 28

	// IdentitySize is the on-disk size of an Identity (hash ‖ timestamp).
	IdentitySize = HashSize + 4

	// Size is the on-disk size of an ID (identity ‖ own timestamp). The
	// identity hash, the identity's timestamp and the entry's own timestamp
	// are all independently addressable, so the layout is 28+4+4=36.
	Size = IdentitySize + 4
)

// Identity is the creator of an entry: a hashed public key plus the
// timestamp at which that identity was announced.
type Identity struct {
	Hash      [HashSize]byte
	Timestamp uint32
}

// NewIdentity derives an Identity from a 32-byte public key and the
// timestamp of its announcement. The key is compressed to HashSize bytes
// with BLAKE2b so the full pair fits the fixed id layout; lookups by
// public key recompute the hash rather than store the key.
func NewIdentity(pub []byte, timestamp uint32) (Identity, error) {
	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		return Identity{}, err
	}
	h.Write(pub)

	var out Identity
	copy(out.Hash[:], h.Sum(nil))
	out.Timestamp = timestamp
	return out, nil
}

// ID uniquely identifies an entry: its creating identity plus the entry's
// own timestamp.
type ID struct {
	Identity  Identity
	Timestamp uint32
}

// Zero is the erased-entry sentinel: an all-zero id.
var Zero ID

// Erased reports whether id is the all-zero erasure sentinel.
func (i ID) Erased() bool {
	return i == Zero
}

// Equal reports whether two ids are identical.
func (i ID) Equal(o ID) bool {
	return i == o
}

// Less orders ids for the shard's sorted cache: by identity hash, then
// identity timestamp, then own timestamp. This is an arbitrary but total
// and stable order; it need not match temporal order (see consensus.Older
// for that).
func (i ID) Less(o ID) bool {
	if c := bytes.Compare(i.Identity.Hash[:], o.Identity.Hash[:]); c != 0 {
		return c < 0
	}
	if i.Identity.Timestamp != o.Identity.Timestamp {
		return i.Identity.Timestamp < o.Identity.Timestamp
	}
	return i.Timestamp < o.Timestamp
}

// MarshalBinary encodes the id in its fixed little-endian wire layout.
func (i ID) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	copy(buf[:HashSize], i.Identity.Hash[:])
	binary.LittleEndian.PutUint32(buf[HashSize:HashSize+4], i.Identity.Timestamp)
	binary.LittleEndian.PutUint32(buf[IdentitySize:Size], i.Timestamp)
	return buf, nil
}

// UnmarshalBinary decodes an id from its fixed little-endian wire layout.
func (i *ID) UnmarshalBinary(buf []byte) error {
	if len(buf) < Size {
		return fmt.Errorf("id: short buffer: need %d, got %d", Size, len(buf))
	}
	copy(i.Identity.Hash[:], buf[:HashSize])
	i.Identity.Timestamp = binary.LittleEndian.Uint32(buf[HashSize : HashSize+4])
	i.Timestamp = binary.LittleEndian.Uint32(buf[IdentitySize:Size])
	return nil
}

// AnnouncementType classifies an entry by comparing its id and parent.
type AnnouncementType int

const (
	// NotAnnouncement is an ordinary entry: id != parent.
	NotAnnouncement AnnouncementType = iota
	// NewIdentityAnnouncement introduces a new identity: id == parent and
	// the id's own timestamp equals its identity's timestamp.
	NewIdentityAnnouncement
	// NewChannelAnnouncement introduces a new channel: id == parent but the
	// id's own timestamp differs from its identity's timestamp.
	NewChannelAnnouncement
)

func (t AnnouncementType) String() string {
	switch t {
	case NewIdentityAnnouncement:
		return "new_identity_announcement"
	case NewChannelAnnouncement:
		return "new_channel_announcement"
	default:
		return "not_an_announcement"
	}
}

// Classify infers an entry's announcement type from its id and parent.
func Classify(self, parent ID) AnnouncementType {
	if !self.Equal(parent) {
		return NotAnnouncement
	}
	if self.Timestamp == self.Identity.Timestamp {
		return NewIdentityAnnouncement
	}
	return NewChannelAnnouncement
}
