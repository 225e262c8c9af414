// Package entry implements the signed, proof-of-work-backed wire record:
// its binary layout, timestamp and size validation, and the Ed25519ph-style
// sign/verify protocol built on package proof.
package entry

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"sync/atomic"

	"github.com/raddi-network/entrystore/consensus"
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/internal/rlog"
	"github.com/raddi-network/entrystore/proof"
)

const component = "entry"

const (
	// SignatureSize is the width of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// HeaderSize is id ‖ parent ‖ signature.
	HeaderSize = id.Size*2 + SignatureSize

	// MinProofSize mirrors proof.MinLen: no entry is smaller than its
	// header plus the smallest possible proof trailer.
	MinProofSize = proof.MinLen

	// MinIdentityAnnouncementSize and MinChannelAnnouncementSize are the
	// minimum payload sizes an announcement must carry beyond the proof
	// trailer: an identity announcement carries at least a key-material
	// record, a channel announcement at least a title prefix.
	MinIdentityAnnouncementSize = 8
	MinChannelAnnouncementSize  = 4
)

// Entry is a fully decoded signed record: header fields plus content
// (everything after the header, including the trailing proof).
type Entry struct {
	ID        id.ID
	Parent    id.ID
	Signature [SignatureSize]byte
	Content   []byte
}

// Size returns the entry's total encoded length.
func (e *Entry) Size() int {
	return HeaderSize + len(e.Content)
}

// MarshalBinary encodes the entry as id ‖ parent ‖ signature ‖ content.
func (e *Entry) MarshalBinary() ([]byte, error) {
	idBytes, err := e.ID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	parentBytes, err := e.Parent.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, e.Size())
	buf = append(buf, idBytes...)
	buf = append(buf, parentBytes...)
	buf = append(buf, e.Signature[:]...)
	buf = append(buf, e.Content...)
	return buf, nil
}

// UnmarshalBinary decodes an entry from its wire layout. It does not
// validate the entry; callers run Validate on inbound bytes before
// insertion.
func (e *Entry) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("entry: short buffer: need at least %d, got %d", HeaderSize, len(buf))
	}
	if err := e.ID.UnmarshalBinary(buf[:id.Size]); err != nil {
		return err
	}
	if err := e.Parent.UnmarshalBinary(buf[id.Size : id.Size*2]); err != nil {
		return err
	}
	copy(e.Signature[:], buf[id.Size*2:HeaderSize])
	e.Content = append([]byte(nil), buf[HeaderSize:]...)
	return nil
}

// IsAnnouncement reports the entry's announcement classification.
func (e *Entry) IsAnnouncement() id.AnnouncementType {
	return id.Classify(e.ID, e.Parent)
}

// Validate runs the timestamp-ordering, age, skew and size checks against
// the entry's decoded fields, using policy for the clock and skew
// tolerance. It logs a distinct consensus code per failing check and
// short-circuits on the first failure.
func Validate(e *Entry, policy consensus.Policy) bool {
	totalSize := HeaderSize + len(e.Content)

	// 1. total length covers the header plus a minimal proof. Unlike the
	// other checks this fails with no log call — a short buffer isn't
	// attributable to any single consensus code.
	if totalSize < HeaderSize+MinProofSize {
		return false
	}

	// 2. id.timestamp >= parent.timestamp
	if consensus.Older(e.ID.Timestamp, e.Parent.Timestamp) {
		rlog.Data(component, consensus.CodeParentNewerThanID, "parent newer than id")
		return false
	}

	// 3. id.timestamp >= id.identity.timestamp
	if consensus.Older(e.ID.Timestamp, e.ID.Identity.Timestamp) {
		rlog.Data(component, consensus.CodeIdentityNewerThanID, "identity newer than id")
		return false
	}

	// 4. parent.timestamp >= parent.identity.timestamp
	if consensus.Older(e.Parent.Timestamp, e.Parent.Identity.Timestamp) {
		rlog.Data(component, consensus.CodeParentIdentityNewer, "parent identity newer than parent")
		return false
	}

	now := policy.Now()

	// 5. id.timestamp >= now - MAX_AGE
	if now > consensus.MaxAge && consensus.Older(e.ID.Timestamp, now-consensus.MaxAge) {
		rlog.Data(component, consensus.CodeTooOld, "entry too old: ts=%d now=%d", e.ID.Timestamp, now)
		return false
	}

	// 6. id.timestamp <= now + MAX_SKEW
	if e.ID.Timestamp > now+policy.MaxSkew {
		rlog.Data(component, consensus.CodeTooFarInFuture, "entry too far in future: ts=%d now=%d", e.ID.Timestamp, now)
		return false
	}

	// 7. announcement minimums / non-announcement content requirement.
	// The minimums count payload bytes beyond the proof trailer, which
	// check 1 already reserved room for.
	switch e.IsAnnouncement() {
	case id.NewIdentityAnnouncement:
		if len(e.Content) < MinProofSize+MinIdentityAnnouncementSize {
			rlog.Data(component, consensus.CodeIdentityTooSmall, "identity announcement too small: %d", len(e.Content))
			return false
		}
	case id.NewChannelAnnouncement:
		if len(e.Content) < MinProofSize+MinChannelAnnouncementSize {
			rlog.Data(component, consensus.CodeChannelTooSmall, "channel announcement too small: %d", len(e.Content))
			return false
		}
	default:
		if len(e.Content) < MinProofSize+1 {
			rlog.Data(component, consensus.CodeContentTooSmall, "non-announcement entry has no content")
			return false
		}
	}

	return true
}

// prehash builds the incremental hash state over parentBytes ‖ id ‖
// parentRef ‖ contentWithoutProof, the fixed field order the signature
// scheme commits to.
func prehash(parentBytes []byte, selfID, parentRef id.ID, contentWithoutProof []byte) (*proof.PrehashState, error) {
	state := proof.NewPrehashState()
	state.Write(parentBytes)

	idBytes, err := selfID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	state.Write(idBytes)

	parentBytesRef, err := parentRef.MarshalBinary()
	if err != nil {
		return nil, err
	}
	state.Write(parentBytesRef)

	state.Write(contentWithoutProof)
	return state, nil
}

// Sign prehashes the entry's fields over parentEntry's encoded bytes,
// searches for a proof-of-work trailer meeting reqs, appends it to
// Content, and produces the final Ed25519 signature over the full prehash
// (content plus proof). Returns the proof length, or 0 on failure
// (cancelled or exhausted the length budget).
func (e *Entry) Sign(parentEntry *Entry, priv ed25519.PrivateKey, reqs proof.Requirements, maxContentSize int, cancel *atomic.Bool) (int, error) {
	parentBytes, err := parentEntry.MarshalBinary()
	if err != nil {
		return 0, err
	}

	state, err := prehash(parentBytes, e.ID, e.Parent, e.Content)
	if err != nil {
		return 0, err
	}

	budget := maxContentSize - len(e.Content)
	if budget < 0 {
		budget = 0
	}
	p, ok := proof.Generate(state, budget, reqs, cancel)
	if !ok {
		return 0, nil
	}

	e.Content = append(e.Content, p...)
	state.Write(p)

	digest := state.Sum()
	e.Signature = [SignatureSize]byte{}
	copy(e.Signature[:], ed25519.Sign(priv, digest))

	return len(p), nil
}

// Verify locates the proof trailer, rehashes everything but the proof,
// verifies the proof's complexity, feeds the proof bytes in, and checks
// the signature.
func (e *Entry) Verify(parentEntry *Entry, pub ed25519.PublicKey, required uint8) (bool, error) {
	p, contentWithoutProof, ok := proof.Locate(e.Content)
	if !ok {
		return false, nil
	}

	parentBytes, err := parentEntry.MarshalBinary()
	if err != nil {
		return false, err
	}

	state, err := prehash(parentBytes, e.ID, e.Parent, contentWithoutProof)
	if err != nil {
		return false, err
	}

	if !proof.Verify(state, p, required) {
		rlog.Data(component, consensus.CodeProofInvalid, "proof below required complexity")
		return false, nil
	}

	state.Write(p)
	digest := state.Sum()
	if !ed25519.Verify(pub, digest, e.Signature[:]) {
		rlog.Data(component, consensus.CodeSignatureMismatch, "signature mismatch")
		return false, nil
	}
	return true, nil
}

// Equal reports whether two entries are byte-for-byte identical, used by
// the shard's reinsertion-validation duplicate check.
func Equal(a, b *Entry) bool {
	if !a.ID.Equal(b.ID) || !a.Parent.Equal(b.Parent) || a.Signature != b.Signature {
		return false
	}
	return bytes.Equal(a.Content, b.Content)
}

// LengthPrefix is a convenience used by filehandle/shard code that needs
// to know how many bytes beyond the header a record of given total size
// occupies, mirroring K.data.length = size - sizeof(entry header).
func LengthPrefix(totalSize int) int {
	return totalSize - HeaderSize
}
