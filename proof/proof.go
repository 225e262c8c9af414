// Package proof implements the proof-of-work trailer: a variable-length,
// NUL-terminated blob appended to an entry's content, self-validating so
// that it can be located by scanning candidate suffix lengths, and checked
// against a target digest complexity derived from an incremental prehash
// of the rest of the entry.
package proof

import (
	"crypto/sha512"
	"encoding"
	"encoding/binary"
	"hash"
	"sync/atomic"

	"github.com/raddi-network/entrystore/internal/metrics"
)

// marker is XORed into the length field so that arbitrary entry content is
// unlikely to be mistaken for a proof trailer when Locate scans backwards
// from the end of content for a self-validating suffix.
const marker = 0xA5A5

// MinLen and MaxLen bound the proof trailer's length in bytes; both must
// be even.
const (
	MinLen = 18
	MaxLen = 2048
)

// MinComplexity is the baseline minimum leading-zero-bit target;
// consensus.Policy strategies build on top of it.
const MinComplexity uint8 = 8

// Requirements controls how hard Generate must search: the minimum number
// of leading zero bits a candidate's digest must have.
type Requirements struct {
	Complexity uint8
}

// Proof is a located, structurally valid proof-of-work trailer.
type Proof []byte

// looksValid checks the structural, hash-independent shape of a candidate
// trailer: even length within bounds, NUL-terminated, and carrying the
// length marker in its first two bytes. Locate runs this while scanning
// content for the proof boundary, before any hashing.
func looksValid(p []byte, minLen, maxLen int) bool {
	n := len(p)
	if n < minLen || n > maxLen || n%2 != 0 {
		return false
	}
	if p[n-1] != 0 {
		return false
	}
	if len(p) < 2 {
		return false
	}
	return binary.BigEndian.Uint16(p[:2]) == uint16(n)^marker
}

// PrehashState is an incremental hash over the fields the signature
// scheme composes in a fixed order ahead of the proof trailer: the parent
// entry's bytes, this entry's id, its parent reference, and its content
// sans proof. SHA-512 is the prehash function Ed25519ph specifies.
type PrehashState struct {
	h hash.Hash
}

// NewPrehashState starts a fresh incremental hash.
func NewPrehashState() *PrehashState {
	return &PrehashState{h: sha512.New()}
}

// Write feeds bytes into the hash in the order the caller determines.
func (s *PrehashState) Write(b []byte) {
	s.h.Write(b)
}

// Sum finalizes and returns the current digest without disturbing further
// Write calls (hash.Hash.Sum is specified not to mutate the receiver).
func (s *PrehashState) Sum() []byte {
	return s.h.Sum(nil)
}

// fork clones the current hash state so a candidate can be hashed without
// mutating the shared prefix, and without re-hashing the (potentially
// large) prehash prefix for every candidate. crypto/sha512's digest type
// implements encoding.BinaryMarshaler/Unmarshaler, which is the idiomatic
// stdlib way to snapshot hash.Hash state.
func (s *PrehashState) fork() hash.Hash {
	marshaler, ok := s.h.(encoding.BinaryMarshaler)
	if !ok {
		// Unreachable for crypto/sha512, kept as a defensive fallback.
		clone := sha512.New()
		return clone
	}
	data, err := marshaler.MarshalBinary()
	if err != nil {
		return sha512.New()
	}
	clone := sha512.New()
	if unmarshaler, ok := clone.(encoding.BinaryUnmarshaler); ok {
		_ = unmarshaler.UnmarshalBinary(data)
	}
	return clone
}

// forkSum hashes extra onto a private copy of the current state and
// returns the resulting digest, leaving the receiver untouched.
func (s *PrehashState) forkSum(extra []byte) []byte {
	clone := s.fork()
	clone.Write(extra)
	return clone.Sum(nil)
}

// leadingZeroBits counts the number of leading zero bits in digest.
func leadingZeroBits(digest []byte) int {
	n := 0
	for _, b := range digest {
		if b == 0 {
			n += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return n
			}
			n++
		}
	}
	return n
}

// buildCandidate writes a structurally-valid-shaped candidate of the given
// even length, with nonce in its counter bytes.
func buildCandidate(length int, nonce uint64) []byte {
	buf := make([]byte, length)
	binary.BigEndian.PutUint16(buf[:2], uint16(length)^marker)
	// Nonce occupies the bytes between the marker and the trailing NUL.
	nonceBuf := buf[2 : length-1]
	for i := range nonceBuf {
		nonceBuf[i] = 0
	}
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, nonce)
	copy(nonceBuf, tmp)
	buf[length-1] = 0
	return buf
}

// attemptsPerLength bounds how many nonces are tried at a given candidate
// length before the search grows the trailer by 2 bytes (more nonce room).
const attemptsPerLength = 1 << 20

// cancelCheckInterval is how often Generate polls the cancel flag.
const cancelCheckInterval = 4096

// Generate searches for a proof-of-work trailer whose digest (prehash state
// plus the candidate trailer bytes) has at least reqs.Complexity leading
// zero bits. maxLen bounds the trailer size (consensus.MaxContentSize minus
// content already written). cancel, if non-nil, aborts the search promptly
// Returns (nil, false) if no trailer was found within the length budget.
func Generate(state *PrehashState, maxLen int, reqs Requirements, cancel *atomic.Bool) (Proof, bool) {
	minLen, limit := MinLen, MaxLen
	if maxLen < limit {
		limit = maxLen
	}
	var nonce uint64
	for length := minLen; length <= limit; length += 2 {
		for attempt := 0; attempt < attemptsPerLength; attempt++ {
			if attempt%cancelCheckInterval == 0 && cancel != nil && cancel.Load() {
				return nil, false
			}
			candidate := buildCandidate(length, nonce)
			nonce++
			digest := state.forkSum(candidate)
			metrics.ProofAttempts.Inc()
			if leadingZeroBits(digest) >= int(reqs.Complexity) {
				return Proof(candidate), true
			}
		}
	}
	return nil, false
}

// Locate scans content from the end for the proof trailer, trying even
// lengths upward from MinLen, returning the trailer and the content with
// the trailer stripped.
func Locate(content []byte) (Proof, []byte, bool) {
	for length := MinLen; length <= MaxLen && length <= len(content); length += 2 {
		candidate := content[len(content)-length:]
		if looksValid(candidate, MinLen, MaxLen) {
			return Proof(candidate), content[:len(content)-length], true
		}
	}
	return nil, nil, false
}

// Verify checks a located proof's digest complexity against the prehash
// state built from everything preceding it.
func Verify(state *PrehashState, p Proof, required uint8) bool {
	if !looksValid(p, MinLen, MaxLen) {
		return false
	}
	digest := state.forkSum(p)
	return leadingZeroBits(digest) >= int(required)
}
