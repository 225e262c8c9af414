// Package consensus bakes in the compile-time constants and the small
// pluggable policies (clock, requirements strategy, log-kind codes) that the
// rest of the store treats as consensus-defined.
package consensus

import (
	"time"

	"github.com/raddi-network/entrystore/proof"
)

const (
	// MaxAge is the furthest in the past an entry's timestamp may be,
	// relative to now: 2^30 seconds, about 34 years.
	MaxAge uint32 = 1 << 30

	// DefaultMaxSkew is the default future-tolerance window. Named
	// "default" because, unlike MaxAge, deployments may tune it; callers
	// override it via Policy.MaxSkew.
	DefaultMaxSkew uint32 = 10 * 60

	// MaxContentSize caps the post-header bytes of an entry, including the
	// trailing proof.
	MaxContentSize = 1 << 16
)

// ProofMinLen, ProofMaxLen and ProofMinComplexity alias the proof package's
// constants so consensus code can name them alongside the other bounds; the
// canonical definitions live in package proof so that package has no
// dependency on consensus.
const (
	ProofMinLen        = proof.MinLen
	ProofMaxLen        = proof.MaxLen
	ProofMinComplexity = proof.MinComplexity
)

// Now returns the consensus clock: seconds since the Unix epoch. It is a
// variable, not a fixed function, so tests can inject a fixed or moving
// clock.
var Now func() uint32 = func() uint32 {
	return uint32(time.Now().Unix())
}

// Older implements the consensus total order used for all timestamp
// comparisons: "t1 is older than t2" iff t1 < t2 on the fixed epoch. It is
// named separately from plain "<" because callers should route all
// consensus timestamp comparisons through one place.
func Older(t1, t2 uint32) bool {
	return t1 < t2
}

// Log kind codes. Validator and signature failures log the code of the
// exact check that rejected them, so rejected traffic stays attributable
// from logs alone. Two failures log no code: a buffer too short for the
// header plus a minimal proof, and content with no locatable proof trailer.
const (
	CodeReinsertionMismatch = 0x07
	CodeParentNewerThanID   = 0x10
	CodeIdentityNewerThanID = 0x11
	CodeParentIdentityNewer = 0x12
	CodeTooOld              = 0x13
	CodeTooFarInFuture      = 0x14
	CodeIdentityTooSmall    = 0x18
	CodeChannelTooSmall     = 0x19
	CodeContentTooSmall     = 0x1A
	CodeSignatureMismatch   = 0x1E
	CodeProofInvalid        = 0x1F
)
