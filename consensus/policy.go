package consensus

import (
	"github.com/raddi-network/entrystore/id"
	"github.com/raddi-network/entrystore/proof"
)

// RequirementsStrategy computes the proof-of-work requirements an entry of
// the given announcement type must meet.
type RequirementsStrategy func(t id.AnnouncementType) proof.Requirements

// SimpleStrategy applies the same minimum requirements regardless of
// announcement type.
func SimpleStrategy(id.AnnouncementType) proof.Requirements {
	return proof.Requirements{Complexity: ProofMinComplexity}
}

// PerAnnouncementStrategy makes identity and channel announcements clear a
// higher complexity bar than ordinary entries, since they are rarer and
// more consequential.
func PerAnnouncementStrategy(t id.AnnouncementType) proof.Requirements {
	switch t {
	case id.NewIdentityAnnouncement:
		return proof.Requirements{Complexity: ProofMinComplexity + 14}
	case id.NewChannelAnnouncement:
		return proof.Requirements{Complexity: ProofMinComplexity + 13}
	default:
		return proof.Requirements{Complexity: ProofMinComplexity}
	}
}

// Policy bundles the knobs a table/shard needs from consensus: the clock,
// the future-skew tolerance, and the requirements strategy.
type Policy struct {
	Now          func() uint32
	MaxSkew      uint32
	Requirements RequirementsStrategy
}

// DefaultPolicy is the live configuration: the package clock, the default
// skew tolerance, and the simple (non-per-announcement) requirements
// strategy.
func DefaultPolicy() Policy {
	return Policy{
		Now:          Now,
		MaxSkew:      DefaultMaxSkew,
		Requirements: SimpleStrategy,
	}
}
