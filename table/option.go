package table

import (
	"github.com/raddi-network/entrystore/consensus"
)

// Defaults for the functional-option config.
const (
	defaultMaxShardSize          = uint64(64 << 20)
	defaultForwardGranularity    = uint32(3600)
	defaultMaximumActiveShards   = 64
	defaultMinimumActiveShards   = 4
	defaultReinsertionValidation = false
)

// config holds the table's recognized configuration, built up through
// Option at Open time.
type config struct {
	readOnly              bool
	maximumActiveShards   int
	minimumActiveShards   int
	maximumShardSize      uint64
	forwardGranularity    uint32
	reinsertionValidation bool
	policy                consensus.Policy
}

// Option configures a Table at Open time.
type Option func(*config)

func (c *config) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// ReadOnly sets the table's mode: read-only tables refuse writers and
// never create missing shard files.
func ReadOnly(readOnly bool) Option {
	return func(c *config) {
		c.readOnly = readOnly
	}
}

// MaximumActiveShards records the maximum number of shards to hold open
// concurrently. The table stores the value; no table or shard operation
// reads it, and no shard is closed because of it.
func MaximumActiveShards(n int) Option {
	return func(c *config) {
		c.maximumActiveShards = n
	}
}

// MinimumActiveShards records the minimum number of shards to keep open.
// The table stores the value; no table or shard operation reads it.
func MinimumActiveShards(n int) Option {
	return func(c *config) {
		c.minimumActiveShards = n
	}
}

// MaximumShardSize feeds the write-open reserve heuristic and the
// size-triggered split policy.
func MaximumShardSize(size uint64) Option {
	return func(c *config) {
		c.maximumShardSize = size
	}
}

// ForwardGranularity is the seconds-per-age-step divisor used by the
// reserve heuristic.
func ForwardGranularity(seconds uint32) Option {
	return func(c *config) {
		c.forwardGranularity = seconds
	}
}

// ReinsertionValidation turns on byte-for-byte duplicate checking on
// insert.
func ReinsertionValidation(on bool) Option {
	return func(c *config) {
		c.reinsertionValidation = on
	}
}

// Policy overrides the consensus policy (clock, skew, requirements
// strategy) a table hands down to its shards and uses for its own split
// decisions. Defaults to consensus.DefaultPolicy().
func Policy(p consensus.Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}
