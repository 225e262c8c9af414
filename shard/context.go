package shard

import "github.com/raddi-network/entrystore/consensus"

// Context is everything a shard needs from its owning table: where it
// lives on disk, the write-open reserve parameters, the reinsertion
// policy, and the consensus clock. Table implements this directly so
// package shard never imports package table (table owns the shard set,
// not the other way around).
type Context interface {
	// Dir is the table's directory: shards live at Dir()/<base-in-hex>.
	Dir() string

	// ReadOnly reports whether shards should be opened for read access
	// only; read-only shards never create missing files.
	ReadOnly() bool

	// MaxShardSize feeds the write-open reserve heuristic.
	MaxShardSize() uint64

	// ForwardGranularity is the seconds-per-age-step divisor in the same
	// heuristic.
	ForwardGranularity() uint32

	// ReinsertionValidation reports whether Insert must compare bytes
	// against an existing row with the same id before accepting it.
	ReinsertionValidation() bool

	// Policy supplies the clock used to stamp accessed times and to seed
	// the reserve heuristic's age factor.
	Policy() consensus.Policy
}
