package table

import "fmt"

// errorType is a comparable, constant sentinel error, mirroring
// store/types/errors.go's pattern for the table's handful of named
// failure modes.
type errorType string

func (e errorType) Error() string {
	return string(e)
}

const (
	// ErrReadOnly is returned by write operations on a table opened with
	// ReadOnly(true).
	ErrReadOnly = errorType("table: read-only")

	// ErrNoShard names the case where no shard covers a given timestamp.
	// No Table method returns it: write routing always creates a covering
	// shard, and Get/Erase report a miss with a false result.
	ErrNoShard = errorType("table: no shard covers timestamp")

	// ErrShardNotFound is returned when an operation names a base
	// timestamp that does not correspond to any shard the table knows of.
	ErrShardNotFound = errorType("table: no shard at that base")
)

// errBadShardFileName reports a directory entry under the table's
// directory that does not parse as a shard's hex base timestamp.
type errBadShardFileName struct {
	name string
}

func (e errBadShardFileName) Error() string {
	return fmt.Sprintf("table: unrecognized shard file name %q", e.name)
}
