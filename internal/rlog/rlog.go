// Package rlog centralizes structured logging for the store, wrapping
// github.com/ipfs/go-log/v2 and tagging every failure with the component
// that raised it plus, for consensus failures, the numeric kind code of
// the specific check.
package rlog

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("entrystore")

// Data logs a validation or consensus failure, tagged with the component
// that raised it and the numeric kind code of the specific check (e.g.
// 0x14 for "entry too far in future"). It always returns false so call
// sites can write `return rlog.Data(...)`.
func Data(component string, code int, format string, args ...interface{}) bool {
	log.Warnw("validation failure", append([]interface{}{"component", component, "code", code}, msgFields(format, args)...)...)
	return false
}

// IO logs an I/O failure on a file handle or shard.
func IO(component string, op string, err error) bool {
	log.Errorw("i/o failure", "component", component, "op", op, "err", err)
	return false
}

// Alloc logs a memory or cache allocation failure.
func Alloc(component string, what string) bool {
	log.Errorw("allocation failure", "component", component, "what", what)
	return false
}

func msgFields(format string, args []interface{}) []interface{} {
	if format == "" {
		return nil
	}
	return []interface{}{"detail", fmt.Sprintf(format, args...)}
}
