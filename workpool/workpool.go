// Package workpool implements the dispatch/join barrier maintenance
// passes use: Begin constructs a bounded pool, Dispatch enqueues work,
// and Join blocks until every dispatched task has completed (or panicked,
// which is caught and reported rather than propagated). Built on
// golang.org/x/sync/errgroup.
package workpool

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Pool is a single-use begin/dispatch/join barrier. A Pool is not safe to
// reuse once Join has returned; construct a new one for the next pass.
type Pool struct {
	g *errgroup.Group
}

// Begin constructs a pool expecting to run with at most limit tasks
// concurrently; limit <= 0 means unbounded, matching errgroup.Group's
// default when SetLimit is never called.
func Begin(limit int) *Pool {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Pool{g: g}
}

// Dispatch enqueues task on the pool. A panic inside task is caught and
// reported as a failure rather than crashing the pool.
func (p *Pool) Dispatch(task func() error) {
	p.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("workpool: task panicked: %v", r)
			}
		}()
		return task()
	})
}

// Join blocks until every dispatched task has completed, returning the
// first non-nil error any task reported. Every task still runs to
// completion regardless of earlier failures; Dispatch never cancels
// sibling tasks.
func (p *Pool) Join() error {
	return p.g.Wait()
}
