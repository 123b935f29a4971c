package strrefine

import (
	"errors"
	"fmt"
)

// Internal-consistency failures. They abort the construction of the current
// constraint set and indicate a bug upstream, never a property of the input
// program.
var (
	// ErrSortMismatch is returned when two expressions that must share a sort
	// do not, e.g. the branches of a sparse array encoding.
	ErrSortMismatch = errors.New("sort mismatch")

	// ErrMalformedUpdateChain is returned when a chain of array updates does
	// not bottom out in a constant array, or uses a symbolic update index.
	ErrMalformedUpdateChain = errors.New("malformed array update chain")

	// ErrNonMonotonicUpdates is returned by the interval encoding when two
	// updates of the chain write the same index, so the intervals overlap.
	ErrNonMonotonicUpdates = errors.New("array updates are not monotonic")

	// ErrUnknownStringNode is returned when a traversal reaches a string that
	// was never registered in the dependency graph.
	ErrUnknownStringNode = errors.New("string has no node in the dependency graph")

	// ErrMultipleProducers is returned when a second builtin function claims
	// to produce a string that already has a producer.
	ErrMultipleProducers = errors.New("string already has a producer")

	// ErrMalformedApplication is returned when a builtin function call does not
	// follow the argument convention of string primitives.
	ErrMalformedApplication = errors.New("malformed string function application")

	// ErrUnsupportedExpr is returned by the solver backend for expressions it
	// cannot translate.
	ErrUnsupportedExpr = errors.New("unsupported expression")
)

// invariant panics if condition is false.
func invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("invariant: "+format, args...))
	}
}
