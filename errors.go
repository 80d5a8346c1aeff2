package fingermatch

import (
	"errors"

	"github.com/arcspan/fingermatch/internal/workerpool"
)

// Every request-level failure wraps one of these with fmt.Errorf("...: %w",
// ...) and is matched with errors.Is; none of them ever escape a worker as a
// panic.
var (
	// ErrInvalidInput covers min_similarity outside [0,1] or max_results
	// beyond MaxResultsLimit. An empty request_id is not rejected: the
	// service generates one.
	ErrInvalidInput = errors.New("fingermatch: invalid input")

	// ErrStoreUnavailable means the store's backing state could not be
	// opened or queried at all.
	ErrStoreUnavailable = errors.New("fingermatch: store unavailable")

	// ErrStoreTransient is a transient read/write failure on one
	// operation; the engine does not retry.
	ErrStoreTransient = errors.New("fingermatch: transient store error")

	// ErrPoolStopped is returned when submitting a task after the worker
	// pool has been shut down.
	ErrPoolStopped = workerpool.ErrPoolStopped

	// ErrInternal covers any unclassified failure.
	ErrInternal = errors.New("fingermatch: internal error")
)

// MaxResultsLimit bounds max_results: a request asking for more than this
// many results is InvalidInput.
const MaxResultsLimit = 1000
