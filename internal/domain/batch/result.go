// Package batch holds per-item outcomes for batch ingestion. One item's
// failure never aborts its siblings; each slot reports its own ID or error.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation.
// For successes ID is the assigned image ID; for failures it is empty unless
// an ID had already been minted before the failure.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result carrying the assigned ID.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item's assigned identifier, if any.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
