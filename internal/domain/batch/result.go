package batch

import "github.com/kailas-cloud/meilifed/internal/domain/task"

// Status is the upload outcome of one index batch.
type Status string

// Batch upload status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of flushing the pending documents of one index.
type Result struct {
	index     string
	documents int
	task      task.Ref
	status    Status
	err       error
}

// NewOK creates a successful result carrying the enqueued task.
func NewOK(index string, documents int, ref task.Ref) Result {
	return Result{index: index, documents: documents, task: ref, status: StatusOK}
}

// NewError creates a failed result.
func NewError(index string, documents int, err error) Result {
	return Result{index: index, documents: documents, status: StatusError, err: err}
}

// Index returns the logical index id.
func (r Result) Index() string { return r.index }

// Documents returns the number of documents sent.
func (r Result) Documents() int { return r.documents }

// Task returns the enqueued task summary; zero for failed uploads.
func (r Result) Task() task.Ref { return r.task }

// Status returns the upload outcome.
func (r Result) Status() Status { return r.status }

// Err returns the upload error, if any.
func (r Result) Err() error { return r.err }
