package task

// Status is the lifecycle state of an asynchronous remote task.
type Status string

// Task statuses reported by the remote engine.
const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Finished reports whether the task left the queue.
func (s Status) Finished() bool {
	return s != StatusEnqueued && s != StatusProcessing && s != ""
}

// Ref is the summary returned when a write operation is enqueued.
type Ref struct {
	TaskUID    int64  `json:"taskUid"`
	IndexUID   string `json:"indexUid,omitempty"`
	Status     Status `json:"status"`
	Type       string `json:"type,omitempty"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
}

// Error is the failure detail attached to a failed task.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

// Task is the full task record returned by the tasks endpoint.
type Task struct {
	UID        int64  `json:"uid"`
	IndexUID   string `json:"indexUid,omitempty"`
	Status     Status `json:"status"`
	Type       string `json:"type"`
	Error      *Error `json:"error,omitempty"`
	Duration   string `json:"duration,omitempty"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// Failed reports whether the task finished with an error.
func (t Task) Failed() bool { return t.Error != nil || t.Status == StatusFailed }

// ErrorMessage returns the reported error message, or a generic one for failures without detail.
func (t Task) ErrorMessage() string {
	if t.Error != nil && t.Error.Message != "" {
		return t.Error.Message
	}
	return "task failed to complete"
}
