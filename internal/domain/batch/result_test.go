package batch

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/meilifed/internal/domain/task"
)

func TestNewOK(t *testing.T) {
	r := NewOK("movies", 3, task.Ref{TaskUID: 12, Status: task.StatusEnqueued})
	if r.Index() != "movies" || r.Documents() != 3 {
		t.Errorf("unexpected result %q/%d", r.Index(), r.Documents())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Task().TaskUID != 12 {
		t.Errorf("Task().TaskUID = %d", r.Task().TaskUID)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("upload failed")
	r := NewError("books", 2, err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
	if r.Task().TaskUID != 0 {
		t.Error("failed result should carry no task")
	}
}
