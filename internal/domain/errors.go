package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound signals a reference to an index that is not managed.
	ErrIndexNotFound = errors.New("index not found")
	// ErrGroupNotFound signals an unknown search group.
	ErrGroupNotFound = errors.New("group not found")
	// ErrDuplicateIndex signals an index id registered twice.
	ErrDuplicateIndex = errors.New("duplicate index")
	// ErrInvalidIndex signals a malformed index definition.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrDuplicateGroup signals a group name registered twice.
	ErrDuplicateGroup = errors.New("duplicate group")
	// ErrInvalidGroup signals a malformed group definition.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrNormalizerNotFound signals that no normalizer can convert an object.
	ErrNormalizerNotFound = errors.New("normalizer not found")
	// ErrNormalizationFailed signals a normalizer error.
	ErrNormalizationFailed = errors.New("normalization failed")
	// ErrMissingPrimaryKey signals a document or hit without its primary key field.
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrProvisioningTaskFailed signals a remote task that finished with an error.
	ErrProvisioningTaskFailed = errors.New("provisioning task failed")

	// ErrInvalidResult signals a structurally broken search response.
	ErrInvalidResult = errors.New("invalid search result")
	// ErrGroupMismatch signals a search response block that does not belong to the group.
	ErrGroupMismatch = errors.New("result index is not a group member")

	// ErrEmbeddingProviderError signals a failed call to the embedding provider.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// IndexNotFoundError wraps ErrIndexNotFound with the offending index id.
type IndexNotFoundError struct {
	Index string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrIndexNotFound.Error(), e.Index)
}

func (e *IndexNotFoundError) Unwrap() error { return ErrIndexNotFound }

// NewIndexNotFound creates an index-not-found error.
func NewIndexNotFound(index string) error {
	return &IndexNotFoundError{Index: index}
}

// NormalizationError wraps ErrNormalizationFailed (or ErrNormalizerNotFound when Err is nil)
// with the Go type name of the object that could not be converted.
type NormalizationError struct {
	Type string
	Err  error
}

func (e *NormalizationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf(
			"%s for %s: register a normalizer or implement Document() on the type",
			ErrNormalizerNotFound.Error(), e.Type,
		)
	}
	return fmt.Sprintf("%s for %s: %s", ErrNormalizationFailed.Error(), e.Type, e.Err.Error())
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *NormalizationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNormalizerNotFound}
	}
	return []error{ErrNormalizationFailed, e.Err}
}

// MissingPrimaryKeyError names the index and the primary key field that was expected.
type MissingPrimaryKeyError struct {
	Index string
	Field string
}

func (e *MissingPrimaryKeyError) Error() string {
	return fmt.Sprintf(
		"%s: document for index %q has no %q field; return it from the normalizer or configure the index primary key",
		ErrMissingPrimaryKey.Error(), e.Index, e.Field,
	)
}

func (e *MissingPrimaryKeyError) Unwrap() error { return ErrMissingPrimaryKey }

// TaskFailedError carries the remote task uid and the error message it reported.
type TaskFailedError struct {
	TaskUID int64
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("%s: task %d: %s", ErrProvisioningTaskFailed.Error(), e.TaskUID, e.Message)
}

func (e *TaskFailedError) Unwrap() error { return ErrProvisioningTaskFailed }
