package meilifed

import (
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrIndexNotFound          = domain.ErrIndexNotFound
	ErrGroupNotFound          = domain.ErrGroupNotFound
	ErrDuplicateIndex         = domain.ErrDuplicateIndex
	ErrInvalidIndex           = domain.ErrInvalidIndex
	ErrDuplicateGroup         = domain.ErrDuplicateGroup
	ErrInvalidGroup           = domain.ErrInvalidGroup
	ErrNormalizerNotFound     = domain.ErrNormalizerNotFound
	ErrNormalizationFailed    = domain.ErrNormalizationFailed
	ErrMissingPrimaryKey      = domain.ErrMissingPrimaryKey
	ErrProvisioningTaskFailed = domain.ErrProvisioningTaskFailed
	ErrInvalidResult          = domain.ErrInvalidResult
	ErrGroupMismatch          = domain.ErrGroupMismatch
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// Typed errors carrying details. Use errors.As() to inspect them.
type (
	IndexNotFoundError     = domain.IndexNotFoundError
	MissingPrimaryKeyError = domain.MissingPrimaryKeyError
	NormalizationError     = domain.NormalizationError
	TaskFailedError        = domain.TaskFailedError
	// RemoteError is a non-2xx reply from the engine.
	RemoteError = remote.Error
)

// IsNotFound reports whether err is a 404 reply from the engine.
func IsNotFound(err error) bool { return remote.IsNotFound(err) }
