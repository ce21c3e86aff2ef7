package normalize

import "context"

// Func converts a value of type T into a Record.
type Func[T any] func(ctx context.Context, v T, nctx Context) (Record, error)

type typed[T any] struct {
	fn Func[T]
}

// For adapts a typed conversion function into a Normalizer that supports exactly T.
func For[T any](fn Func[T]) Normalizer {
	return typed[T]{fn: fn}
}

func (t typed[T]) Supports(obj any, _ Context) bool {
	_, ok := obj.(T)
	return ok
}

func (t typed[T]) Normalize(ctx context.Context, obj any, nctx Context) (Record, error) {
	return t.fn(ctx, obj.(T), nctx)
}
