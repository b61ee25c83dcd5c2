package feed

import "context"

type responseKind int

const (
	kindValue responseKind = iota
	kindStream
	kindAsyncStream
	kindFuture
)

// Response is the tagged result of a Callback. The shape is declared by the
// constructor, not discovered by introspection: Value carries one computed
// value, Stream a finite pull iterator, AsyncStream a channel drained until
// close, and Future a deferred single value.
//
// Value and Stream count as synchronous shapes for placeholder scheduling;
// AsyncStream and Future as asynchronous ones.
type Response struct {
	kind responseKind

	value any
	next  func() (any, bool)
	ch    <-chan any
	wait  func(context.Context) (any, error)
}

// Value wraps an already-computed value.
func Value(v any) Response {
	return Response{kind: kindValue, value: v}
}

// Stream wraps a finite pull iterator: next returns the next value and true,
// or false when exhausted. Iterators are not restartable.
func Stream(next func() (any, bool)) Response {
	return Response{kind: kindStream, next: next}
}

// AsyncStream wraps a channel producing values until it is closed.
func AsyncStream(ch <-chan any) Response {
	return Response{kind: kindAsyncStream, ch: ch}
}

// Future wraps a deferred computation resolved exactly once during draining.
func Future(wait func(context.Context) (any, error)) Response {
	return Response{kind: kindFuture, wait: wait}
}

// Tokens is a convenience Stream over a fixed token slice.
func Tokens(tokens ...any) Response {
	i := 0
	return Stream(func() (any, bool) {
		if i >= len(tokens) {
			return nil, false
		}
		v := tokens[i]
		i++
		return v, true
	})
}

func (r Response) synchronous() bool {
	return r.kind == kindValue || r.kind == kindStream
}
