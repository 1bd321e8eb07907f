// ABOUTME: Result is the explicit none/one/many outcome of a document read
// ABOUTME: Replaces returning a bare value, a list, or nil from the same call

package docstore

// Shape tells which variant a Result holds.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeOne
	ShapeMany
)

func (s Shape) String() string {
	switch s {
	case ShapeOne:
		return "one"
	case ShapeMany:
		return "many"
	default:
		return "none"
	}
}

// Result holds zero, one, or many values of T.
type Result[T any] struct {
	shape Shape
	items []T
}

// Found wraps a single value.
func Found[T any](v T) Result[T] {
	return Result[T]{shape: ShapeOne, items: []T{v}}
}

// FoundMany wraps a list. An empty list is NotFound.
func FoundMany[T any](vs []T) Result[T] {
	if len(vs) == 0 {
		return NotFound[T]()
	}
	return Result[T]{shape: ShapeMany, items: vs}
}

// NotFound is the empty result.
func NotFound[T any]() Result[T] {
	return Result[T]{shape: ShapeNone}
}

// Shape returns the variant.
func (r Result[T]) Shape() Shape { return r.shape }

// Found reports whether the result holds at least one value.
func (r Result[T]) Found() bool { return r.shape != ShapeNone }

// First returns the first value, if any.
func (r Result[T]) First() (T, bool) {
	if len(r.items) == 0 {
		var zero T
		return zero, false
	}
	return r.items[0], true
}

// All returns every value; nil for NotFound.
func (r Result[T]) All() []T {
	return r.items
}

// Map converts a Result's values while keeping its shape.
func Map[T, U any](r Result[T], fn func(T) (U, error)) (Result[U], error) {
	if r.shape == ShapeNone {
		return NotFound[U](), nil
	}
	out := make([]U, 0, len(r.items))
	for _, item := range r.items {
		u, err := fn(item)
		if err != nil {
			return NotFound[U](), err
		}
		out = append(out, u)
	}
	return Result[U]{shape: r.shape, items: out}, nil
}
