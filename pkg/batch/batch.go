package batch

import "iter"

const (
	// SearchSize matches the max number of OR operators a filtered search accepts.
	SearchSize = 20
	// WriteSize is the number of documents sent per write request.
	WriteSize = 80
)

// Slices yields contiguous slices of items holding at most size elements each.
// Order is preserved and every item appears in exactly one slice. A size below 1
// yields the whole input as a single slice.
func Slices[T any](items []T, size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if len(items) == 0 {
			return
		}
		if size < 1 {
			size = len(items)
		}
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end:end]) {
				return
			}
		}
	}
}

// Count returns the number of slices Slices would yield.
func Count(n, size int) int {
	if n == 0 {
		return 0
	}
	if size < 1 {
		return 1
	}
	return (n + size - 1) / size
}
