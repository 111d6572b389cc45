package rules

import (
	"math"
	"math/bits"
)

// depthStack keeps one record per open scope keyed by the depth at which the
// scope was entered. Trimming to a depth drops every scope at or below it,
// which recovers from depth jumps in a corrupted stream.
type depthStack[T any] struct {
	items []scoped[T]
}

type scoped[T any] struct {
	depth int
	value T
}

func (s *depthStack[T]) trim(depth int) {
	n := len(s.items)
	for n > 0 && s.items[n-1].depth >= depth {
		n--
	}
	clear(s.items[n:])
	s.items = s.items[:n]
}

func (s *depthStack[T]) push(depth int, v T) {
	s.items = append(s.items, scoped[T]{depth: depth, value: v})
}

// top returns the innermost scope or nil.
func (s *depthStack[T]) top() *T {
	if len(s.items) == 0 {
		return nil
	}
	return &s.items[len(s.items)-1].value
}

func (s *depthStack[T]) len() int {
	return len(s.items)
}

// addSaturating adds b to a, clamping at the maximum instead of wrapping.
func addSaturating(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// mulSaturating multiplies a and b, clamping at the maximum.
func mulSaturating(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
