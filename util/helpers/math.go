package helpers

import "golang.org/x/exp/constraints"

// Min returns the smallest of the given values.
func Min[T constraints.Ordered](numbers ...T) T {
	min := numbers[0]
	for _, n := range numbers {
		if n < min {
			min = n
		}
	}
	return min
}

// Max returns the largest of the given values.
func Max[T constraints.Ordered](numbers ...T) T {
	max := numbers[0]
	for _, n := range numbers {
		if n > max {
			max = n
		}
	}
	return max
}

// CeilDiv computes ceil(a / b) for positive integers, used to derive a
// node's minimum occupancy from its configured maximum.
func CeilDiv[T constraints.Integer](a, b T) T {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}
