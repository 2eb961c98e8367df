package logic

import "golang.org/x/exp/constraints"

// BarLevel returns how many of the ascending steps value has reached.
// With steps {10, 20, 30}: 9 -> 0, 10 -> 1, 25 -> 2, 30 -> 3.
func BarLevel[T constraints.Integer | constraints.Float](value T, steps []T) int {
	n := 0
	for _, s := range steps {
		if value < s {
			break
		}
		n++
	}
	return n
}

// Ascending reports whether steps is strictly increasing.
func Ascending[T constraints.Ordered](steps []T) bool {
	for i := 1; i < len(steps); i++ {
		if !(steps[i-1] < steps[i]) {
			return false
		}
	}
	return true
}
