package match

import "math"

// odometer walks the cartesian product of group sizes with the last group
// varying fastest, the order of nested loops over the groups.
type odometer struct {
	sizes []int
	index []int
	done  bool
}

func newOdometer(sizes []int) *odometer {
	o := &odometer{sizes: sizes, index: make([]int, len(sizes))}
	for _, n := range sizes {
		if n == 0 {
			o.done = true
		}
	}
	if len(sizes) == 0 {
		o.done = true
	}
	return o
}

// next advances to the following combination and reports false once the
// product is exhausted.
func (o *odometer) next() bool {
	for i := len(o.index) - 1; i >= 0; i-- {
		o.index[i]++
		if o.index[i] < o.sizes[i] {
			return true
		}
		o.index[i] = 0
	}
	o.done = true
	return false
}

// productSize is the number of combinations, saturating at math.MaxInt64.
func productSize(sizes []int) int64 {
	if len(sizes) == 0 {
		return 0
	}
	total := int64(1)
	for _, n := range sizes {
		if n == 0 {
			return 0
		}
		if total > math.MaxInt64/int64(n) {
			return math.MaxInt64
		}
		total *= int64(n)
	}
	return total
}
