package commitment

import "fmt"

// Range is a half-open byte range [Start, End)
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End - Start
func (r Range) Len() int {
	return r.End - r.Start
}

// RangeSet is a sorted list of disjoint, non-adjacent ranges
type RangeSet []Range

// Validate checks the invariant against a buffer of the given length
func (rs RangeSet) Validate(length int) error {
	prevEnd := -1
	for i, r := range rs {
		if r.Start < 0 || r.Start >= r.End {
			return fmt.Errorf("range %d [%d,%d) is empty or negative", i, r.Start, r.End)
		}
		if r.End > length {
			return fmt.Errorf("range %d [%d,%d) exceeds length %d", i, r.Start, r.End, length)
		}
		if r.Start <= prevEnd {
			return fmt.Errorf("range %d [%d,%d) is not after previous end %d", i, r.Start, r.End, prevEnd)
		}
		prevEnd = r.End
	}
	return nil
}

// Len returns the number of bytes covered
func (rs RangeSet) Len() int {
	n := 0
	for _, r := range rs {
		n += r.Len()
	}
	return n
}

// Contains reports whether offset lies in one of the ranges
func (rs RangeSet) Contains(offset int) bool {
	for _, r := range rs {
		if offset < r.Start {
			return false
		}
		if offset < r.End {
			return true
		}
	}
	return false
}

// add appends r, merging it into the last range when contiguous. Callers add
// in ascending order.
func (rs RangeSet) add(r Range) RangeSet {
	if n := len(rs); n > 0 && rs[n-1].End == r.Start {
		rs[n-1].End = r.End
		return rs
	}
	return append(rs, r)
}
