package loader

import (
	"errors"
	"fmt"
)

// ErrSegmentOverlap is returned when a segment would replace memory that
// is already mapped in the running process.
var ErrSegmentOverlap = errors.New("segment overlaps an existing mapping")

// MapError describes a segment that could not be mapped.
type MapError struct {
	Segment int
	Addr    uint64
	Err     error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("mapping segment %d at %#x: %v", e.Segment, e.Addr, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

// pageRange is a page aligned range of virtual addresses.
type pageRange struct {
	start, end uint64
}

func (r pageRange) overlaps(o pageRange) bool {
	return r.start < o.end && o.start < r.end
}

func roundDown(v, align uint64) uint64 { return v &^ (align - 1) }

func roundUp(v, align uint64) uint64 { return (v + align - 1) &^ (align - 1) }

// mergeRanges returns the union of rs as a list of disjoint ranges sorted
// by address. rs must be sorted by start address.
func mergeRanges(rs []pageRange) []pageRange {
	var r []pageRange
	for _, x := range rs {
		if n := len(r); n > 0 && x.start <= r[n-1].end {
			if x.end > r[n-1].end {
				r[n-1].end = x.end
			}
			continue
		}
		r = append(r, x)
	}
	return r
}
