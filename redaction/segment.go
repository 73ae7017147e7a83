// Package redaction turns a partially disclosed buffer into an ordered list
// of disclosed and redacted segments that a renderer can show without ever
// touching withheld bytes.
package redaction

import (
	"fmt"

	"proof-viewer/shared"
)

// Kind tells disclosed segments from redacted ones
type Kind int

const (
	Disclosed Kind = iota
	Redacted
)

func (k Kind) String() string {
	if k == Redacted {
		return "redacted"
	}
	return "disclosed"
}

// Range is a withheld half-open byte range [Start, End)
type Range struct {
	Start int
	End   int
}

// Segment is one rendering unit. Disclosed segments own a copy of their
// bytes; redacted segments only know their length.
type Segment struct {
	Kind   Kind   `json:"kind"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Data   []byte `json:"data,omitempty"`
}

// Segments splits buf around the withheld ranges. Ranges must be sorted,
// non-overlapping, non-empty and inside buf; touching ranges are allowed and
// stay separate. The result tiles [0, len(buf)) exactly.
func Segments(buf []byte, ranges []Range) ([]Segment, error) {
	if err := validate(len(buf), ranges); err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, 2*len(ranges)+1)
	cursor := 0
	for _, r := range ranges {
		if r.Start > cursor {
			segments = append(segments, disclosed(buf, cursor, r.Start))
		}
		// length comes from the range, never from the bytes
		segments = append(segments, Segment{Kind: Redacted, Offset: r.Start, Length: r.End - r.Start})
		cursor = r.End
	}
	if cursor < len(buf) {
		segments = append(segments, disclosed(buf, cursor, len(buf)))
	}
	return segments, nil
}

func disclosed(buf []byte, start, end int) Segment {
	return Segment{
		Kind:   Disclosed,
		Offset: start,
		Length: end - start,
		Data:   append([]byte(nil), buf[start:end]...),
	}
}

func validate(length int, ranges []Range) error {
	prevEnd := 0
	for i, r := range ranges {
		switch {
		case r.Start < 0 || r.Start >= r.End:
			return shared.NewInvalidRangesError(fmt.Sprintf("range %d [%d,%d) is empty or negative", i, r.Start, r.End))
		case r.Start < prevEnd:
			return shared.NewInvalidRangesError(fmt.Sprintf("range %d [%d,%d) overlaps or precedes the previous range ending at %d", i, r.Start, r.End, prevEnd))
		case r.End > length:
			return shared.NewInvalidRangesError(fmt.Sprintf("range %d [%d,%d) exceeds buffer length %d", i, r.Start, r.End, length))
		}
		prevEnd = r.End
	}
	return nil
}

// View is the concatenation of the disclosed segments, with enough
// bookkeeping to map positions back to the original buffer.
type View struct {
	Data   []byte
	pieces []piece
}

type piece struct {
	viewStart int
	bufStart  int
	length    int
}

// DisclosedView concatenates the disclosed bytes of segments in order
func DisclosedView(segments []Segment) *View {
	v := &View{}
	for _, s := range segments {
		if s.Kind != Disclosed || s.Length == 0 {
			continue
		}
		v.pieces = append(v.pieces, piece{viewStart: len(v.Data), bufStart: s.Offset, length: s.Length})
		v.Data = append(v.Data, s.Data...)
	}
	return v
}

// Original maps a view offset to its offset in the original buffer. It
// returns -1 when i is outside the view.
func (v *View) Original(i int) int {
	if p, ok := v.find(i); ok {
		return p.bufStart + (i - p.viewStart)
	}
	return -1
}

// Contiguous reports whether view bytes [start, end) were adjacent in the
// original buffer, i.e. no redaction sits between them.
func (v *View) Contiguous(start, end int) bool {
	if start >= end {
		return start == end && start >= 0 && start <= len(v.Data)
	}
	p, ok := v.find(start)
	if !ok {
		return false
	}
	return end <= p.viewStart+p.length
}

// Locate returns the original offset of view bytes [start, end) when they
// were contiguous in the original buffer.
func (v *View) Locate(start, end int) (int, bool) {
	if !v.Contiguous(start, end) {
		return 0, false
	}
	if start < len(v.Data) {
		return v.Original(start), true
	}
	if n := len(v.pieces); n > 0 {
		return v.pieces[n-1].bufStart + v.pieces[n-1].length, true
	}
	return 0, true
}

func (v *View) find(i int) (piece, bool) {
	lo, hi := 0, len(v.pieces)
	for lo < hi {
		mid := (lo + hi) / 2
		p := v.pieces[mid]
		switch {
		case i < p.viewStart:
			hi = mid
		case i >= p.viewStart+p.length:
			lo = mid + 1
		default:
			return p, true
		}
	}
	return piece{}, false
}
