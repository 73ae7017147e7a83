package redaction

import (
	"strings"

	"proof-viewer/shared"
)

// Display defaults
const (
	DefaultMarker            = "X"
	DefaultCollapseThreshold = 100 // redactions longer than this are collapsed
	collapsedRepeat          = 9
	collapsedSuffix          = "..."
)

// RenderOptions controls how redactions are drawn
type RenderOptions struct {
	Marker            string // printed once per withheld byte
	CollapseThreshold int    // 0 disables collapsing
}

// DefaultRenderOptions returns the viewer's standard settings
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Marker: DefaultMarker, CollapseThreshold: DefaultCollapseThreshold}
}

// SegmentText renders one segment. Disclosed bytes are decoded per segment so
// a redaction that splits a multi-byte character yields U+FFFD on each side
// instead of gluing unrelated bytes together.
func SegmentText(s Segment, opts RenderOptions) (string, *shared.DecodeError) {
	if s.Kind == Disclosed {
		return shared.DecodeLossy(s.Data)
	}
	marker := opts.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	if opts.CollapseThreshold > 0 && s.Length > opts.CollapseThreshold {
		return strings.Repeat(marker, collapsedRepeat) + collapsedSuffix, nil
	}
	return strings.Repeat(marker, s.Length), nil
}

// Render draws all segments as plain text. The returned report aggregates
// lossy conversions across segments and is nil when everything was valid.
func Render(segments []Segment, opts RenderOptions) (string, *shared.DecodeError) {
	var sb strings.Builder
	var report *shared.DecodeError
	for _, s := range segments {
		text, decodeErr := SegmentText(s, opts)
		sb.WriteString(text)
		if decodeErr != nil {
			if report == nil {
				report = &shared.DecodeError{Offset: s.Offset + decodeErr.Offset}
			}
			report.Replacements += decodeErr.Replacements
		}
	}
	return sb.String(), report
}
