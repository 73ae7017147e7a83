package providers

import (
	"fmt"
	"strings"

	xp "github.com/reclaimprotocol/xpath-go"
)

// nulPlaceholder replaces NUL before parsing (U+001A SUBSTITUTE)
const nulPlaceholder = "\x1a"

// htmlElementRanges evaluates an XPath over html and returns the byte range
// of each matched element. With contentsOnly the range covers the inner
// content only.
func htmlElementRanges(html string, expr string, contentsOnly bool) ([]indexRange, error) {
	// the HTML parser stops advancing at a NUL rune; a same-width stand-in
	// keeps every offset valid
	html = strings.ReplaceAll(html, "\x00", nulPlaceholder)

	matches, err := xp.QueryWithOptions(expr, html, xp.Options{
		IncludeLocation: true,
		OutputFormat:    "nodes",
		ContentsOnly:    contentsOnly,
	})
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("failed to find XPath %q", expr)
	}

	out := make([]indexRange, 0, len(matches))
	for _, m := range matches {
		if m.StartLocation < 0 || m.EndLocation > len(html) || m.StartLocation > m.EndLocation {
			return nil, fmt.Errorf("invalid range for XPath %q: [%d,%d)", expr, m.StartLocation, m.EndLocation)
		}
		out = append(out, indexRange{start: m.StartLocation, end: m.EndLocation})
	}
	return out, nil
}
