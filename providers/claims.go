package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

type indexRange struct{ start, end int }

// Claim asks whether the received body shows a value. Selection follows the
// response-match order: XPath first, then JSONPath (inside the XPath element
// when both are set), then Regex within whatever window is selected so far.
type Claim struct {
	Name     string `json:"name,omitempty"`
	XPath    string `json:"xPath,omitempty"`
	JSONPath string `json:"jsonPath,omitempty"`
	Regex    string `json:"regex,omitempty"`
	Value    string `json:"value,omitempty"` // expected value, empty checks presence only
}

// ClaimMatch is one selected value and where it sits in the transcript
type ClaimMatch struct {
	Value  string `json:"value"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// ClaimResult is the verdict for one claim
type ClaimResult struct {
	Claim   Claim        `json:"claim"`
	Matched bool         `json:"matched"`
	Matches []ClaimMatch `json:"matches,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Locator maps a range of the classified buffer to an offset in the original
// transcript. It reports false when the range is not contiguous there, i.e. a
// redaction sits inside it.
type Locator interface {
	Locate(start, end int) (int, bool)
}

var errNoSelector = errors.New("expected either xPath, jsonPath or regex")

// EvaluateClaims runs every claim against content. Claims only ever see
// content.Raw, which holds disclosed bytes; a selection that straddles a
// redaction is rejected rather than read across the gap.
func EvaluateClaims(content Content, claims []Claim, loc Locator) []ClaimResult {
	results := make([]ClaimResult, 0, len(claims))
	for _, c := range claims {
		r := evaluateClaim(content, c, loc)
		logger().Debug("Claim evaluated",
			zap.String("claim", c.Name),
			zap.Bool("matched", r.Matched),
			zap.Int("matches", len(r.Matches)))
		results = append(results, r)
	}
	return results
}

func evaluateClaim(content Content, claim Claim, loc Locator) (result ClaimResult) {
	result = ClaimResult{Claim: claim}
	body := content.Raw

	// selector libraries see attacker-controlled bytes
	defer func() {
		if r := recover(); r != nil {
			logger().Warn("Claim evaluation panicked", zap.String("claim", claim.Name), zap.Any("panic", r))
			result = ClaimResult{Claim: claim, Error: fmt.Sprintf("claim evaluation failed: %v", r)}
		}
	}()

	windows, err := selectWindows(body, claim)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, w := range windows {
		offset, ok := locateBody(content, loc, w.start, w.end)
		if !ok {
			result.Matches = nil
			result.Error = fmt.Sprintf("selection [%d,%d) spans a redaction", w.start, w.end)
			return result
		}
		result.Matches = append(result.Matches, ClaimMatch{
			Value:  string(body[w.start:w.end]),
			Offset: offset,
			Length: w.end - w.start,
		})
	}

	if claim.Value == "" {
		result.Matched = len(result.Matches) > 0
		return result
	}
	for _, m := range result.Matches {
		if matchesExpected(m.Value, claim.Value) {
			result.Matched = true
			return result
		}
	}
	result.Error = fmt.Sprintf("no selected value equals %q", claim.Value)
	return result
}

// locateBody maps a body range to transcript offsets through the HTTP body
// pieces and then the locator.
func locateBody(content Content, loc Locator, start, end int) (int, bool) {
	inStart, inEnd := start, end
	if content.Response != nil {
		var ok bool
		if inStart, ok = content.Response.BodyToInput(start, end); !ok {
			return 0, false
		}
		inEnd = inStart + (end - start)
	}
	if loc == nil {
		return inStart, true
	}
	return loc.Locate(inStart, inEnd)
}

func selectWindows(body []byte, claim Claim) ([]indexRange, error) {
	var windows []indexRange

	switch {
	case claim.XPath != "":
		elems, err := htmlElementRanges(string(body), claim.XPath, claim.JSONPath != "")
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			if claim.JSONPath == "" {
				windows = append(windows, e)
				continue
			}
			inner, err := jsonValueRanges(body[e.start:e.end], claim.JSONPath)
			if err != nil {
				return nil, err
			}
			for _, j := range inner {
				windows = append(windows, indexRange{start: e.start + j.start, end: e.start + j.end})
			}
		}

	case claim.JSONPath != "":
		ranges, err := jsonValueRanges(body, claim.JSONPath)
		if err != nil {
			return nil, err
		}
		windows = ranges

	case claim.Regex != "":
		windows = []indexRange{{start: 0, end: len(body)}}

	default:
		return nil, errNoSelector
	}

	if claim.Regex == "" {
		return windows, nil
	}

	re, err := makeRegex(claim.Regex)
	if err != nil {
		return nil, fmt.Errorf("invalid regexp %q: %w", claim.Regex, err)
	}
	out := make([]indexRange, 0, len(windows))
	for _, w := range windows {
		m, ok := applyRegexWindow(re, body, w)
		if !ok {
			return nil, fmt.Errorf("regexp %s does not match the selected element", claim.Regex)
		}
		out = append(out, m)
	}
	return out, nil
}

// makeRegex enables dotAll and case-insensitive matching and accepts
// JavaScript-style named groups (?<name>...).
func makeRegex(str string) (*regexp.Regexp, error) {
	return regexp.Compile("(?si)" + jsNamedGroupPattern.ReplaceAllString(str, `(?P<$1>`))
}

var jsNamedGroupPattern = regexp.MustCompile(`\(\?<([A-Za-z][A-Za-z0-9_]*)>`)

// applyRegexWindow matches re inside w. When the pattern has exactly one named
// group that participated, the group is the selection, otherwise the whole
// match is.
func applyRegexWindow(re *regexp.Regexp, body []byte, w indexRange) (indexRange, bool) {
	smi := re.FindSubmatchIndex(body[w.start:w.end])
	if smi == nil {
		return indexRange{}, false
	}

	named, from, to := 0, -1, -1
	for gi, name := range re.SubexpNames() {
		if gi == 0 || name == "" {
			continue
		}
		if smi[2*gi] >= 0 {
			named++
			from, to = smi[2*gi], smi[2*gi+1]
		}
	}
	if named != 1 {
		from, to = smi[0], smi[1]
	}
	return indexRange{start: w.start + from, end: w.start + to}, true
}

// matchesExpected compares a selected value with the expected one, treating a
// JSON string literal by its decoded content.
func matchesExpected(value, expected string) bool {
	if value == expected {
		return true
	}
	var decoded string
	if len(value) >= 2 && value[0] == '"' && json.Unmarshal([]byte(value), &decoded) == nil {
		return decoded == expected
	}
	return false
}
