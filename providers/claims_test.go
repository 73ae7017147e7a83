package providers

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// identity maps every range to itself
type identity struct{}

func (identity) Locate(start, end int) (int, bool) { return start, true }

// gapAt rejects ranges that contain offset gap
type gapAt int

func (g gapAt) Locate(start, end int) (int, bool) {
	if start < int(g) && end > int(g) {
		return 0, false
	}
	return start, true
}

const xAPIResponse = `{
  "data": {
    "user": {
      "result": {
        "rest_id": "2853538776",
        "core": {
          "created_at": "Sun Oct 12 22:06:29 +0000 2014",
          "screen_name": "LAITHALEBRAHIM"
        },
        "legacy": {
          "followers_count": 5,
          "friends_count": 71
        }
      }
    }
  }
}`

func jsonResponse(body string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
}

func TestJSONValueRanges(t *testing.T) {
	tests := []struct {
		name     string
		jsonPath string
		expected string
	}{
		{"followers_count", "$.data.user.result.legacy.followers_count", "5"},
		{"friends_count", "$.data.user.result.legacy.friends_count", "71"},
		{"created_at", "$.data.user.result.core.created_at", "+0000"},
		{"rest_id", "$.data.user.result.rest_id", "2853538776"},
	}

	doc := []byte(xAPIResponse)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := jsonValueRanges(doc, tt.jsonPath)
			if err != nil {
				t.Fatalf("jsonValueRanges failed: %v", err)
			}
			if len(ranges) == 0 {
				t.Fatal("no ranges returned")
			}
			extracted := string(doc[ranges[0].start:ranges[0].end])
			if !strings.Contains(extracted, tt.expected) {
				t.Errorf("expected extraction to contain %q, got %q", tt.expected, extracted)
			}
		})
	}
}

func TestSplitJSONPath(t *testing.T) {
	got := splitJSONPath("$.a[1]['b'].c")
	want := []string{"a", "1", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("splitJSONPath = %v, want %v", got, want)
	}
	if splitJSONPath("$") != nil {
		t.Fatal("root path should have no segments")
	}
}

func TestEvaluateClaims(t *testing.T) {
	buf := jsonResponse(xAPIResponse)
	content := Classify(buf)
	if content.Kind != Structured {
		t.Fatalf("expected structured content, got %s", content.Kind)
	}

	results := EvaluateClaims(content, []Claim{
		{Name: "id", JSONPath: "$.data.user.result.rest_id", Value: "2853538776"},
		{Name: "wrong id", JSONPath: "$.data.user.result.rest_id", Value: "1"},
		{Name: "handle", Regex: `"screen_name":\s*"(?<handle>[A-Z]+)"`, Value: "LAITHALEBRAHIM"},
		{Name: "missing", JSONPath: "$.nope"},
		{Name: "empty"},
	}, identity{})

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	id := results[0]
	if !id.Matched || len(id.Matches) != 1 {
		t.Fatalf("id claim failed: %+v", id)
	}
	m := id.Matches[0]
	if string(buf[m.Offset:m.Offset+m.Length]) != m.Value {
		t.Errorf("match offset %d does not point at %q", m.Offset, m.Value)
	}

	if results[1].Matched || results[1].Error == "" {
		t.Errorf("wrong id should not match: %+v", results[1])
	}

	handle := results[2]
	if !handle.Matched || handle.Matches[0].Value != "LAITHALEBRAHIM" {
		t.Errorf("regex claim failed: %+v", handle)
	}

	if results[3].Matched || results[3].Error == "" {
		t.Errorf("missing path should fail: %+v", results[3])
	}
	if results[4].Error != errNoSelector.Error() {
		t.Errorf("expected selector error, got %+v", results[4])
	}
}

func TestEvaluateClaimsRejectsRedactedSpan(t *testing.T) {
	buf := jsonResponse(`{"token":"abcdef"}`)
	content := Classify(buf)
	start := strings.Index(string(buf), "abcdef")

	results := EvaluateClaims(content, []Claim{{Regex: "abcdef"}}, gapAt(start+3))
	if results[0].Matched || !strings.Contains(results[0].Error, "redaction") {
		t.Fatalf("expected redaction span error, got %+v", results[0])
	}

	results = EvaluateClaims(content, []Claim{{Regex: "abc"}}, gapAt(start+3))
	if !results[0].Matched || results[0].Matches[0].Offset != start {
		t.Fatalf("expected match before the gap, got %+v", results[0])
	}
}

func TestEvaluateClaimsXPath(t *testing.T) {
	html := `<html><body><div id="price">42 USD</div></body></html>`
	buf := []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s", len(html), html))

	results := EvaluateClaims(Classify(buf), []Claim{
		{XPath: "//div[@id='price']", Regex: `(?<amount>\d+) USD`, Value: "42"},
	}, nil)
	if !results[0].Matched {
		t.Fatalf("xpath claim failed: %+v", results[0])
	}
	m := results[0].Matches[0]
	if string(buf[m.Offset:m.Offset+m.Length]) != "42" {
		t.Fatalf("unexpected match location %d", m.Offset)
	}
}

func TestMatchesExpected(t *testing.T) {
	if !matchesExpected(`"abc"`, "abc") || !matchesExpected("5", "5") {
		t.Fatal("expected matches")
	}
	if matchesExpected(`"abc"`, "ab") {
		t.Fatal("unexpected match")
	}
}

// returnsWithin fails the test when fn does not finish in time
func returnsWithin(t *testing.T, d time.Duration, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", name, d)
	}
}

func htmlResponse(body string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
}

func TestEvaluateClaimsXPathWithNUL(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    string
	}{
		{"bare text", Content{Raw: []byte("a\x00b")}, ""},
		{"inside element", Content{Raw: []byte("<div>\x00</div>")}, "<div>\x00</div>"},
		{"http body", Classify(htmlResponse("<div>a\x00b</div>")), "<div>a\x00b</div>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []ClaimResult
			returnsWithin(t, 2*time.Second, "EvaluateClaims", func() {
				results = EvaluateClaims(tt.content, []Claim{{XPath: "//div"}}, nil)
			})
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if tt.want == "" {
				if results[0].Matched {
					t.Fatalf("unexpected match: %+v", results[0])
				}
				return
			}
			if !results[0].Matched || results[0].Matches[0].Value != tt.want {
				t.Fatalf("expected %q, got %+v", tt.want, results[0])
			}
		})
	}
}

func TestHTMLElementRangesKeepsOffsets(t *testing.T) {
	html := "<p>\x00</p><div id=\"x\">ok</div>"
	ranges, err := htmlElementRanges(html, "//div", false)
	if err != nil {
		t.Fatalf("htmlElementRanges failed: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(ranges))
	}
	if got := html[ranges[0].start:ranges[0].end]; got != `<div id="x">ok</div>` {
		t.Fatalf("unexpected range %q", got)
	}
}

func TestClassifyAndClaimsHostileBodies(t *testing.T) {
	claims := []Claim{
		{Name: "xpath", XPath: "//div"},
		{Name: "xpath json", XPath: "//div", JSONPath: "$.a"},
		{Name: "json", JSONPath: "$.a[0].b"},
		{Name: "regex", Regex: `(?<v>\d+)`},
	}
	bodies := map[string][]byte{
		"nul html":          htmlResponse("<div>\x00<p>\x00</p></div>"),
		"nul json":          jsonResponse("{\"a\":[{\"b\":\"\x00\"}]}"),
		"invalid utf8":      htmlResponse("<div>\xff\xfe{\"a\":1}</div>"),
		"invalid utf8 json": jsonResponse("{\"a\":[{\"b\":\"\xc3\"}]}"),
		"unclosed tags":     htmlResponse("<div><div><div><!--"),
		"bad chunk size":    []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\nabc\r\n0\r\n\r\n"),
		"huge chunk size":   []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nContent-Type: text/html\r\n\r\n7fffffffffffffff\r\n<div>1</div>"),
		"missing CRLF":      []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabcX0\r\n\r\n"),
		"huge length":       []byte("HTTP/1.1 200 OK\r\nContent-Length: 99999999999\r\nContent-Type: application/json\r\n\r\n{\"a\":"),
		"only nul":          {0, 0, 0},
		"empty":             {},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			returnsWithin(t, 2*time.Second, "Classify and EvaluateClaims", func() {
				content := Classify(body)
				results := EvaluateClaims(content, claims, identity{})
				if len(results) != len(claims) {
					t.Errorf("expected %d results, got %d", len(claims), len(results))
				}
			})
		})
	}
}

func TestClassifyAndClaimsMutatedBodies(t *testing.T) {
	seeds := [][]byte{
		htmlResponse(`<html><body><div id="price">{"a":42}</div></body></html>`),
		jsonResponse(`{"a":[{"b":"value"}],"c":{"d":[1,2,3]}}`),
		[]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nContent-Type: text/html\r\n\r\n5\r\n<div>\r\n6\r\n1</div>\r\n0\r\n\r\n"),
	}
	claims := []Claim{
		{XPath: "//div", Regex: `\d+`},
		{JSONPath: "$.a[0].b"},
		{XPath: "//div[@id='price']", JSONPath: "$.a"},
	}
	interesting := []byte{0, '<', '>', '/', '"', '{', '}', '[', ']', '\r', '\n', 0xff, 0xc3}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 300; i++ {
		seed := seeds[i%len(seeds)]
		buf := append([]byte(nil), seed...)
		for n := 1 + rng.Intn(4); n > 0; n-- {
			pos := rng.Intn(len(buf))
			if rng.Intn(2) == 0 {
				buf[pos] = interesting[rng.Intn(len(interesting))]
			} else {
				buf[pos] = byte(rng.Intn(256))
			}
		}
		if rng.Intn(4) == 0 {
			buf = buf[:rng.Intn(len(buf)+1)]
		}

		returnsWithin(t, 2*time.Second, fmt.Sprintf("mutation %d %q", i, buf), func() {
			EvaluateClaims(Classify(buf), claims, identity{})
		})
	}
}

func TestSetLoggerConcurrentWithClaims(t *testing.T) {
	defer SetLogger(zap.NewNop())
	content := Classify(jsonResponse(xAPIResponse))
	claims := []Claim{{JSONPath: "$.data.user.result.rest_id"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zaptest.NewLogger(t))
		}()
		go func() {
			defer wg.Done()
			if r := EvaluateClaims(content, claims, identity{}); !r[0].Matched {
				t.Errorf("claim failed: %+v", r[0])
			}
		}()
	}
	wg.Wait()
}
