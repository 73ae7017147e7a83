package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/coreos/go-json"
	jp "github.com/reclaimprotocol/jsonpathplus-go"
)

// jsonValueRanges evaluates a JSONPath over doc and returns the byte range of
// every matched value. jsonpathplus-go resolves the expression to concrete
// paths, coreos/go-json keeps node offsets, and each value's extent is
// measured by decoding exactly one value from its start offset.
func jsonValueRanges(doc []byte, expr string) ([]indexRange, error) {
	results, err := jp.Query(expr, string(doc))
	if err != nil {
		return nil, fmt.Errorf("JSONPath query failed: %v", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("jsonPath %q not found", expr)
	}

	var root gojson.Node
	if err := gojson.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("failed to parse JSON for offsets: %v", err)
	}

	ranges := make([]indexRange, 0, len(results))
	for _, r := range results {
		n, err := walkJSONPath(&root, splitJSONPath(r.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %q: %v", r.Path, err)
		}
		rng, err := valueExtent(doc, n.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid value for path %q: %v", r.Path, err)
		}
		ranges = append(ranges, rng)
	}
	return ranges, nil
}

func valueExtent(doc []byte, start int) (indexRange, error) {
	if start < 0 || start >= len(doc) {
		return indexRange{}, fmt.Errorf("offset %d outside document", start)
	}
	for start < len(doc) && isJSONSpace(doc[start]) {
		start++
	}
	dec := json.NewDecoder(bytes.NewReader(doc[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return indexRange{}, err
	}
	return indexRange{start: start, end: start + int(dec.InputOffset())}, nil
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// splitJSONPath turns $.a[1]['b'] into ["a", "1", "b"]
func splitJSONPath(path string) []string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}

	var segments []string
	var cur strings.Builder
	inBracket := false
	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, strings.Trim(cur.String(), "'\""))
			cur.Reset()
		}
	}
	for _, r := range p {
		switch {
		case r == '.' && !inBracket:
			flush()
		case r == '[' && !inBracket:
			flush()
			inBracket = true
		case r == ']' && inBracket:
			flush()
			inBracket = false
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segments
}

func walkJSONPath(node *gojson.Node, segments []string) (*gojson.Node, error) {
	cur := node
	for i, seg := range segments {
		switch v := cur.Value.(type) {
		case map[string]gojson.Node:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("object key %q not found at segment %d", seg, i)
			}
			cur = &next
		case []gojson.Node:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("array index %q out of range at segment %d", seg, i)
			}
			cur = &v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at segment %d", v, i)
		}
	}
	return cur, nil
}
