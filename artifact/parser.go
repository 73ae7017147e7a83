// Package artifact decodes untrusted proof files into commitment.Proof values.
package artifact

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"proof-viewer/commitment"
	"proof-viewer/shared"
)

const (
	// DefaultMaxBytes bounds a single artifact
	DefaultMaxBytes = shared.DefaultMaxArtifactBytes
	// MaxDepth bounds JSON nesting; a valid proof never exceeds 5
	MaxDepth = 64
	// maxReportedErrors caps the schema diagnostic
	maxReportedErrors = 10
)

//go:embed schema.json
var schemaJSON []byte

var (
	compiledSchema *gojsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func proofSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiledSchema, schemaErr
}

// Parser turns raw artifact bytes into a proof. The zero value uses
// DefaultMaxBytes.
type Parser struct {
	MaxBytes int
}

// NewParser creates a parser with a size limit; a non-positive limit selects
// the default.
func NewParser(maxBytes int) *Parser {
	return &Parser{MaxBytes: maxBytes}
}

// Parse decodes raw with the default limits
func Parse(raw []byte) (*commitment.Proof, error) {
	return (&Parser{}).Parse(raw)
}

// Parse decodes raw. It never returns a partial proof: on failure the proof is
// nil and the error is a *shared.VerificationError of kind parse_error.
func (p *Parser) Parse(raw []byte) (proof *commitment.Proof, err error) {
	defer func() {
		// third-party decoders must not take the process down on hostile input
		if r := recover(); r != nil {
			proof = nil
			err = shared.NewParseError(fmt.Sprintf("malformed artifact: %v", r), nil)
		}
	}()

	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if len(raw) == 0 {
		return nil, shared.NewParseError("empty artifact", nil)
	}
	if len(raw) > limit {
		return nil, shared.NewParseError(fmt.Sprintf("artifact is %d bytes, limit is %d", len(raw), limit), nil)
	}
	if err := checkDepth(raw, MaxDepth); err != nil {
		return nil, shared.NewParseError(err.Error(), err)
	}
	if !json.Valid(raw) {
		// encoding/json gives the offset of the first syntax error
		var probe any
		syntaxErr := json.Unmarshal(raw, &probe)
		return nil, shared.NewParseError(fmt.Sprintf("invalid JSON: %v", syntaxErr), syntaxErr)
	}
	if err := validateSchema(raw); err != nil {
		return nil, shared.NewParseError(err.Error(), err)
	}

	var decoded commitment.Proof
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, shared.NewParseError(fmt.Sprintf("failed to decode artifact: %v", err), err)
	}
	if decoded.Version != commitment.Version {
		return nil, shared.NewParseError(fmt.Sprintf("unsupported artifact version %q, want %q", decoded.Version, commitment.Version), nil)
	}
	return &decoded, nil
}

// Marshal encodes a proof in the artifact format
func Marshal(proof *commitment.Proof) ([]byte, error) {
	if proof == nil {
		return nil, fmt.Errorf("nil proof")
	}
	return json.MarshalIndent(proof, "", "  ")
}

func validateSchema(raw []byte) error {
	schema, err := proofSchema()
	if err != nil {
		return fmt.Errorf("failed to compile artifact schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("artifact validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	b.WriteString("artifact does not match schema: ")
	for i, e := range result.Errors() {
		if i == maxReportedErrors {
			fmt.Fprintf(&b, "; and %d more", len(result.Errors())-i)
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.String())
	}
	return fmt.Errorf("%s", b.String())
}

// checkDepth scans raw JSON and fails once arrays/objects nest deeper than
// max. Brackets inside strings are ignored.
func checkDepth(raw []byte, max int) error {
	depth := 0
	inString := false
	escaped := false
	for i, c := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				return fmt.Errorf("JSON nesting exceeds %d levels at offset %d", max, i)
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
