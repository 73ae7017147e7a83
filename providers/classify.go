package providers

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"proof-viewer/shared"
)

// ContentKind is the classifier's verdict
type ContentKind int

const (
	Opaque ContentKind = iota
	HTML
	Structured
)

func (k ContentKind) String() string {
	switch k {
	case HTML:
		return "html"
	case Structured:
		return "structured"
	default:
		return "opaque"
	}
}

// MarshalText lets reports carry the kind by name
func (k ContentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Content is a classified buffer. Raw holds the bytes the verdict was made on
// (the HTTP body, or the whole buffer when it is not HTTP); Text is the display
// form.
type Content struct {
	Kind     ContentKind
	Text     string
	Raw      []byte
	Charset  string
	Lossy    bool
	Response *HTTPParsedResponse // nil when the buffer is not an HTTP response
}

// Classify inspects buf as an HTTP response and picks a display form. It never
// fails: anything it cannot make sense of is Opaque.
func Classify(buf []byte) Content {
	resp, err := ParseHTTPResponse(buf)
	if err != nil {
		logger().Debug("Content is not an HTTP response", zap.Error(err))
		return opaque(buf, nil)
	}

	contentType := strings.ToLower(resp.Header("content-type"))
	charset := charsetOf(contentType)

	switch {
	case strings.Contains(contentType, "text/html"):
		text, lossy := decodeText(resp.Body, charset)
		return Content{Kind: HTML, Text: text, Raw: resp.Body, Charset: charset, Lossy: lossy, Response: resp}

	case strings.Contains(contentType, "application/json"):
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body, "", "  "); err == nil {
			text, lossy := decodeText(pretty.Bytes(), "")
			return Content{Kind: Structured, Text: text, Raw: resp.Body, Charset: charset, Lossy: lossy, Response: resp}
		}
		// not valid JSON, show it as sent
		text, lossy := decodeText(resp.Body, charset)
		return Content{Kind: Structured, Text: text, Raw: resp.Body, Charset: charset, Lossy: lossy, Response: resp}

	default:
		return opaque(resp.Body, resp)
	}
}

func opaque(buf []byte, resp *HTTPParsedResponse) Content {
	text, decodeErr := shared.DecodeLossy(buf)
	return Content{Kind: Opaque, Text: text, Raw: buf, Lossy: decodeErr != nil, Response: resp}
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// decodeText converts body to UTF-8 using the declared charset. Unknown or
// failing charsets fall back to lossy UTF-8.
func decodeText(body []byte, charset string) (string, bool) {
	if charset != "" && charset != "utf-8" && charset != "utf8" {
		if enc, err := htmlindex.Get(charset); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(decoded), false
			}
		} else {
			logger().Debug("Unknown charset, decoding as UTF-8", zap.String("charset", charset))
		}
	}
	text, decodeErr := shared.DecodeLossy(body)
	return text, decodeErr != nil
}
