package providers

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Span is a half-open range [Start, Start+Length) of parser input
type Span struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset
func (s Span) End() int {
	return s.Start + s.Length
}

// HTTPResponseParser is a streaming HTTP/1.1 response parser that handles
// partial data, Content-Length, chunked encoding and read-until-close bodies.
type HTTPResponseParser struct {
	Response *HTTPParsedResponse

	remainingBodyBytes int64  // -1 reads until the stream ends, 0 means no more body
	isChunked          bool   // chunked transfer encoding
	remaining          []byte // unconsumed input
	currentByteIdx     int    // offset of remaining[0] in the whole input

	headersComplete bool
	complete        bool
}

// HTTPParsedResponse is a parsed response plus the input offsets of its parts
type HTTPParsedResponse struct {
	StatusCode         int
	StatusMessage      string
	StatusLineEndIndex int
	HeaderEndIdx       int
	BodyStartIndex     int
	Body               []byte
	Headers            map[string]string // lower-cased names
	HeaderRanges       map[string]Span   // input range of each header line
	Chunks             []Span            // chunk payload ranges for chunked bodies
	BodyPieces         []Span            // input ranges that make up Body, in order

	HeadersComplete bool
	Complete        bool
	// Truncated is set when the input ended before the declared body did.
	// Disclosed-only transcripts are often shorter than the wire response.
	Truncated bool
}

// NewHTTPResponseParser creates a new streaming HTTP response parser
func NewHTTPResponseParser() *HTTPResponseParser {
	return &HTTPResponseParser{
		Response: &HTTPParsedResponse{
			StatusLineEndIndex: -1,
			HeaderEndIdx:       -1,
			BodyStartIndex:     -1,
			Body:               []byte{},
			Headers:            make(map[string]string),
			HeaderRanges:       make(map[string]Span),
		},
	}
}

// OnChunk processes the next piece of response data
func (p *HTTPResponseParser) OnChunk(data []byte) error {
	if p.complete {
		return errors.New("got more data after response was complete")
	}

	p.remaining = append(p.remaining, data...)

	if !p.headersComplete {
		if err := p.processHeaders(); err != nil {
			return err
		}
	}
	if p.headersComplete {
		if err := p.processBody(); err != nil {
			return err
		}
	}
	return nil
}

// StreamEnded finalizes parsing once no more data will arrive. A body cut
// short is accepted and flagged as Truncated; missing headers are an error.
func (p *HTTPResponseParser) StreamEnded() error {
	if !p.headersComplete {
		return errors.New("stream ended before headers were complete")
	}

	if p.remainingBodyBytes > 0 || (p.isChunked && !p.complete) {
		logger().Debug("Response body truncated",
			zap.Int64("remaining_body_bytes", p.remainingBodyBytes),
			zap.Bool("chunked", p.isChunked))
		p.Response.Truncated = true
	}

	if len(p.remaining) > 0 {
		switch {
		case p.remainingBodyBytes == -1:
			p.appendBody(p.remaining)
		case p.isChunked:
			// trailer headers and the final CRLF
			p.currentByteIdx += len(p.remaining)
		default:
			logger().Debug("Ignoring extra bytes after Content-Length body", zap.Int("extra_bytes", len(p.remaining)))
		}
		p.remaining = nil
	}

	p.complete = true
	p.Response.Complete = true
	return nil
}

func (p *HTTPResponseParser) processHeaders() error {
	for {
		line, found := p.getLine()
		if !found {
			return nil
		}

		if p.Response.StatusCode == 0 {
			if err := p.parseStatusLine(line); err != nil {
				return err
			}
			continue
		}

		if line == "" {
			return p.finishHeaders()
		}

		p.parseHeaderLine(line)
	}
}

func (p *HTTPResponseParser) parseStatusLine(line string) error {
	// HTTP/1.1 200 OK
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return fmt.Errorf("invalid HTTP status line: %q", truncate(line, 64))
	}

	statusCode, err := strconv.Atoi(parts[1])
	if err != nil || statusCode < 100 || statusCode > 999 {
		return fmt.Errorf("invalid status code %q", truncate(parts[1], 16))
	}

	p.Response.StatusCode = statusCode
	if len(parts) == 3 {
		p.Response.StatusMessage = parts[2]
	}
	p.Response.StatusLineEndIndex = p.currentByteIdx - 2
	return nil
}

// parseHeaderLine records one header. Malformed lines are skipped.
func (p *HTTPResponseParser) parseHeaderLine(line string) {
	colonIdx := strings.IndexByte(line, ':')
	if colonIdx <= 0 {
		logger().Debug("Skipping header line without colon", zap.Int("offset", p.currentByteIdx-len(line)-2))
		return
	}

	key := strings.ToLower(strings.TrimSpace(line[:colonIdx]))
	value := strings.TrimSpace(line[colonIdx+1:])
	p.Response.Headers[key] = value
	p.Response.HeaderRanges[key] = Span{Start: p.currentByteIdx - len(line) - 2, Length: len(line)}
}

func (p *HTTPResponseParser) finishHeaders() error {
	p.headersComplete = true
	p.Response.HeadersComplete = true
	p.Response.HeaderEndIdx = p.currentByteIdx - 4
	p.Response.BodyStartIndex = p.currentByteIdx

	transferEncoding := p.Response.Headers["transfer-encoding"]
	contentLength := p.Response.Headers["content-length"]

	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		p.isChunked = true
		p.remainingBodyBytes = 0
	case contentLength != "":
		length, err := strconv.ParseInt(contentLength, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid Content-Length %q: %w", truncate(contentLength, 32), err)
		}
		if length < 0 {
			return fmt.Errorf("invalid Content-Length %d: negative values not allowed", length)
		}
		p.remainingBodyBytes = length
		if length == 0 {
			p.complete = true
			p.Response.Complete = true
		}
	default:
		p.remainingBodyBytes = -1
	}
	return nil
}

func (p *HTTPResponseParser) processBody() error {
	if p.complete {
		return nil
	}
	if p.isChunked {
		return p.processChunkedBody()
	}
	p.processFixedBody()
	return nil
}

func (p *HTTPResponseParser) processFixedBody() {
	if len(p.remaining) == 0 {
		return
	}

	n := len(p.remaining)
	if p.remainingBodyBytes != -1 {
		n = int(min(p.remainingBodyBytes, int64(n)))
		p.remainingBodyBytes -= int64(n)
	}

	p.appendBody(p.remaining[:n])
	p.remaining = p.remaining[n:]

	if p.remainingBodyBytes == 0 {
		p.complete = true
		p.Response.Complete = true
	}
}

func (p *HTTPResponseParser) processChunkedBody() error {
	for {
		if p.remainingBodyBytes > 0 {
			n := int(min(p.remainingBodyBytes, int64(len(p.remaining))))
			if n == 0 {
				return nil
			}

			p.appendBody(p.remaining[:n])
			p.remaining = p.remaining[n:]
			p.remainingBodyBytes -= int64(n)
			if p.remainingBodyBytes > 0 {
				return nil
			}

			if len(p.remaining) < 2 {
				return nil
			}
			if !bytes.Equal(p.remaining[:2], []byte("\r\n")) {
				return errors.New("invalid chunk: missing CRLF after data")
			}
			p.remaining = p.remaining[2:]
			p.currentByteIdx += 2
			continue
		}

		line, found := p.getLine()
		if !found {
			return nil
		}
		if line == "" {
			continue
		}

		sizeStr := line
		if semiIdx := strings.IndexByte(line, ';'); semiIdx != -1 {
			sizeStr = line[:semiIdx]
		}
		sizeStr = strings.TrimSpace(sizeStr)

		chunkSize, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil || chunkSize < 0 {
			return fmt.Errorf("invalid chunk size %q", truncate(sizeStr, 16))
		}

		if chunkSize == 0 {
			p.complete = true
			p.Response.Complete = true
			// trailers are consumed and ignored
			for {
				if _, found := p.getLine(); !found {
					break
				}
			}
			return nil
		}

		p.Response.Chunks = append(p.Response.Chunks, Span{Start: p.currentByteIdx, Length: int(chunkSize)})
		p.remainingBodyBytes = chunkSize
	}
}

// appendBody consumes data as body bytes located at the current offset
func (p *HTTPResponseParser) appendBody(data []byte) {
	if len(data) == 0 {
		return
	}
	pieces := p.Response.BodyPieces
	if n := len(pieces); n > 0 && pieces[n-1].End() == p.currentByteIdx {
		pieces[n-1].Length += len(data)
	} else {
		p.Response.BodyPieces = append(pieces, Span{Start: p.currentByteIdx, Length: len(data)})
	}
	p.Response.Body = append(p.Response.Body, data...)
	p.currentByteIdx += len(data)
}

// getLine extracts a CRLF-terminated line from the buffer
func (p *HTTPResponseParser) getLine() (string, bool) {
	crlfIdx := bytes.Index(p.remaining, []byte("\r\n"))
	if crlfIdx == -1 {
		return "", false
	}

	line := string(p.remaining[:crlfIdx])
	p.remaining = p.remaining[crlfIdx+2:]
	p.currentByteIdx += crlfIdx + 2
	return line, true
}

// ParseHTTPResponse parses a complete HTTP response held in memory
func ParseHTTPResponse(data []byte) (*HTTPParsedResponse, error) {
	parser := NewHTTPResponseParser()

	if err := parser.OnChunk(data); err != nil {
		return nil, err
	}
	if err := parser.StreamEnded(); err != nil {
		return nil, err
	}
	return parser.Response, nil
}

// BodyToInput maps body bytes [start, end) to the parser input. It fails when
// the range crosses a chunk boundary and so is not contiguous in the input.
func (r *HTTPParsedResponse) BodyToInput(start, end int) (int, bool) {
	if start < 0 || end < start || end > len(r.Body) {
		return 0, false
	}
	bodyOffset := 0
	for _, piece := range r.BodyPieces {
		if start >= bodyOffset && start < bodyOffset+piece.Length {
			if end > bodyOffset+piece.Length {
				return 0, false
			}
			return piece.Start + (start - bodyOffset), true
		}
		bodyOffset += piece.Length
	}
	// empty range at the very end of the body
	if start == end && start == len(r.Body) {
		return r.BodyStartIndex + start, len(r.BodyPieces) <= 1
	}
	return 0, false
}

// Header returns a header value by case-insensitive name
func (r *HTTPParsedResponse) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
