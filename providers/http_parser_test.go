package providers

import (
	"testing"
)

func TestParseHTTPResponseContentLength(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello")
	resp, err := ParseHTTPResponse(data)
	if err != nil {
		t.Fatalf("ParseHTTPResponse failed: %v", err)
	}
	if resp.StatusCode != 200 || resp.StatusMessage != "OK" {
		t.Errorf("unexpected status %d %q", resp.StatusCode, resp.StatusMessage)
	}
	if resp.Header("Content-Type") != "text/plain" {
		t.Errorf("unexpected content type %q", resp.Header("Content-Type"))
	}
	if string(resp.Body) != "hello" || resp.Truncated {
		t.Errorf("unexpected body %q truncated=%v", resp.Body, resp.Truncated)
	}
	if resp.BodyStartIndex != len(data)-5 {
		t.Errorf("unexpected body start %d", resp.BodyStartIndex)
	}
	if r := resp.HeaderRanges["content-length"]; string(data[r.Start:r.End()]) != "Content-Length: 5" {
		t.Errorf("unexpected header range %q", data[r.Start:r.End()])
	}
}

func TestParseHTTPResponseTruncated(t *testing.T) {
	resp, err := ParseHTTPResponse([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nshort"))
	if err != nil {
		t.Fatalf("ParseHTTPResponse failed: %v", err)
	}
	if !resp.Truncated || string(resp.Body) != "short" {
		t.Fatalf("expected truncated body, got %q truncated=%v", resp.Body, resp.Truncated)
	}
}

func TestParseHTTPResponseChunked(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	resp, err := ParseHTTPResponse(data)
	if err != nil {
		t.Fatalf("ParseHTTPResponse failed: %v", err)
	}
	if string(resp.Body) != "Wikipedia" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if len(resp.Chunks) != 2 || len(resp.BodyPieces) != 2 {
		t.Fatalf("expected 2 chunks and pieces, got %d and %d", len(resp.Chunks), len(resp.BodyPieces))
	}

	// "pedia" lives in the second chunk
	offset, ok := resp.BodyToInput(4, 9)
	if !ok || string(data[offset:offset+5]) != "pedia" {
		t.Fatalf("BodyToInput(4, 9) = %d, %v", offset, ok)
	}
	if _, ok := resp.BodyToInput(2, 6); ok {
		t.Fatal("range across chunk boundary should not map")
	}
}

func TestParseHTTPResponseReadUntilClose(t *testing.T) {
	resp, err := ParseHTTPResponse([]byte("HTTP/1.0 200 OK\r\nServer: x\r\n\r\nall of it"))
	if err != nil {
		t.Fatalf("ParseHTTPResponse failed: %v", err)
	}
	if string(resp.Body) != "all of it" || len(resp.BodyPieces) != 1 {
		t.Fatalf("unexpected body %q pieces=%d", resp.Body, len(resp.BodyPieces))
	}
}

func TestParseHTTPResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not http", "hello world\r\n\r\n"},
		{"bad status", "HTTP/1.1 abc OK\r\n\r\n"},
		{"no blank line", "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n"},
		{"negative length", "HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n"},
		{"bad chunk size", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHTTPResponse([]byte(tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseHTTPResponseStreaming(t *testing.T) {
	parser := NewHTTPResponseParser()
	for _, part := range []string{"HTTP/1.1 200 OK\r\nContent-", "Length: 12\r\n\r\nHello", " World!"} {
		if err := parser.OnChunk([]byte(part)); err != nil {
			t.Fatalf("OnChunk failed: %v", err)
		}
	}
	if err := parser.StreamEnded(); err != nil {
		t.Fatalf("StreamEnded failed: %v", err)
	}
	if string(parser.Response.Body) != "Hello World!" {
		t.Fatalf("unexpected body %q", parser.Response.Body)
	}
}
