package proofverifier

import (
	"encoding/json"
	"time"

	"proof-viewer/providers"
	"proof-viewer/redaction"
	"proof-viewer/shared"
)

// Report is the serialisable summary of an outcome. It carries rendered
// text and segment geometry, never withheld bytes.
type Report struct {
	AttemptID    string                  `json:"attempt_id"`
	Name         string                  `json:"name"`
	DeclaredType string                  `json:"declared_type,omitempty"`
	State        State                   `json:"state"`
	Key          string                  `json:"key,omitempty"`
	Error        *ErrorReport            `json:"error,omitempty"`
	ServerName   string                  `json:"server_name,omitempty"`
	Time         *time.Time              `json:"time,omitempty"`
	Sent         *DirectionReport        `json:"sent,omitempty"`
	Received     *DirectionReport        `json:"received,omitempty"`
	Content      *ContentReport          `json:"content,omitempty"`
	Claims       []providers.ClaimResult `json:"claims,omitempty"`
}

// ErrorReport surfaces the originating error text verbatim
type ErrorReport struct {
	Kind     shared.ErrorKind `json:"kind"`
	Message  string           `json:"message"`
	Internal bool             `json:"internal,omitempty"`
}

// DirectionReport describes one rendered direction
type DirectionReport struct {
	Length   int             `json:"length"`
	Withheld int             `json:"withheld"`
	Text     string          `json:"text"`
	Segments []SegmentReport `json:"segments"`
	Lossy    bool            `json:"lossy,omitempty"`
}

// SegmentReport is segment geometry without content
type SegmentReport struct {
	Kind   string `json:"kind"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// ContentReport is the classified received content
type ContentReport struct {
	Kind      providers.ContentKind `json:"kind"`
	Status    int                   `json:"status,omitempty"`
	Truncated bool                  `json:"truncated,omitempty"`
	Lossy     bool                  `json:"lossy,omitempty"`
	Text      string                `json:"text"`
}

// NewReport summarises o, rendering redactions with opts
func NewReport(o *Outcome, opts redaction.RenderOptions) *Report {
	r := &Report{
		AttemptID:    o.AttemptID,
		Name:         o.Name,
		DeclaredType: o.DeclaredType,
		State:        o.State,
		Key:          o.KeyID,
	}
	if o.Err != nil {
		r.Error = &ErrorReport{Kind: o.Err.Kind, Message: o.Err.Message, Internal: o.Err.Internal()}
	}
	if o.View == nil {
		return r
	}

	v := o.View
	ts := v.Time()
	r.ServerName = v.ServerName()
	r.Time = &ts
	r.Sent = directionReport(v.Sent(), opts)
	r.Received = directionReport(v.Received(), opts)

	c := v.Content()
	r.Content = &ContentReport{Kind: c.Kind, Lossy: c.Lossy, Text: c.Text}
	if c.Response != nil {
		r.Content.Status = c.Response.StatusCode
		r.Content.Truncated = c.Response.Truncated
	}
	r.Claims = v.Claims()
	return r
}

func directionReport(d DirectionView, opts redaction.RenderOptions) *DirectionReport {
	text, decodeErr := redaction.Render(d.Segments, opts)
	segments := make([]SegmentReport, len(d.Segments))
	for i, s := range d.Segments {
		segments[i] = SegmentReport{Kind: s.Kind.String(), Offset: s.Offset, Length: s.Length}
	}
	return &DirectionReport{
		Length:   d.Length,
		Withheld: d.Withheld,
		Text:     text,
		Segments: segments,
		Lossy:    decodeErr != nil,
	}
}

// JSON encodes the report with indentation
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
