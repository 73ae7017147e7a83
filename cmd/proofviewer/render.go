package main

import (
	"fmt"
	"strings"
	"time"

	"proof-viewer/proofverifier"
	"proof-viewer/redaction"
)

// renderOutcome draws one outcome for a terminal
func renderOutcome(out *proofverifier.Outcome, opts redaction.RenderOptions) string {
	var b strings.Builder

	status := okStyle.Render("✓ " + out.State.String())
	if out.State.Failed() {
		status = failStyle.Render("✗ " + out.State.String())
	}
	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render(out.Name), status)

	if out.Err != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("error:"), out.Err.Message)
		if out.Err.Internal() {
			b.WriteString(failStyle.Render("internal fault, please report this artifact") + "\n")
		}
		return b.String()
	}

	v := out.View
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("server:"), v.ServerName())
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("time:  "), v.Time().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("key:   "), out.KeyID)

	b.WriteString(sectionStyle.Render("Sent") + "\n")
	b.WriteString(boxStyle.Render(renderSegments(v.Sent().Segments, opts)) + "\n")
	b.WriteString(sectionStyle.Render("Received") + "\n")
	b.WriteString(boxStyle.Render(renderSegments(v.Received().Segments, opts)) + "\n")

	content := v.Content()
	fmt.Fprintf(&b, "%s (%s)\n", sectionStyle.Render("Content"), content.Kind)
	if content.Text != "" {
		b.WriteString(boxStyle.Render(content.Text) + "\n")
	}

	if claims := v.Claims(); len(claims) > 0 {
		b.WriteString(sectionStyle.Render("Claims") + "\n")
		for _, c := range claims {
			name := c.Claim.Name
			if name == "" {
				name = firstNonEmpty(c.Claim.JSONPath, c.Claim.XPath, c.Claim.Regex)
			}
			if c.Matched {
				fmt.Fprintf(&b, "  %s %s\n", okStyle.Render("✓"), name)
			} else {
				fmt.Fprintf(&b, "  %s %s: %s\n", failStyle.Render("✗"), name, c.Error)
			}
		}
	}
	return b.String()
}

// renderSegments styles redactions so they cannot be mistaken for content
func renderSegments(segments []redaction.Segment, opts redaction.RenderOptions) string {
	if len(segments) == 0 {
		return labelStyle.Render("(empty)")
	}
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		text, _ := redaction.SegmentText(s, opts)
		if s.Kind == redaction.Redacted {
			text = redactedStyle.Render(text)
		} else {
			text = strings.ReplaceAll(text, "\r\n", "\n")
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
