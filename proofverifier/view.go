package proofverifier

import (
	"time"

	"proof-viewer/commitment"
	"proof-viewer/providers"
	"proof-viewer/redaction"
)

// DirectionView is the renderable form of one transcript direction
type DirectionView struct {
	Direction commitment.Direction
	Length    int
	Withheld  int
	Segments  []redaction.Segment
}

// View is what a rendering surface may show. It has no exported
// constructor: the pipeline builds one only after both the session and the
// substrings verified, so holding a View implies verification succeeded.
type View struct {
	serverName string
	time       time.Time
	sent       DirectionView
	received   DirectionView
	content    providers.Content
	claims     []providers.ClaimResult
}

// ServerName is the server identity the certificate chain was checked against
func (v *View) ServerName() string { return v.serverName }

// Time is when the notary signed the session
func (v *View) Time() time.Time { return v.time }

// Sent is the request direction
func (v *View) Sent() DirectionView { return v.sent }

// Received is the response direction
func (v *View) Received() DirectionView { return v.received }

// Content is the received direction classified over disclosed bytes only
func (v *View) Content() providers.Content { return v.content }

// Claims holds claim results, nil when no claims were configured
func (v *View) Claims() []providers.ClaimResult { return v.claims }

// buildView segments both transcripts and classifies the disclosed part of
// the received one. Withheld bytes never reach the classifier: it sees the
// concatenation of disclosed segments only.
func buildView(session *commitment.VerifiedSession, sent, recv *commitment.Transcript, claims []providers.Claim) (*View, error) {
	sentView, err := directionView(sent)
	if err != nil {
		return nil, err
	}
	recvView, err := directionView(recv)
	if err != nil {
		return nil, err
	}

	disclosed := redaction.DisclosedView(recvView.Segments)
	content := providers.Classify(disclosed.Data)

	var results []providers.ClaimResult
	if len(claims) > 0 {
		results = providers.EvaluateClaims(content, claims, disclosed)
	}

	return &View{
		serverName: session.ServerName(),
		time:       session.Time(),
		sent:       sentView,
		received:   recvView,
		content:    content,
		claims:     results,
	}, nil
}

func directionView(t *commitment.Transcript) (DirectionView, error) {
	withheld := t.Withheld()
	ranges := make([]redaction.Range, len(withheld))
	for i, r := range withheld {
		ranges[i] = redaction.Range{Start: r.Start, End: r.End}
	}

	segments, err := redaction.Segments(t.Data(), ranges)
	if err != nil {
		return DirectionView{}, err
	}
	return DirectionView{
		Direction: t.Direction(),
		Length:    t.Len(),
		Withheld:  withheld.Len(),
		Segments:  segments,
	}, nil
}
