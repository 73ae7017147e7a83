package commitment

import (
	"crypto/subtle"
	"fmt"
)

// MaxTranscriptLen bounds the committed length of one direction
const MaxTranscriptLen = 64 << 20

// Transcript is one direction of the session as the verifier sees it: the
// disclosed bytes in place, zeros at withheld positions.
type Transcript struct {
	direction Direction
	data      []byte
	withheld  RangeSet
}

// Direction returns which side of the exchange this is
func (t *Transcript) Direction() Direction {
	return t.direction
}

// Data returns a copy of the transcript buffer. Bytes inside Withheld() are
// zero and carry no meaning.
func (t *Transcript) Data() []byte {
	return append([]byte(nil), t.data...)
}

// Withheld returns the undisclosed ranges
func (t *Transcript) Withheld() RangeSet {
	return append(RangeSet(nil), t.withheld...)
}

// Len returns the committed transcript length
func (t *Transcript) Len() int {
	return len(t.data)
}

// VerifySubstrings opens proof against the verified session header and
// returns the sent and received transcripts.
func VerifySubstrings(proof *SubstringsProof, session *VerifiedSession) (*Transcript, *Transcript, error) {
	if proof == nil {
		return nil, nil, fmt.Errorf("%w: missing substrings proof", ErrSubstringMismatch)
	}
	if session == nil {
		return nil, nil, fmt.Errorf("%w: session not verified", ErrSubstringMismatch)
	}

	header := session.header
	h, err := newHasher(header.HashAlgorithm)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSubstringMismatch, err)
	}

	sent, sentLeaves, err := openDirection(h, Sent, header.SentLen, proof.Sent.Chunks)
	if err != nil {
		return nil, nil, err
	}
	recv, recvLeaves, err := openDirection(h, Received, header.RecvLen, proof.Recv.Chunks)
	if err != nil {
		return nil, nil, err
	}

	root := h.merkleRoot(append(sentLeaves, recvLeaves...))
	if subtle.ConstantTimeCompare(root, header.TranscriptRoot) != 1 {
		return nil, nil, fmt.Errorf("%w: transcript root mismatch", ErrSubstringMismatch)
	}

	for _, t := range []*Transcript{sent, recv} {
		if err := t.withheld.Validate(len(t.data)); err != nil {
			return nil, nil, fmt.Errorf("%w: %s withheld ranges: %v", ErrSubstringMismatch, t.direction, err)
		}
	}
	return sent, recv, nil
}

// openDirection checks that chunks tile [0, length), recomputes every leaf and
// assembles the disclosed buffer.
func openDirection(h *hasher, dir Direction, length uint64, chunks []Chunk) (*Transcript, [][]byte, error) {
	if length > MaxTranscriptLen {
		return nil, nil, fmt.Errorf("%w: %s transcript length %d exceeds limit", ErrSubstringMismatch, dir, length)
	}

	t := &Transcript{direction: dir, data: make([]byte, length)}
	leaves := make([][]byte, 0, len(chunks))
	digestSize := h.size()

	var cursor uint64
	for i, c := range chunks {
		if c.Start != cursor {
			return nil, nil, fmt.Errorf("%w: %s chunk %d starts at %d, expected %d", ErrSubstringMismatch, dir, i, c.Start, cursor)
		}
		if c.End <= c.Start || c.End > length {
			return nil, nil, fmt.Errorf("%w: %s chunk %d has invalid bounds [%d,%d)", ErrSubstringMismatch, dir, i, c.Start, c.End)
		}

		if c.Withheld() {
			if len(c.Salt) > 0 || len(c.Data) > 0 {
				return nil, nil, fmt.Errorf("%w: %s chunk %d is both withheld and opened", ErrSubstringMismatch, dir, i)
			}
			if len(c.Digest) != digestSize {
				return nil, nil, fmt.Errorf("%w: %s chunk %d digest has %d bytes, want %d", ErrSubstringMismatch, dir, i, len(c.Digest), digestSize)
			}
			leaves = append(leaves, c.Digest)
			t.withheld = t.withheld.add(Range{Start: int(c.Start), End: int(c.End)})
		} else {
			if len(c.Salt) < MinSaltLen {
				return nil, nil, fmt.Errorf("%w: %s chunk %d salt too short", ErrSubstringMismatch, dir, i)
			}
			if uint64(len(c.Data)) != c.End-c.Start {
				return nil, nil, fmt.Errorf("%w: %s chunk %d carries %d bytes for range [%d,%d)", ErrSubstringMismatch, dir, i, len(c.Data), c.Start, c.End)
			}
			leaves = append(leaves, h.leaf(dir, c.Start, c.End, c.Salt, c.Data))
			copy(t.data[c.Start:c.End], c.Data)
		}
		cursor = c.End
	}
	if cursor != length {
		return nil, nil, fmt.Errorf("%w: %s chunks cover %d of %d bytes", ErrSubstringMismatch, dir, cursor, length)
	}
	return t, leaves, nil
}
