package commitment

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"time"
)

// Builder assembles a Proof on the prover side: it commits to both
// transcripts, signs the header and opens every chunk that is not withheld.
type Builder struct {
	serverName    string
	chain         [][]byte
	time          time.Time
	hashAlgorithm string
	rand          io.Reader

	data     [2][]byte
	withheld [2][]Range
}

// NewBuilder starts a proof for serverName with the handshake chain (leaf first)
func NewBuilder(serverName string, chain [][]byte) *Builder {
	return &Builder{
		serverName:    serverName,
		chain:         chain,
		time:          time.Now().UTC(),
		hashAlgorithm: HashSHA256,
		rand:          rand.Reader,
	}
}

// WithTime sets the notarization time
func (b *Builder) WithTime(t time.Time) *Builder {
	b.time = t
	return b
}

// WithHashAlgorithm selects HashSHA256 or HashBlake2b256
func (b *Builder) WithHashAlgorithm(algorithm string) *Builder {
	b.hashAlgorithm = algorithm
	return b
}

// WithRand replaces the salt source
func (b *Builder) WithRand(r io.Reader) *Builder {
	b.rand = r
	return b
}

// SetTranscript sets the full plaintext of both directions
func (b *Builder) SetTranscript(sent, recv []byte) *Builder {
	b.data[Sent] = sent
	b.data[Received] = recv
	return b
}

// Withhold marks [start, end) of one direction as undisclosed. Ranges may
// touch but not overlap.
func (b *Builder) Withhold(dir Direction, start, end int) error {
	if dir != Sent && dir != Received {
		return fmt.Errorf("invalid direction %v", dir)
	}
	if start < 0 || start >= end || end > len(b.data[dir]) {
		return fmt.Errorf("invalid %s range [%d,%d) for %d bytes", dir, start, end, len(b.data[dir]))
	}
	for _, r := range b.withheld[dir] {
		if start < r.End && r.Start < end {
			return fmt.Errorf("%s range [%d,%d) overlaps [%d,%d)", dir, start, end, r.Start, r.End)
		}
	}
	b.withheld[dir] = append(b.withheld[dir], Range{Start: start, End: end})
	return nil
}

// Build commits, signs and returns the artifact
func (b *Builder) Build(signer *Signer) (*Proof, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	h, err := newHasher(b.hashAlgorithm)
	if err != nil {
		return nil, err
	}

	var proofs [2]DirectionProof
	var leaves [][]byte
	for _, dir := range []Direction{Sent, Received} {
		chunks, dirLeaves, err := b.commitDirection(h, dir)
		if err != nil {
			return nil, err
		}
		proofs[dir] = DirectionProof{Chunks: chunks}
		leaves = append(leaves, dirLeaves...)
	}

	header := Header{
		Time:           uint64(b.time.Unix()),
		ServerName:     b.serverName,
		HashAlgorithm:  b.hashAlgorithm,
		SentLen:        uint64(len(b.data[Sent])),
		RecvLen:        uint64(len(b.data[Received])),
		TranscriptRoot: h.merkleRoot(leaves),
		ChainDigest:    h.chainDigest(b.chain),
	}
	sig, err := signer.SignHeader(&header)
	if err != nil {
		return nil, err
	}

	return &Proof{
		Version: Version,
		Session: SessionProof{
			Header:    header,
			Signature: sig,
			Info:      SessionInfo{ServerName: b.serverName, Certificates: b.chain},
		},
		Substrings: SubstringsProof{Sent: proofs[Sent], Recv: proofs[Received]},
	}, nil
}

// commitDirection cuts the direction at every withheld boundary, so each
// withheld range becomes exactly one chunk.
func (b *Builder) commitDirection(h *hasher, dir Direction) ([]Chunk, [][]byte, error) {
	data := b.data[dir]
	ranges := append([]Range(nil), b.withheld[dir]...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	var spans []Range
	var withheld []bool
	cursor := 0
	for _, r := range ranges {
		if r.Start > cursor {
			spans = append(spans, Range{Start: cursor, End: r.Start})
			withheld = append(withheld, false)
		}
		spans = append(spans, r)
		withheld = append(withheld, true)
		cursor = r.End
	}
	if cursor < len(data) {
		spans = append(spans, Range{Start: cursor, End: len(data)})
		withheld = append(withheld, false)
	}

	chunks := make([]Chunk, 0, len(spans))
	leaves := make([][]byte, 0, len(spans))
	for i, s := range spans {
		salt := make([]byte, MinSaltLen)
		if _, err := io.ReadFull(b.rand, salt); err != nil {
			return nil, nil, fmt.Errorf("failed to generate salt: %v", err)
		}
		segment := data[s.Start:s.End]
		leaf := h.leaf(dir, uint64(s.Start), uint64(s.End), salt, segment)
		leaves = append(leaves, leaf)

		chunk := Chunk{Start: uint64(s.Start), End: uint64(s.End)}
		if withheld[i] {
			chunk.Digest = leaf
		} else {
			chunk.Salt = salt
			chunk.Data = append([]byte(nil), segment...)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, leaves, nil
}
