// Package commitment implements the session/substrings commitment scheme a
// notary uses to attest a TLS transcript: a signed session header that commits
// to a salted-hash Merkle tree over transcript chunks, and a substrings proof
// that opens some chunks while leaving others withheld.
package commitment

import "fmt"

// Version is the only artifact version this package understands
const Version = "1"

// Direction identifies one side of the TLS exchange
type Direction int

const (
	Sent     Direction = iota // client -> server
	Received                  // server -> client
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Proof is the complete artifact: the session part and the substrings part
type Proof struct {
	Version    string          `json:"version"`
	Session    SessionProof    `json:"session"`
	Substrings SubstringsProof `json:"substrings"`
}

// Header is the succinct, signed commitment to a session
type Header struct {
	Time           uint64 `json:"time"` // seconds since the Unix epoch
	ServerName     string `json:"server_name"`
	HashAlgorithm  string `json:"hash_algorithm"`
	SentLen        uint64 `json:"sent_len"`
	RecvLen        uint64 `json:"recv_len"`
	TranscriptRoot []byte `json:"transcript_root"`
	ChainDigest    []byte `json:"chain_digest"` // digest of SessionInfo.Certificates
}

// Signature is the notary's signature over the canonical header encoding
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     []byte `json:"value"`
}

// SessionInfo carries the server identity and the certificate chain the
// server presented during the handshake (leaf first, DER).
type SessionInfo struct {
	ServerName   string   `json:"server_name"`
	Certificates [][]byte `json:"certificates"`
}

// SessionProof is a session commitment that has not been verified yet
type SessionProof struct {
	Header    Header      `json:"header"`
	Signature Signature   `json:"signature"`
	Info      SessionInfo `json:"info"`
}

// SubstringsProof opens parts of both transcripts against the header root
type SubstringsProof struct {
	Sent DirectionProof `json:"sent"`
	Recv DirectionProof `json:"recv"`
}

// DirectionProof lists the chunks of one transcript direction, in order
type DirectionProof struct {
	Chunks []Chunk `json:"chunks"`
}

// Chunk covers transcript bytes [Start, End). An opened chunk carries Salt
// and Data; a withheld chunk carries only the Digest of its leaf.
type Chunk struct {
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Salt   []byte `json:"salt,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Digest []byte `json:"digest,omitempty"`
}

// Withheld reports whether the chunk is undisclosed
func (c Chunk) Withheld() bool {
	return len(c.Digest) > 0
}
