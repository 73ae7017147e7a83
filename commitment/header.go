package commitment

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the canonical header encoding. They never change once
// assigned: signatures depend on them.
const (
	fieldTime           protowire.Number = 1
	fieldServerName     protowire.Number = 2
	fieldHashAlgorithm  protowire.Number = 3
	fieldSentLen        protowire.Number = 4
	fieldRecvLen        protowire.Number = 5
	fieldTranscriptRoot protowire.Number = 6
	fieldChainDigest    protowire.Number = 7
	fieldDomain         protowire.Number = 15

	headerDomain = "tlsproof/header/v1"
)

// MarshalCanonical returns the deterministic byte encoding the notary signs.
// Every field is always emitted, in field-number order.
func (h *Header) MarshalCanonical() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, h.Time)
	b = protowire.AppendTag(b, fieldServerName, protowire.BytesType)
	b = protowire.AppendString(b, h.ServerName)
	b = protowire.AppendTag(b, fieldHashAlgorithm, protowire.BytesType)
	b = protowire.AppendString(b, h.HashAlgorithm)
	b = protowire.AppendTag(b, fieldSentLen, protowire.VarintType)
	b = protowire.AppendVarint(b, h.SentLen)
	b = protowire.AppendTag(b, fieldRecvLen, protowire.VarintType)
	b = protowire.AppendVarint(b, h.RecvLen)
	b = protowire.AppendTag(b, fieldTranscriptRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, h.TranscriptRoot)
	b = protowire.AppendTag(b, fieldChainDigest, protowire.BytesType)
	b = protowire.AppendBytes(b, h.ChainDigest)
	b = protowire.AppendTag(b, fieldDomain, protowire.BytesType)
	b = protowire.AppendString(b, headerDomain)
	return b
}

// UnmarshalCanonical decodes bytes produced by MarshalCanonical. Unknown or
// duplicated fields are rejected so the encoding stays one-to-one.
func UnmarshalCanonical(b []byte) (*Header, error) {
	h := &Header{}
	seen := make(map[protowire.Number]bool)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid header tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		if seen[num] {
			return nil, fmt.Errorf("duplicate header field %d", num)
		}
		seen[num] = true

		switch {
		case typ == protowire.VarintType && (num == fieldTime || num == fieldSentLen || num == fieldRecvLen):
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("invalid header field %d: %v", num, protowire.ParseError(m))
			}
			b = b[m:]
			switch num {
			case fieldTime:
				h.Time = v
			case fieldSentLen:
				h.SentLen = v
			case fieldRecvLen:
				h.RecvLen = v
			}
		case typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("invalid header field %d: %v", num, protowire.ParseError(m))
			}
			b = b[m:]
			switch num {
			case fieldServerName:
				h.ServerName = string(v)
			case fieldHashAlgorithm:
				h.HashAlgorithm = string(v)
			case fieldTranscriptRoot:
				h.TranscriptRoot = append([]byte(nil), v...)
			case fieldChainDigest:
				h.ChainDigest = append([]byte(nil), v...)
			case fieldDomain:
				if string(v) != headerDomain {
					return nil, fmt.Errorf("unexpected header domain %q", v)
				}
			default:
				return nil, fmt.Errorf("unknown header field %d", num)
			}
		default:
			return nil, fmt.Errorf("unknown header field %d (wire type %d)", num, typ)
		}
	}
	if !seen[fieldDomain] {
		return nil, fmt.Errorf("header domain missing")
	}
	return h, nil
}

// Timestamp converts the header time to a UTC calendar time
func (h *Header) Timestamp() time.Time {
	return time.Unix(int64(h.Time), 0).UTC()
}

func (h *Header) clone() Header {
	c := *h
	c.TranscriptRoot = append([]byte(nil), h.TranscriptRoot...)
	c.ChainDigest = append([]byte(nil), h.ChainDigest...)
	return c
}
