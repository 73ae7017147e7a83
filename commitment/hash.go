package commitment

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Hash algorithms a header may name
const (
	HashSHA256     = "sha256"
	HashBlake2b256 = "blake2b-256"
)

const (
	leafDomain  = "tlsproof/leaf/v1"
	chainDomain = "tlsproof/chain/v1"
	emptyDomain = "tlsproof/empty/v1"

	leafPrefix byte = 0x00
	nodePrefix byte = 0x01

	// MinSaltLen is the shortest salt accepted on an opened chunk
	MinSaltLen = 16
)

type hasher struct {
	name string
	new  func() hash.Hash
}

func newHasher(algorithm string) (*hasher, error) {
	switch algorithm {
	case HashSHA256:
		return &hasher{name: algorithm, new: sha256.New}, nil
	case HashBlake2b256:
		return &hasher{name: algorithm, new: func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes
			h, _ := blake2b.New256(nil)
			return h
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func (h *hasher) size() int {
	return h.new().Size()
}

func (h *hasher) sum(parts ...[]byte) []byte {
	d := h.new()
	for _, p := range parts {
		d.Write(p)
	}
	return d.Sum(nil)
}

// leaf hashes one chunk. The salt length is framed so salt/data boundaries
// cannot be shifted.
func (h *hasher) leaf(dir Direction, start, end uint64, salt, data []byte) []byte {
	var frame [1 + 8 + 8 + 4]byte
	frame[0] = byte(dir)
	binary.BigEndian.PutUint64(frame[1:9], start)
	binary.BigEndian.PutUint64(frame[9:17], end)
	binary.BigEndian.PutUint32(frame[17:21], uint32(len(salt)))
	return h.sum([]byte{leafPrefix}, []byte(leafDomain), frame[:], salt, data)
}

func (h *hasher) node(left, right []byte) []byte {
	return h.sum([]byte{nodePrefix}, left, right)
}

func (h *hasher) empty() []byte {
	return h.sum([]byte(emptyDomain))
}

// chainDigest commits to the DER certificate chain in order
func (h *hasher) chainDigest(chain [][]byte) []byte {
	d := h.new()
	d.Write([]byte(chainDomain))
	var n [4]byte
	for _, der := range chain {
		binary.BigEndian.PutUint32(n[:], uint32(len(der)))
		d.Write(n[:])
		d.Write(der)
	}
	return d.Sum(nil)
}

// merkleRoot folds leaves pairwise; an odd node is promoted unchanged.
func (h *hasher) merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return h.empty()
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, h.node(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// ChainDigest computes the header chain digest for a DER chain
func ChainDigest(algorithm string, chain [][]byte) ([]byte, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return nil, err
	}
	return h.chainDigest(chain), nil
}
