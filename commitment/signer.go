package commitment

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"proof-viewer/shared"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the notary side: it signs canonical session headers
type Signer struct {
	privateKey *ecdsa.PrivateKey
	algorithm  string // shared.AlgorithmP256SHA256 or shared.AlgorithmSecp256k1ETH
}

// NewSigner picks the algorithm from the key's curve
func NewSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}
	switch privateKey.Curve {
	case elliptic.P256():
		return &Signer{privateKey: privateKey, algorithm: shared.AlgorithmP256SHA256}, nil
	case crypto.S256():
		return &Signer{privateKey: privateKey, algorithm: shared.AlgorithmSecp256k1ETH}, nil
	default:
		return nil, fmt.Errorf("unsupported curve %s", privateKey.Curve.Params().Name)
	}
}

// GenerateP256Signer creates a signer with a fresh P-256 key
func GenerateP256Signer() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-256 key: %v", err)
	}
	return NewSigner(key)
}

// GenerateEthSigner creates a signer with a fresh secp256k1 key
func GenerateEthSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %v", err)
	}
	return NewSigner(key)
}

// Algorithm returns the signature algorithm name written into proofs
func (s *Signer) Algorithm() string {
	return s.algorithm
}

// TrustedKey returns the verifying counterpart of this signer
func (s *Signer) TrustedKey() *shared.TrustedKey {
	if s.algorithm == shared.AlgorithmSecp256k1ETH {
		return shared.TrustedKeyFromAddress(crypto.PubkeyToAddress(s.privateKey.PublicKey))
	}
	return shared.TrustedKeyFromP256(&s.privateKey.PublicKey)
}

// Sign signs message
func (s *Signer) Sign(message []byte) ([]byte, error) {
	switch s.algorithm {
	case shared.AlgorithmP256SHA256:
		hash := sha256.Sum256(message)
		sig, err := ecdsa.SignASN1(rand.Reader, s.privateKey, hash[:])
		if err != nil {
			return nil, fmt.Errorf("failed to sign with ECDSA: %v", err)
		}
		return sig, nil
	case shared.AlgorithmSecp256k1ETH:
		// Standard Ethereum message signing (includes prefix), 65-byte signature
		sig, err := crypto.Sign(accounts.TextHash(message), s.privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign data with ETH style: %v", err)
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", s.algorithm)
	}
}

// SignHeader signs the canonical encoding of header
func (s *Signer) SignHeader(header *Header) (Signature, error) {
	value, err := s.Sign(header.MarshalCanonical())
	if err != nil {
		return Signature{}, err
	}
	return Signature{Algorithm: s.algorithm, Value: value}, nil
}
