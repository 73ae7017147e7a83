package shared

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature algorithms a notary may use to sign a session header
const (
	AlgorithmP256SHA256   = "p256-sha256"   // ECDSA P-256 over SHA-256, ASN.1 signature
	AlgorithmSecp256k1ETH = "secp256k1-eth" // Ethereum personal-message signature, 65 bytes
)

// TrustedKey is the notary public key a proof must be signed with.
// Exactly one of P256 / Address is meaningful, selected by Algorithm.
type TrustedKey struct {
	algorithm string
	p256      *ecdsa.PublicKey
	address   common.Address
	source    string
}

// ParseTrustedKey accepts a PEM "PUBLIC KEY" (P-256), an Ethereum address
// (0x + 40 hex) or a hex-encoded secp256k1 public key (compressed or not).
func ParseTrustedKey(value string) (*TrustedKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty public key")
	}

	if strings.HasPrefix(value, "-----BEGIN") {
		block, _ := pem.Decode([]byte(value))
		if block == nil {
			return nil, errors.New("invalid PEM block")
		}
		if block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("unexpected PEM type %q, want PUBLIC KEY", block.Type)
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %v", err)
		}
		ecKey, ok := parsed.(*ecdsa.PublicKey)
		if !ok || ecKey.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported public key type %T, want ECDSA P-256", parsed)
		}
		return &TrustedKey{algorithm: AlgorithmP256SHA256, p256: ecKey, source: "pem"}, nil
	}

	if common.IsHexAddress(value) {
		return &TrustedKey{
			algorithm: AlgorithmSecp256k1ETH,
			address:   common.HexToAddress(value),
			source:    "address",
		}, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, fmt.Errorf("unrecognised public key encoding: %v", err)
	}
	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	case 65:
		pub, err = crypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("invalid secp256k1 public key length %d", len(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse secp256k1 public key: %v", err)
	}
	return &TrustedKey{
		algorithm: AlgorithmSecp256k1ETH,
		address:   crypto.PubkeyToAddress(*pub),
		source:    "secp256k1",
	}, nil
}

// LoadTrustedKey reads a key from a value that is either the key itself or a
// path to a file holding it.
func LoadTrustedKey(value string) (*TrustedKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" && !strings.HasPrefix(trimmed, "-----BEGIN") && !strings.HasPrefix(trimmed, "0x") {
		if data, err := os.ReadFile(trimmed); err == nil {
			return ParseTrustedKey(string(data))
		}
	}
	return ParseTrustedKey(trimmed)
}

// TrustedKeyFromP256 wraps an in-memory P-256 key
func TrustedKeyFromP256(pub *ecdsa.PublicKey) *TrustedKey {
	return &TrustedKey{algorithm: AlgorithmP256SHA256, p256: pub, source: "memory"}
}

// TrustedKeyFromAddress wraps an Ethereum address
func TrustedKeyFromAddress(addr common.Address) *TrustedKey {
	return &TrustedKey{algorithm: AlgorithmSecp256k1ETH, address: addr, source: "memory"}
}

// Algorithm returns the signature algorithm this key verifies
func (k *TrustedKey) Algorithm() string {
	return k.algorithm
}

// Fingerprint identifies the key in logs and reports
func (k *TrustedKey) Fingerprint() string {
	switch k.algorithm {
	case AlgorithmP256SHA256:
		der, err := x509.MarshalPKIXPublicKey(k.p256)
		if err != nil {
			return "invalid"
		}
		sum := sha256.Sum256(der)
		return "sha256:" + hex.EncodeToString(sum[:8])
	case AlgorithmSecp256k1ETH:
		return k.address.Hex()
	default:
		return "unknown"
	}
}

// Encode returns the key in a form ParseTrustedKey accepts: PEM for P-256,
// the checksummed address for secp256k1.
func (k *TrustedKey) Encode() (string, error) {
	switch k.algorithm {
	case AlgorithmP256SHA256:
		der, err := x509.MarshalPKIXPublicKey(k.p256)
		if err != nil {
			return "", fmt.Errorf("failed to marshal public key: %v", err)
		}
		return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
	case AlgorithmSecp256k1ETH:
		return k.address.Hex(), nil
	default:
		return "", fmt.Errorf("unsupported key algorithm: %s", k.algorithm)
	}
}

// Verify checks signature over message with this key. The algorithm named by
// the signer must match the key's algorithm.
func (k *TrustedKey) Verify(algorithm string, message, signature []byte) error {
	if algorithm != k.algorithm {
		return fmt.Errorf("signature algorithm %q does not match trusted key algorithm %q", algorithm, k.algorithm)
	}

	switch k.algorithm {
	case AlgorithmP256SHA256:
		hash := sha256.Sum256(message)
		if !ecdsa.VerifyASN1(k.p256, hash[:], signature) {
			return errors.New("ECDSA signature verification failed")
		}
		return nil
	case AlgorithmSecp256k1ETH:
		return VerifyEthSignature(message, signature, k.address)
	default:
		return fmt.Errorf("unsupported verification algorithm: %s", k.algorithm)
	}
}

// VerifyEthSignature verifies an Ethereum-style signature against the given data and address
func VerifyEthSignature(data []byte, signature []byte, expectedAddress common.Address) error {
	if len(signature) != 65 {
		return fmt.Errorf("invalid ETH signature length: expected 65 bytes, got %d", len(signature))
	}

	// Standard Ethereum message signing (includes prefix)
	hash := accounts.TextHash(data)

	recoveredPubKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return fmt.Errorf("failed to recover public key from signature: %v", err)
	}

	recoveredAddress := crypto.PubkeyToAddress(*recoveredPubKey)
	if recoveredAddress != expectedAddress {
		return fmt.Errorf("signature verification failed: expected address %s, got %s",
			expectedAddress.Hex(), recoveredAddress.Hex())
	}

	return nil
}

// KeyStore holds the process-wide active trusted key. Replacing the key never
// affects an attempt that already captured the previous value.
type KeyStore struct {
	current atomic.Pointer[TrustedKey]
}

// NewKeyStore creates a store with an initial key
func NewKeyStore(initial *TrustedKey) *KeyStore {
	ks := &KeyStore{}
	ks.current.Store(initial)
	return ks
}

// Load returns the key active right now
func (ks *KeyStore) Load() *TrustedKey {
	return ks.current.Load()
}

// Set replaces the active key
func (ks *KeyStore) Set(key *TrustedKey) error {
	if key == nil {
		return errors.New("nil trusted key")
	}
	ks.current.Store(key)
	return nil
}
