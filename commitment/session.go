package commitment

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"time"
)

// Failure classes returned by the verifiers. Every error wraps exactly one.
var (
	ErrSignatureInvalid  = errors.New("invalid session signature")
	ErrIdentityInvalid   = errors.New("invalid server identity")
	ErrSubstringMismatch = errors.New("substrings proof does not match session")
)

// VerifyingKey checks a notary signature. shared.TrustedKey implements it.
type VerifyingKey interface {
	Algorithm() string
	Verify(algorithm string, message, signature []byte) error
}

// ChainVerifier validates a DER certificate chain for serverName at a point
// in time. certverify.Verifier implements it.
type ChainVerifier interface {
	VerifyChain(chain [][]byte, serverName string, at time.Time) error
}

// VerifiedSession is a session commitment whose signature and server identity
// have been checked. It can only be obtained from VerifySession.
type VerifiedSession struct {
	header     Header
	serverName string
	time       time.Time
}

// Header returns a copy of the verified header
func (vs *VerifiedSession) Header() Header {
	return vs.header.clone()
}

// ServerName is the server identity validated against the certificate chain
func (vs *VerifiedSession) ServerName() string {
	return vs.serverName
}

// Time is the notarization time in UTC
func (vs *VerifiedSession) Time() time.Time {
	return vs.time
}

// VerifySession checks the header signature with key and then the embedded
// server identity against chains. It is deterministic: the certificate chain
// is evaluated at the header time, never at wall-clock time.
func VerifySession(proof *SessionProof, key VerifyingKey, chains ChainVerifier) (*VerifiedSession, error) {
	if proof == nil {
		return nil, fmt.Errorf("%w: missing session proof", ErrSignatureInvalid)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no trusted key", ErrSignatureInvalid)
	}
	if len(proof.Signature.Value) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrSignatureInvalid)
	}

	message := proof.Header.MarshalCanonical()
	if err := key.Verify(proof.Signature.Algorithm, message, proof.Signature.Value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if err := verifyIdentity(proof, chains); err != nil {
		return nil, err
	}

	return &VerifiedSession{
		header:     proof.Header.clone(),
		serverName: proof.Header.ServerName,
		time:       proof.Header.Timestamp(),
	}, nil
}

func verifyIdentity(proof *SessionProof, chains ChainVerifier) error {
	header := &proof.Header

	if header.Time > math.MaxInt64 {
		return fmt.Errorf("%w: session time %d out of range", ErrIdentityInvalid, header.Time)
	}
	if header.ServerName == "" {
		return fmt.Errorf("%w: empty server name", ErrIdentityInvalid)
	}
	if proof.Info.ServerName != header.ServerName {
		return fmt.Errorf("%w: server name %q does not match committed name %q",
			ErrIdentityInvalid, proof.Info.ServerName, header.ServerName)
	}
	if len(proof.Info.Certificates) == 0 {
		return fmt.Errorf("%w: no certificate chain", ErrIdentityInvalid)
	}

	h, err := newHasher(header.HashAlgorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityInvalid, err)
	}
	digest := h.chainDigest(proof.Info.Certificates)
	if subtle.ConstantTimeCompare(digest, header.ChainDigest) != 1 {
		return fmt.Errorf("%w: certificate chain does not match committed digest", ErrIdentityInvalid)
	}

	if chains == nil {
		return fmt.Errorf("%w: no certificate verifier configured", ErrIdentityInvalid)
	}
	if err := chains.VerifyChain(proof.Info.Certificates, header.ServerName, header.Timestamp()); err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityInvalid, err)
	}
	return nil
}
