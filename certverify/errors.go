package certverify

import "fmt"

// CertErrorType represents different types of certificate validation errors
type CertErrorType int

const (
	CertErrorInvalidChain CertErrorType = iota
	CertErrorSystemRoots
	CertErrorVerification
	CertErrorHostnameMismatch
	CertErrorExpired
	CertErrorUntrustedRoot
	CertErrorKeyUsage
)

func (t CertErrorType) String() string {
	switch t {
	case CertErrorInvalidChain:
		return "invalid_chain"
	case CertErrorSystemRoots:
		return "system_roots"
	case CertErrorVerification:
		return "verification"
	case CertErrorHostnameMismatch:
		return "hostname_mismatch"
	case CertErrorExpired:
		return "expired"
	case CertErrorUntrustedRoot:
		return "untrusted_root"
	case CertErrorKeyUsage:
		return "key_usage"
	default:
		return fmt.Sprintf("cert_error(%d)", int(t))
	}
}

// CertificateError represents a structured certificate validation error
type CertificateError struct {
	Type    CertErrorType
	Message string
	Err     error // Underlying error if any
}

func (e *CertificateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CertificateError) Unwrap() error {
	return e.Err
}
