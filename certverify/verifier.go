// Package certverify validates the certificate chain a server presented in a
// notarized session against a trust store.
package certverify

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxChainLength bounds attacker-supplied chains
const maxChainLength = 10

// Verifier checks chains against a fixed root pool
type Verifier struct {
	roots  *x509.CertPool
	logger *zap.Logger
}

// NewVerifier creates a verifier over roots. A nil logger disables logging.
func NewVerifier(roots *x509.CertPool, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{roots: roots, logger: logger.With(zap.String("component", "certverify"))}
}

// VerifyChain performs certificate validation including:
// - Chain signature validation up to a trusted root
// - Hostname verification
// - Validity at time at (the notarization time, not now)
// - Server authentication key usage
func (v *Verifier) VerifyChain(chain [][]byte, serverName string, at time.Time) error {
	if len(chain) == 0 {
		return &CertificateError{Type: CertErrorInvalidChain, Message: "no certificates provided"}
	}
	if len(chain) > maxChainLength {
		return &CertificateError{
			Type:    CertErrorInvalidChain,
			Message: fmt.Sprintf("certificate chain too long (%d, max %d)", len(chain), maxChainLength),
		}
	}
	if v.roots == nil {
		return &CertificateError{Type: CertErrorSystemRoots, Message: "no trust store configured"}
	}

	certs := make([]*x509.Certificate, 0, len(chain))
	for i, der := range chain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return &CertificateError{
				Type:    CertErrorInvalidChain,
				Message: fmt.Sprintf("failed to parse certificate %d", i),
				Err:     err,
			}
		}
		certs = append(certs, cert)
	}

	leafCert := certs[0]

	// Server certificate must be valid for server authentication
	if len(leafCert.ExtKeyUsage) > 0 {
		validUsage := false
		for _, usage := range leafCert.ExtKeyUsage {
			if usage == x509.ExtKeyUsageServerAuth || usage == x509.ExtKeyUsageAny {
				validUsage = true
				break
			}
		}
		if !validUsage {
			return &CertificateError{
				Type:    CertErrorKeyUsage,
				Message: "server certificate not valid for server authentication",
			}
		}
	}

	if leafCert.KeyUsage != 0 && leafCert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		v.logger.Warn("Server certificate missing digitalSignature key usage",
			zap.String("key_usage", fmt.Sprintf("0x%x", leafCert.KeyUsage)))
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		DNSName:       serverName, // RFC 6125 hostname verification
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	chains, err := leafCert.Verify(opts)
	if err != nil {
		v.logger.Debug("Certificate chain rejected",
			zap.String("server_name", serverName),
			zap.String("subject", leafCert.Subject.String()),
			zap.Error(err))
		return classify(err, serverName)
	}
	if len(chains) == 0 {
		return &CertificateError{Type: CertErrorInvalidChain, Message: "no valid certificate chains found"}
	}
	return nil
}

func classify(err error, serverName string) *CertificateError {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return &CertificateError{
			Type:    CertErrorHostnameMismatch,
			Message: fmt.Sprintf("certificate is not valid for %s", serverName),
			Err:     err,
		}
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) && invalidErr.Reason == x509.Expired {
		return &CertificateError{
			Type:    CertErrorExpired,
			Message: "certificate not valid at notarization time",
			Err:     err,
		}
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) {
		return &CertificateError{
			Type:    CertErrorUntrustedRoot,
			Message: "certificate chain does not lead to a trusted root",
			Err:     err,
		}
	}
	return &CertificateError{
		Type:    CertErrorVerification,
		Message: fmt.Sprintf("certificate verification failed for %s", serverName),
		Err:     err,
	}
}
