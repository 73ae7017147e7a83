package certverify

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"go.mozilla.org/pkcs7"
)

// LoadTrustStore builds a root pool from PEM, DER or PKCS#7 files. With no
// paths the system pool is used.
func LoadTrustStore(paths []string) (*x509.CertPool, error) {
	if len(paths) == 0 {
		roots, err := x509.SystemCertPool()
		if err != nil {
			return nil, &CertificateError{
				Type:    CertErrorSystemRoots,
				Message: "failed to load system cert pool",
				Err:     err,
			}
		}
		return roots, nil
	}

	pool := x509.NewCertPool()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read trust store %s: %w", path, err)
		}
		certs, err := ParseCertificateData(data)
		if err != nil {
			return nil, fmt.Errorf("trust store %s: %w", path, err)
		}
		for _, cert := range certs {
			pool.AddCert(cert)
		}
	}
	return pool, nil
}

// ParseCertificateData attempts to parse certificate data in multiple formats:
// - DER (binary ASN.1)
// - PEM (one or more CERTIFICATE blocks)
// - PKCS7/P7B (certificate bundle format)
func ParseCertificateData(data []byte) ([]*x509.Certificate, error) {
	if cert, err := x509.ParseCertificate(data); err == nil {
		return []*x509.Certificate{cert}, nil
	}

	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid PEM certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	p7, err := pkcs7.Parse(data)
	if err == nil && len(p7.Certificates) > 0 {
		return p7.Certificates, nil
	}

	return nil, fmt.Errorf("unable to parse certificate (tried DER, PEM, and PKCS7 formats)")
}
