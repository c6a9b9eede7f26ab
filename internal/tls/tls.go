// Package tls builds server TLS configurations for the HTTPS API
// listener, either from certificate files on disk or from ACME-issued
// certificates.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// ServerConfig loads a certificate and key from PEM files and returns
// a TLS configuration suitable for an HTTPS listener.
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// CertInfo summarizes a certificate on disk.
type CertInfo struct {
	Subject  string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	DNSNames []string
}

// Inspect reads a PEM certificate file and reports its subject and
// remaining validity.
func Inspect(certFile string) (*CertInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM data in %s", certFile)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return summarize(cert), nil
}

func summarize(cert *x509.Certificate) *CertInfo {
	return &CertInfo{
		Subject:  cert.Subject.CommonName,
		Issuer:   cert.Issuer.CommonName,
		NotAfter: cert.NotAfter,
		DaysLeft: int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames: cert.DNSNames,
	}
}
