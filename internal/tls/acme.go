package tls

import (
	"crypto/tls"
	"net/http"

	"golang.org/x/crypto/acme/autocert"
)

// Manager obtains and renews certificates through an ACME provider
// (Let's Encrypt by default) and caches them on disk.
type Manager struct {
	inner   *autocert.Manager
	domains []string
}

// NewManager creates an ACME certificate manager restricted to the
// given domains. Certificates are cached under cacheDir.
func NewManager(email string, domains []string, cacheDir string) *Manager {
	return &Manager{
		inner: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      email,
			HostPolicy: autocert.HostWhitelist(domains...),
			Cache:      autocert.DirCache(cacheDir),
		},
		domains: domains,
	}
}

// ServerConfig returns a TLS configuration that fetches certificates
// on demand, renewing them before expiry.
func (m *Manager) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.inner.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// ChallengeHandler answers HTTP-01 challenges. It must be reachable on
// port 80 of every configured domain for issuance to succeed.
func (m *Manager) ChallengeHandler() http.Handler {
	return m.inner.HTTPHandler(nil)
}

// Domains returns the domains the manager will issue certificates for.
func (m *Manager) Domains() []string {
	return m.domains
}
