// Package dnscheck verifies a sending domain's deliverability DNS
// records before a bulk run: bad SPF or a missing DKIM key puts every
// message of the run into spam folders.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Status classifies one record check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
	StatusNotFound Status = "not_found"
)

// ErrInvalidDomain is returned for malformed domain names.
var ErrInvalidDomain = errors.New("invalid domain name")

// domainPattern validates domain name format (RFC 1035)
var domainPattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Check is the result of probing one record type.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report aggregates the checks for one sending domain.
type Report struct {
	Domain string  `json:"domain"`
	Checks []Check `json:"checks"`
}

// Passed reports whether no check ended in an error. Warnings and
// missing optional records do not fail the preflight.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Lookuper is the subset of net.Resolver the checker relies on.
type Lookuper interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Checker probes deliverability records for sending domains.
type Checker struct {
	lookup Lookuper
}

// NewChecker creates a checker backed by the system resolver.
func NewChecker() *Checker {
	return &Checker{lookup: net.DefaultResolver}
}

// Run checks MX, SPF, DKIM and DMARC records for the domain. selector
// may be empty to skip the DKIM probe.
func (c *Checker) Run(ctx context.Context, domain, selector string) (*Report, error) {
	if err := validateDomain(domain); err != nil {
		return nil, err
	}

	report := &Report{Domain: domain}
	report.Checks = append(report.Checks, c.checkMX(ctx, domain))
	report.Checks = append(report.Checks, c.checkSPF(ctx, domain))
	if selector != "" {
		report.Checks = append(report.Checks, c.checkDKIM(ctx, domain, selector))
	}
	report.Checks = append(report.Checks, c.checkDMARC(ctx, domain))
	return report, nil
}

func validateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainPattern.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// checkMX verifies the domain can receive replies and bounces.
func (c *Checker) checkMX(ctx context.Context, domain string) Check {
	check := Check{Name: "MX"}

	records, err := c.lookup.LookupMX(ctx, domain)
	if notFound(err) || (err == nil && len(records) == 0) {
		check.Status = StatusNotFound
		check.Message = "No MX records; replies and bounces will not be delivered"
		return check
	}
	if err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("Lookup failed: %v", err)
		return check
	}

	hosts := make([]string, len(records))
	for i, mx := range records {
		hosts[i] = fmt.Sprintf("%s (priority %d)", strings.TrimSuffix(mx.Host, "."), mx.Pref)
	}
	check.Status = StatusOK
	check.Value = strings.Join(hosts, ", ")
	return check
}

func (c *Checker) checkSPF(ctx context.Context, domain string) Check {
	check := Check{Name: "SPF"}

	records, err := c.lookup.LookupTXT(ctx, domain)
	if notFound(err) {
		check.Status = StatusNotFound
		check.Message = "No SPF record; add one authorizing your SMTP host"
		return check
	}
	if err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("Lookup failed: %v", err)
		return check
	}

	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		check.Value = txt
		switch {
		case strings.Contains(txt, "+all"):
			check.Status = StatusWarning
			check.Message = "SPF allows any sender (+all); use ~all or -all"
		case strings.Contains(txt, "-all"):
			check.Status = StatusOK
			check.Message = "Strict policy (-all)"
		case strings.Contains(txt, "~all"):
			check.Status = StatusOK
			check.Message = "Soft fail policy (~all)"
		default:
			check.Status = StatusOK
		}
		return check
	}

	check.Status = StatusNotFound
	check.Message = "No SPF record; add one authorizing your SMTP host"
	return check
}

func (c *Checker) checkDKIM(ctx context.Context, domain, selector string) Check {
	check := Check{Name: fmt.Sprintf("DKIM (%s._domainkey)", selector)}

	records, err := c.lookup.LookupTXT(ctx, fmt.Sprintf("%s._domainkey.%s", selector, domain))
	if notFound(err) {
		check.Status = StatusNotFound
		check.Message = fmt.Sprintf("No DKIM record for selector %q; run 'sheetmail dkim generate'", selector)
		return check
	}
	if err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("Lookup failed: %v", err)
		return check
	}

	// Long keys come back as split TXT strings
	record := strings.Join(records, "")
	check.Value = truncate(record, 100)

	if !strings.Contains(record, "v=DKIM1") {
		check.Status = StatusWarning
		check.Message = "TXT record is not a DKIM record"
		return check
	}
	if !strings.Contains(record, "p=") {
		check.Status = StatusWarning
		check.Message = "DKIM record has no public key (p=)"
		return check
	}

	check.Status = StatusOK
	return check
}

func (c *Checker) checkDMARC(ctx context.Context, domain string) Check {
	check := Check{Name: "DMARC"}

	records, err := c.lookup.LookupTXT(ctx, "_dmarc."+domain)
	if notFound(err) {
		check.Status = StatusNotFound
		check.Message = "No DMARC record (recommended for bulk senders)"
		return check
	}
	if err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("Lookup failed: %v", err)
		return check
	}

	record := strings.Join(records, "")
	check.Value = record

	if !strings.HasPrefix(record, "v=DMARC1") {
		check.Status = StatusWarning
		check.Message = "TXT record is not a DMARC record"
		return check
	}

	switch {
	case strings.Contains(record, "p=reject"):
		check.Status = StatusOK
		check.Message = "Reject policy"
	case strings.Contains(record, "p=quarantine"):
		check.Status = StatusOK
		check.Message = "Quarantine policy"
	case strings.Contains(record, "p=none"):
		check.Status = StatusWarning
		check.Message = "Monitoring-only policy (p=none)"
	default:
		check.Status = StatusOK
	}
	return check
}

func notFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
