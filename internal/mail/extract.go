// Package mail provides email address extraction and related helpers.
package mail

import (
	"regexp"
	"strings"
)

// addressPattern matches an email-shaped substring inside free text.
// Deliberately permissive: the contact column often holds phone numbers,
// names and addresses around the email itself.
var addressPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// Extract locates the first syntactically valid email address in raw.
// Returns the trimmed match and true, or "" and false when raw contains
// no email-shaped substring. This is not RFC 5322 validation.
func Extract(raw string) (string, bool) {
	m := addressPattern.FindString(raw)
	if m == "" {
		return "", false
	}
	return strings.TrimSpace(m), true
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the address has no domain part.
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
