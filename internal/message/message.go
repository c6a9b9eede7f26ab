// Package message constructs RFC 5322 email data for submission.
package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/textproto"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sheetmail/sheetmail/internal/mail"
)

// Message is one outgoing email.
type Message struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment

	// Headers holds extra headers written after the standard set.
	// Standard header names (From, To, Subject, Date, Message-ID,
	// MIME-Version, Content-Type) cannot be overridden here.
	Headers map[string]string
}

// Encode renders the message as RFC 5322 data ready for the DATA command.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer

	// Headers
	buf.WriteString(fmt.Sprintf("From: %s\r\n", m.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeHeader(m.Subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), messageIDDomain(m.From)))
	buf.WriteString("MIME-Version: 1.0\r\n")

	for _, name := range sortedHeaderNames(m.Headers) {
		if reservedHeader(name) {
			continue
		}
		buf.WriteString(fmt.Sprintf("%s: %s\r\n", name, encodeHeader(m.Headers[name])))
	}

	if len(m.Attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.HTML)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	}

	boundary := uuid.New().String()
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	// HTML body part
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(m.HTML)
	buf.WriteString("\r\n")

	// Attachment parts
	for _, att := range m.Attachments {
		data, err := att.Read()
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", att.Name, err)
		}

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString(fmt.Sprintf("Content-Type: %s; name=\"%s\"\r\n", att.ContentType(), att.Name))
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", att.Name))
		buf.WriteString("\r\n")
		writeBase64(&buf, data)
		buf.WriteString("\r\n")
	}

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return buf.Bytes(), nil
}

// writeBase64 writes base64 data wrapped at 76 characters per RFC 2045.
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if len(encoded) > 0 {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
}

// encodeHeader RFC 2047-encodes a header value when it carries non-ASCII
// characters; plain ASCII values pass through untouched.
func encodeHeader(s string) string {
	ascii := true
	for _, r := range s {
		if r > 127 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	return "=?utf-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
}

// sortedHeaderNames returns the header names in stable order so the
// encoded output is deterministic.
func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func reservedHeader(name string) bool {
	switch textproto.CanonicalMIMEHeaderKey(name) {
	case "From", "To", "Subject", "Date", "Message-Id", "Mime-Version", "Content-Type":
		return true
	}
	return false
}

func messageIDDomain(from string) string {
	if d := mail.ExtractDomain(from); d != "" {
		return d
	}
	return "localhost"
}
