package message

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncodePlain(t *testing.T) {
	m := &Message{
		From:    "sender@example.com",
		To:      "dest@example.org",
		Subject: "Hello",
		HTML:    "<p>Hi there</p>",
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	s := string(data)
	for _, want := range []string{
		"From: sender@example.com\r\n",
		"To: dest@example.org\r\n",
		"Subject: Hello\r\n",
		"Content-Type: text/html; charset=utf-8\r\n",
		"<p>Hi there</p>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded message missing %q", want)
		}
	}
	if strings.Contains(s, "multipart/mixed") {
		t.Error("message without attachments should not be multipart")
	}
}

func TestEncodeExtraHeaders(t *testing.T) {
	m := &Message{
		From:    "sender@example.com",
		To:      "dest@example.org",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Headers: map[string]string{
			"List-Unsubscribe": "<mailto:stop@example.com>",
			"X-Campaign":       "spring",
			"From":             "spoof@evil.example", // reserved, must be dropped
		},
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	s := string(data)
	if !strings.Contains(s, "List-Unsubscribe: <mailto:stop@example.com>\r\n") {
		t.Error("List-Unsubscribe header missing")
	}
	if !strings.Contains(s, "X-Campaign: spring\r\n") {
		t.Error("X-Campaign header missing")
	}
	if strings.Contains(s, "spoof@evil.example") {
		t.Error("reserved From header was not dropped")
	}
}

func TestEncodeSubjectNonASCII(t *testing.T) {
	m := &Message{
		From:    "a@example.com",
		To:      "b@example.com",
		Subject: "Партнёрство",
		HTML:    "<p>x</p>",
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Contains(data, []byte("Subject: =?utf-8?B?")) {
		t.Error("non-ASCII subject should be RFC 2047 encoded")
	}
}

func TestEncodeWithAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offer.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644); err != nil {
		t.Fatal(err)
	}

	m := &Message{
		From:        "a@example.com",
		To:          "b@example.com",
		Subject:     "Attached",
		HTML:        "<p>see attached</p>",
		Attachments: []Attachment{NewAttachment("", path)},
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	s := string(data)
	for _, want := range []string{
		"Content-Type: multipart/mixed; boundary=",
		"Content-Type: application/pdf; name=\"offer.pdf\"",
		"Content-Transfer-Encoding: base64",
		"Content-Disposition: attachment; filename=\"offer.pdf\"",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded message missing %q", want)
		}
	}
}

func TestEncodeMissingAttachment(t *testing.T) {
	m := &Message{
		From:        "a@example.com",
		To:          "b@example.com",
		Subject:     "x",
		HTML:        "<p>x</p>",
		Attachments: []Attachment{NewAttachment("gone.bin", "/nonexistent/gone.bin")},
	}

	if _, err := m.Encode(); err == nil {
		t.Error("Encode() with unreadable attachment should fail")
	}
}

func TestAttachmentContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", "application/pdf"},
		{"photo.JPG", "image/jpeg"},
		{"page.html", "text/html"},
		{"data.unknownext", fallbackContentType},
		{"noextension", fallbackContentType},
	}

	for _, tt := range tests {
		a := Attachment{Name: tt.name}
		if got := a.ContentType(); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewAttachmentDefaultsName(t *testing.T) {
	a := NewAttachment("", "/tmp/files/list.xlsx")
	if a.Name != "list.xlsx" {
		t.Errorf("Name = %q, want list.xlsx", a.Name)
	}
}
