package message

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// fallbackContentType is used when the extension maps to nothing known.
const fallbackContentType = "application/octet-stream"

// Attachment is one file attached to an outgoing message.
type Attachment struct {
	Name string // display filename
	Path string // filesystem path
}

// NewAttachment builds an attachment for the given path. The display name
// defaults to the path's base name.
func NewAttachment(name, path string) Attachment {
	if name == "" {
		name = filepath.Base(path)
	}
	return Attachment{Name: name, Path: path}
}

// Read loads the attachment content from disk.
func (a Attachment) Read() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// ContentType infers the MIME type from the display filename's extension,
// falling back to application/octet-stream when unrecognized.
func (a Attachment) ContentType() string {
	ext := strings.ToLower(filepath.Ext(a.Name))
	if ext == "" {
		return fallbackContentType
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return fallbackContentType
	}
	// Strip charset parameters; the part header carries only the type.
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return ct
}
