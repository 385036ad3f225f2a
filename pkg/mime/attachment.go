// Package mime implements transport framing for inbound AS4 messages and
// MIME multipart/related packaging for outbound responses.
package mime

import (
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ContentSource supplies an attachment's bytes. Open may be called more
// than once; Release frees any backing resource (a temp file, typically)
// and must be called when the request's resource scope ends.
type ContentSource interface {
	Open() (io.ReadCloser, error)
	Release() error
}

// Attachment is one binary payload of a MIME message. ContentID is stored
// normalized: no angle brackets, no cid: prefix.
type Attachment struct {
	ContentID        string
	ContentType      string
	TransferEncoding string
	Headers          textproto.MIMEHeader
	Source           ContentSource
}

// Bytes reads the whole attachment content.
func (a *Attachment) Bytes() ([]byte, error) {
	rc, err := a.Source.Open()
	if err != nil {
		return nil, fmt.Errorf("opening attachment %s: %w", a.ContentID, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Release frees the attachment's backing resource.
func (a *Attachment) Release() error {
	if a.Source == nil {
		return nil
	}
	return a.Source.Release()
}

// ReleaseAll releases every attachment, keeping the first error.
func ReleaseAll(atts []*Attachment) error {
	var first error
	for _, a := range atts {
		if err := a.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewAttachment creates an in-memory attachment.
func NewAttachment(contentID, contentType string, data []byte) *Attachment {
	if contentID == "" {
		contentID = uuid.NewString() + "@as4.siros.org"
	}
	return &Attachment{
		ContentID:   NormalizeContentID(contentID),
		ContentType: contentType,
		Source:      BytesSource(data),
	}
}

// BytesSource wraps a byte slice as a ContentSource.
type BytesSource []byte

// Open implements ContentSource.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Release implements ContentSource.
func (BytesSource) Release() error { return nil }

// fileSource is a temp-file backed ContentSource; Release removes the file.
type fileSource struct {
	path string
}

func (f *fileSource) Open() (io.ReadCloser, error) { return os.Open(f.path) }

func (f *fileSource) Release() error {
	if f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	f.path = ""
	return err
}

// Factory builds attachments from inbound MIME parts. Implementations may
// buffer in memory or spool to temporary storage.
type Factory interface {
	New(header textproto.MIMEHeader, r io.Reader) (*Attachment, error)
}

// MemoryFactory buffers attachment content in memory.
type MemoryFactory struct{}

// New implements Factory.
func (MemoryFactory) New(header textproto.MIMEHeader, r io.Reader) (*Attachment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading part data: %w", err)
	}
	return attachmentFromHeader(header, BytesSource(data)), nil
}

// TempFileFactory spools attachment content to temporary files under Dir
// (or the OS default when empty). The files are removed on Release.
type TempFileFactory struct {
	Dir string
}

// New implements Factory.
func (f TempFileFactory) New(header textproto.MIMEHeader, r io.Reader) (*Attachment, error) {
	tmp, err := os.CreateTemp(f.Dir, "as4-attachment-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spooling part data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("closing temp file: %w", err)
	}
	return attachmentFromHeader(header, &fileSource{path: tmp.Name()}), nil
}

func attachmentFromHeader(header textproto.MIMEHeader, src ContentSource) *Attachment {
	return &Attachment{
		ContentID:        NormalizeContentID(header.Get("Content-ID")),
		ContentType:      header.Get("Content-Type"),
		TransferEncoding: header.Get("Content-Transfer-Encoding"),
		Headers:          header,
		Source:           src,
	}
}

// NormalizeContentID strips the cid: prefix and angle brackets so IDs from
// Content-ID headers and PartInfo href attributes compare equal.
func NormalizeContentID(contentID string) string {
	contentID = strings.TrimPrefix(contentID, "cid:")
	contentID = strings.TrimPrefix(contentID, "<")
	contentID = strings.TrimSuffix(contentID, ">")
	return contentID
}

// AddContentIDBrackets wraps an ID in angle brackets if not present.
func AddContentIDBrackets(contentID string) string {
	if !strings.HasPrefix(contentID, "<") {
		contentID = "<" + contentID
	}
	if !strings.HasSuffix(contentID, ">") {
		contentID = contentID + ">"
	}
	return contentID
}
