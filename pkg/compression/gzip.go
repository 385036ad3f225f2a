// Package compression implements AS4 payload compression (application/gzip)
// and its reversal on the receiving side.
//
// Decompression is lazy: attachment sources are wrapped so that inflation
// happens on read, and a corrupt stream surfaces as ErrDecompression, never
// as a generic I/O failure.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
)

// TypeGzip is the only compression type the AS4 profile defines.
const TypeGzip = "application/gzip"

// ErrDecompression marks a corrupt or truncated compressed payload. It maps
// to the DecompressionFailure protocol error.
var ErrDecompression = errors.New("decompression failure")

// Compress gzips data. Used when building pull-response payloads and by
// round-trip tests.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore reverses the declared compression of each attachment. modes maps
// normalized content IDs to compression types; partInfos supply the
// original MimeType part property. Matching between content IDs and
// PartInfo hrefs is by substring, since the cid: and attachment= prefixes
// are stripped differently on each side of the wire.
//
// The returned attachments share the input order. Attachments without a
// declared compression mode pass through untouched.
func Restore(atts []*mime.Attachment, modes map[string]string, partInfos []message.PartInfo) []*mime.Attachment {
	if len(modes) == 0 {
		return atts
	}

	out := make([]*mime.Attachment, len(atts))
	for i, att := range atts {
		mode, ok := lookupMode(modes, att.ContentID)
		if !ok || mode != TypeGzip {
			out[i] = att
			continue
		}

		restored := &mime.Attachment{
			ContentID:        att.ContentID,
			ContentType:      restoredMimeType(att, partInfos),
			TransferEncoding: att.TransferEncoding,
			Headers:          att.Headers,
			Source:           &gzipSource{inner: att.Source},
		}
		out[i] = restored
	}
	return out
}

// lookupMode finds the compression mode for a content ID by substring
// match in either direction.
func lookupMode(modes map[string]string, contentID string) (string, bool) {
	if mode, ok := modes[contentID]; ok {
		return mode, true
	}
	for id, mode := range modes {
		if id == "" || contentID == "" {
			continue
		}
		if strings.Contains(id, contentID) || strings.Contains(contentID, id) {
			return mode, true
		}
	}
	return "", false
}

// restoredMimeType looks up the original MimeType part property for the
// attachment, falling back to the wire content type.
func restoredMimeType(att *mime.Attachment, partInfos []message.PartInfo) string {
	for _, pi := range partInfos {
		href := mime.NormalizeContentID(pi.Href)
		if href == "" {
			continue
		}
		if !strings.Contains(href, att.ContentID) && !strings.Contains(att.ContentID, href) {
			continue
		}
		if mt, ok := pi.Property(message.PartPropMimeType); ok {
			return mt
		}
	}
	return att.ContentType
}

// gzipSource decorates a ContentSource with on-read gzip inflation.
type gzipSource struct {
	inner mime.ContentSource
}

func (g *gzipSource) Open() (io.ReadCloser, error) {
	rc, err := g.inner.Open()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return &gzipReadCloser{zr: zr, under: rc}, nil
}

func (g *gzipSource) Release() error { return g.inner.Release() }

// gzipReadCloser rewrites inflation errors so that corrupt payloads are
// distinguishable from transport failures.
type gzipReadCloser struct {
	zr    *gzip.Reader
	under io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	n, err := g.zr.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return n, err
}

func (g *gzipReadCloser) Close() error {
	zerr := g.zr.Close()
	uerr := g.under.Close()
	if zerr != nil {
		return fmt.Errorf("%w: %v", ErrDecompression, zerr)
	}
	return uerr
}
