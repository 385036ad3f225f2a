package mime

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
)

// PackageSOAP serializes a response document as a plain XML body and
// returns the body and its Content-Type.
func PackageSOAP(doc *etree.Document, v message.SOAPVersion) ([]byte, string, error) {
	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("serializing envelope: %w", err)
	}
	return body, v.ContentType() + "; charset=UTF-8", nil
}

// PackageMIME serializes a response document plus attachments as a
// multipart/related body and returns the body and its Content-Type.
func PackageMIME(doc *etree.Document, v message.SOAPVersion, atts []*Attachment) ([]byte, string, error) {
	envelope, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("serializing envelope: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	boundary := generateBoundary()
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, "", fmt.Errorf("setting boundary: %w", err)
	}

	startID := "<" + uuid.NewString() + "@as4.siros.org>"
	soapHeader := textproto.MIMEHeader{}
	soapHeader.Set("Content-Type", v.ContentType()+"; charset=UTF-8")
	soapHeader.Set("Content-Transfer-Encoding", "binary")
	soapHeader.Set("Content-ID", startID)

	soapPart, err := mw.CreatePart(soapHeader)
	if err != nil {
		return nil, "", fmt.Errorf("creating envelope part: %w", err)
	}
	if _, err := soapPart.Write(envelope); err != nil {
		return nil, "", fmt.Errorf("writing envelope part: %w", err)
	}

	for _, att := range atts {
		header := textproto.MIMEHeader{}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		transfer := att.TransferEncoding
		if transfer == "" {
			transfer = "binary"
		}
		header.Set("Content-Transfer-Encoding", transfer)
		header.Set("Content-ID", AddContentIDBrackets(att.ContentID))

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("creating attachment part: %w", err)
		}
		data, err := att.Bytes()
		if err != nil {
			return nil, "", fmt.Errorf("reading attachment %s: %w", att.ContentID, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("writing attachment part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	contentType := mime.FormatMediaType(ContentTypeMultipartRelated, map[string]string{
		"boundary": boundary,
		"type":     v.ContentType(),
		"start":    NormalizeContentID(startID),
	})
	return buf.Bytes(), contentType, nil
}

func generateBoundary() string {
	return "----=_Part_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
