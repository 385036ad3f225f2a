package mime

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
)

const (
	// ContentTypeMultipartRelated is the MIME type for multipart/related
	ContentTypeMultipartRelated = "multipart/related"
	// ContentTypeSOAPXML is the MIME type for SOAP 1.2
	ContentTypeSOAPXML = "application/soap+xml"
	// ContentTypeTextXML is the MIME type for SOAP 1.1
	ContentTypeTextXML = "text/xml"
)

// Framed is the result of splitting an inbound transport payload.
type Framed struct {
	// Doc is the parsed SOAP document (MIME part 0, or the whole body).
	Doc *etree.Document
	// RawSOAP is the exact byte content the document was parsed from;
	// signature verification needs the original serialization.
	RawSOAP []byte
	// SOAPVersion as determined from the XML namespace first, falling
	// back to the Content-Type.
	SOAPVersion message.SOAPVersion
	// Attachments are MIME parts 1..N, in order. Empty for plain SOAP.
	Attachments []*Attachment
}

// Framer splits an inbound byte stream plus Content-Type into a SOAP
// document and attachments. A nil Factory buffers attachments in memory.
type Framer struct {
	Factory Factory
}

// Frame parses the request body. Content-Type decides the framing:
// multipart/related bodies are split into SOAP part plus attachments,
// anything else is parsed as a plain SOAP document. All framing failures
// wrap ebms.ErrBadRequest: no parseable envelope exists for them.
func (f *Framer) Frame(r io.Reader, contentType string) (*Framed, error) {
	if strings.TrimSpace(contentType) == "" {
		return nil, fmt.Errorf("%w: missing Content-Type header", ebms.ErrBadRequest)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable Content-Type %q: %v", ebms.ErrBadRequest, contentType, err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return f.frameMultipart(r, params)
	}
	return f.framePlain(r, mediaType)
}

func (f *Framer) framePlain(r io.Reader, mediaType string) (*Framed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading request body: %v", ebms.ErrBadRequest, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: body is not well-formed XML: %v", ebms.ErrBadRequest, err)
	}

	version, err := detectVersion(doc, mediaType)
	if err != nil {
		return nil, err
	}

	return &Framed{Doc: doc, RawSOAP: raw, SOAPVersion: version}, nil
}

func (f *Framer) frameMultipart(r io.Reader, params map[string]string) (*Framed, error) {
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart Content-Type without boundary parameter", ebms.ErrBadRequest)
	}

	factory := f.Factory
	if factory == nil {
		factory = MemoryFactory{}
	}

	mr := multipart.NewReader(r, boundary)

	// Part 0 is the SOAP envelope.
	envelopePart, err := mr.NextPart()
	if err != nil {
		return nil, fmt.Errorf("%w: reading envelope part: %v", ebms.ErrBadRequest, err)
	}
	raw, err := io.ReadAll(envelopePart)
	envelopePart.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: reading envelope part: %v", ebms.ErrBadRequest, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: envelope part is not well-formed XML: %v", ebms.ErrBadRequest, err)
	}

	partMedia := ""
	if ct := envelopePart.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			partMedia = mt
		}
	}
	version, err := detectVersion(doc, partMedia)
	if err != nil {
		return nil, err
	}

	framed := &Framed{Doc: doc, RawSOAP: raw, SOAPVersion: version}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			ReleaseAll(framed.Attachments)
			return nil, fmt.Errorf("%w: reading attachment part: %v", ebms.ErrBadRequest, err)
		}

		att, err := factory.New(part.Header, part)
		part.Close()
		if err != nil {
			ReleaseAll(framed.Attachments)
			return nil, fmt.Errorf("%w: storing attachment part: %v", ebms.ErrBadRequest, err)
		}
		framed.Attachments = append(framed.Attachments, att)
	}

	return framed, nil
}

// detectVersion determines the SOAP version, namespace first, then the
// media type. Failing both is a bad-request condition.
func detectVersion(doc *etree.Document, mediaType string) (message.SOAPVersion, error) {
	if root := doc.Root(); root != nil {
		if v, ok := message.VersionFromNamespace(root.NamespaceURI()); ok {
			return v, nil
		}
	}
	if v, ok := message.VersionFromContentType(mediaType); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: cannot determine SOAP version from namespace or Content-Type", ebms.ErrBadRequest)
}
