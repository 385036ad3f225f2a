package mime

import (
	"bytes"
	"errors"
	"fmt"
	mimepkg "mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
)

const soap12Envelope = `<?xml version="1.0" encoding="UTF-8"?>
<S12:Envelope xmlns:S12="http://www.w3.org/2003/05/soap-envelope">
  <S12:Header/>
  <S12:Body/>
</S12:Envelope>`

const soap11Envelope = `<?xml version="1.0" encoding="UTF-8"?>
<S11:Envelope xmlns:S11="http://schemas.xmlsoap.org/soap/envelope/">
  <S11:Header/>
  <S11:Body/>
</S11:Envelope>`

func buildMultipart(t *testing.T, envelope string, payloads map[string][]byte) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	w := mimepkg.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", `application/soap+xml; charset="utf-8"`)
	h.Set("Content-ID", "<soap-part>")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(envelope))
	require.NoError(t, err)

	for cid, data := range payloads {
		ph := textproto.MIMEHeader{}
		ph.Set("Content-Type", "application/octet-stream")
		ph.Set("Content-ID", fmt.Sprintf("<%s>", cid))
		p, err := w.CreatePart(ph)
		require.NoError(t, err)
		_, err = p.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	contentType := fmt.Sprintf(`multipart/related; boundary=%q; type="application/soap+xml"`, w.Boundary())
	return contentType, &buf
}

func TestFramePlainSOAP12(t *testing.T) {
	f := &Framer{}

	framed, err := f.Frame(strings.NewReader(soap12Envelope), "application/soap+xml")
	require.NoError(t, err)
	assert.Equal(t, message.SOAP12, framed.SOAPVersion)
	assert.Empty(t, framed.Attachments)
	assert.Equal(t, []byte(soap12Envelope), framed.RawSOAP)
	require.NotNil(t, framed.Doc.Root())
	assert.Equal(t, "Envelope", framed.Doc.Root().Tag)
}

func TestFramePlainSOAP11(t *testing.T) {
	f := &Framer{}

	framed, err := f.Frame(strings.NewReader(soap11Envelope), "text/xml")
	require.NoError(t, err)
	assert.Equal(t, message.SOAP11, framed.SOAPVersion)
}

func TestFrameNamespaceWinsOverContentType(t *testing.T) {
	f := &Framer{}

	// SOAP 1.2 namespace delivered under the SOAP 1.1 media type.
	framed, err := f.Frame(strings.NewReader(soap12Envelope), "text/xml")
	require.NoError(t, err)
	assert.Equal(t, message.SOAP12, framed.SOAPVersion)
}

func TestFrameMultipart(t *testing.T) {
	f := &Framer{}
	contentType, body := buildMultipart(t, soap12Envelope, map[string][]byte{
		"payload-1": []byte("first"),
		"payload-2": []byte("second"),
	})

	framed, err := f.Frame(body, contentType)
	require.NoError(t, err)
	assert.Equal(t, message.SOAP12, framed.SOAPVersion)
	require.Len(t, framed.Attachments, 2)

	byID := map[string][]byte{}
	for _, att := range framed.Attachments {
		data, err := att.Bytes()
		require.NoError(t, err)
		byID[att.ContentID] = data
	}
	assert.Equal(t, []byte("first"), byID["payload-1"])
	assert.Equal(t, []byte("second"), byID["payload-2"])
}

func TestFrameMissingContentType(t *testing.T) {
	f := &Framer{}
	_, err := f.Frame(strings.NewReader(soap12Envelope), "")
	assert.ErrorIs(t, err, ebms.ErrBadRequest)
}

func TestFrameMultipartWithoutBoundary(t *testing.T) {
	f := &Framer{}
	_, err := f.Frame(strings.NewReader("irrelevant"), "multipart/related")
	assert.ErrorIs(t, err, ebms.ErrBadRequest)
}

func TestFrameMalformedXML(t *testing.T) {
	f := &Framer{}
	_, err := f.Frame(strings.NewReader("<unclosed"), "application/soap+xml")
	assert.ErrorIs(t, err, ebms.ErrBadRequest)
}

func TestFrameUnknownVersion(t *testing.T) {
	f := &Framer{}
	_, err := f.Frame(strings.NewReader(`<Envelope xmlns="urn:not-soap"/>`), "application/xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ebms.ErrBadRequest))
}

func TestNormalizeContentID(t *testing.T) {
	assert.Equal(t, "abc@host", NormalizeContentID("<abc@host>"))
	assert.Equal(t, "abc@host", NormalizeContentID("cid:abc@host"))
	assert.Equal(t, "abc@host", NormalizeContentID("abc@host"))
}
