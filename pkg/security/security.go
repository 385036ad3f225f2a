// Package security implements WS-Security 1.1.1 processing for AS4
// messages: XML digital signatures via signedxml, and X25519/AES-GCM
// payload encryption via the xmlenc package.
package security

import (
	"context"
	"crypto/x509"
	"errors"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// Sentinel errors. The receiving pipeline maps these onto the
// FailedAuthentication and FailedDecryption protocol errors.
var (
	ErrVerificationFailed = errors.New("signature verification failed")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrNoCertificate      = errors.New("no certificate for alias")
)

// InboundResult carries the outcome of inbound WS-Security processing.
type InboundResult struct {
	// Doc is the envelope after decryption; the input document when the
	// message carried no EncryptedKey.
	Doc *etree.Document
	// Attachments are the payloads after decryption, in wire order.
	Attachments []*mime.Attachment
	// SignatureVerified is true when the envelope carried a signature
	// that validated.
	SignatureVerified bool
	// Decrypted is true when an EncryptedKey was processed.
	Decrypted bool
	// SignerCert is the certificate the signature validated against.
	SignerCert *x509.Certificate
	// SignedReferences holds copies of the ds:Reference elements of the
	// validated signature, for non-repudiation receipts.
	SignedReferences []*etree.Element
}

// Processor performs WS-Security processing on SOAP envelopes. Outbound
// operations take the leg's signing and encryption configuration;
// inbound processing verifies and decrypts whatever the message carries
// and reports what it found.
type Processor interface {
	// Sign adds a wsse:Security header with a signature covering the
	// timestamp, body, messaging header and attachments.
	Sign(ctx context.Context, doc *etree.Document, atts []*mime.Attachment, cfg *pmode.SignConfig) (*etree.Document, error)

	// Encrypt encrypts the attachments (SwA profile) and records the
	// EncryptedKey in the Security header.
	Encrypt(ctx context.Context, doc *etree.Document, atts []*mime.Attachment, cfg *pmode.EncryptionConfig) (*etree.Document, []*mime.Attachment, error)

	// VerifyAndDecrypt validates the inbound Security header. A present
	// but invalid signature fails with ErrVerificationFailed; an
	// EncryptedKey that cannot be unwrapped fails with
	// ErrDecryptionFailed. A message without a Security header succeeds
	// with both flags false.
	VerifyAndDecrypt(ctx context.Context, doc *etree.Document, atts []*mime.Attachment) (*InboundResult, error)
}

// NoopProcessor passes messages through untouched. Used for exchanges
// whose PMode carries no security section.
type NoopProcessor struct{}

func (NoopProcessor) Sign(_ context.Context, doc *etree.Document, _ []*mime.Attachment, _ *pmode.SignConfig) (*etree.Document, error) {
	return doc, nil
}

func (NoopProcessor) Encrypt(_ context.Context, doc *etree.Document, atts []*mime.Attachment, _ *pmode.EncryptionConfig) (*etree.Document, []*mime.Attachment, error) {
	return doc, atts, nil
}

func (NoopProcessor) VerifyAndDecrypt(_ context.Context, doc *etree.Document, atts []*mime.Attachment) (*InboundResult, error) {
	return &InboundResult{Doc: doc, Attachments: atts}, nil
}
