// Package processor implements the ordered SOAP header processor chain
// of the receiving pipeline and the shared message state it mutates.
package processor

import (
	"crypto/x509"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// State is the single mutable accumulator of one inbound request. It is
// created when the request arrives, written by header processors, read
// by the dispatcher and the response builder, and discarded when the
// request ends. It is never shared across requests.
//
// The raw document and attachments are kept separate from their
// decrypted counterparts; processors populate the decrypted slots
// without overwriting the originals.
type State struct {
	SOAPVersion message.SOAPVersion

	Doc         *etree.Document
	Attachments []*mime.Attachment

	DecryptedDoc         *etree.Document
	DecryptedAttachments []*mime.Attachment

	// CompressionModes maps normalized attachment content IDs to the
	// declared CompressionType part property.
	CompressionModes map[string]string

	PMode     *pmode.ProcessingMode
	Leg       *pmode.Leg
	LegNumber int

	Messaging *message.Messaging

	UsedCertificate  *x509.Certificate
	SignedReferences []*etree.Element

	SignatureVerified bool
	Decrypted         bool
	HeaderProcessed   bool
	Ping              bool

	ProfileID string
	MessageID string
	Locale    string
}

// NewState creates the state for one inbound request.
func NewState(v message.SOAPVersion, doc *etree.Document, atts []*mime.Attachment) *State {
	return &State{
		SOAPVersion:      v,
		Doc:              doc,
		Attachments:      atts,
		CompressionModes: make(map[string]string),
	}
}

// EffectiveDoc returns the decrypted document when decryption happened,
// the raw document otherwise.
func (s *State) EffectiveDoc() *etree.Document {
	if s.DecryptedDoc != nil {
		return s.DecryptedDoc
	}
	return s.Doc
}

// EffectiveAttachments returns the decrypted attachments when
// decryption happened, the raw list otherwise.
func (s *State) EffectiveAttachments() []*mime.Attachment {
	if s.DecryptedAttachments != nil {
		return s.DecryptedAttachments
	}
	return s.Attachments
}

// UserMessage returns the extracted user message, or nil.
func (s *State) UserMessage() *message.UserMessage {
	if s.Messaging == nil {
		return nil
	}
	return s.Messaging.UserMessage
}
