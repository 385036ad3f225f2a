// Package pmode implements Processing Mode configuration for AS4.
//
// A ProcessingMode is the negotiated contract governing one message
// exchange: its MEP and binding, and per-leg protocol, business info,
// error-handling policy and security settings. The receiving pipeline
// treats resolved PModes as read-only.
package pmode

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
)

// Signature algorithms
type SignatureAlgorithm string

const (
	AlgoRSASHA256   SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgoRSASHA384   SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	AlgoRSASHA512   SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	AlgoEd25519     SignatureAlgorithm = "http://www.w3.org/2021/04/xmldsig-more#eddsa-ed25519"
	AlgoECDSASHA256 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
)

// Hash algorithms for digest calculation
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
	HashSHA384 HashAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha384"
	HashSHA512 HashAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha512"
)

// Encryption algorithms for key agreement/transport
type KeyEncryptionAlgorithm string

const (
	KeyAlgoX25519     KeyEncryptionAlgorithm = "http://www.w3.org/2021/04/xmlenc#x25519"
	KeyAlgoRSAOAEP    KeyEncryptionAlgorithm = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	KeyAlgoRSAOAEP256 KeyEncryptionAlgorithm = "http://www.w3.org/2009/xmlenc11#rsa-oaep"
)

// Receipt reply patterns
const (
	ReplyPatternResponse = "response"
	ReplyPatternCallback = "callback"
)

// ProcessingMode represents an AS4 Processing Mode configuration.
type ProcessingMode struct {
	ID         string
	Agreement  string
	MEP        string // MEP URI
	MEPBinding string // MEP binding URI

	// Initiator and Responder optionally pin the exchange to party IDs;
	// when set, a message declaring different parties is a
	// ProcessingModeMismatch.
	Initiator string
	Responder string

	Legs []*Leg
}

// Leg returns the n-th leg (1-based), or nil.
func (p *ProcessingMode) Leg(n int) *Leg {
	if n < 1 || n > len(p.Legs) {
		return nil
	}
	return p.Legs[n-1]
}

// Validate checks the PMode's internal consistency, including every leg's
// security invariants.
func (p *ProcessingMode) Validate() error {
	if p.ID == "" {
		return errors.New("pmode ID is required")
	}
	if len(p.Legs) == 0 {
		return fmt.Errorf("pmode %s: at least one leg is required", p.ID)
	}
	for i, leg := range p.Legs {
		if err := leg.Validate(); err != nil {
			return fmt.Errorf("pmode %s leg %d: %w", p.ID, i+1, err)
		}
	}
	return nil
}

// Leg represents one leg of a message exchange.
type Leg struct {
	Protocol      *Protocol
	BusinessInfo  *BusinessInfo
	ErrorHandling *ErrorHandling
	Reliability   *Reliability
	Security      *Security
}

// Validate enforces the leg security invariants: signing settings are
// either fully specified (algorithm plus digest) or fully absent, and
// likewise encryption (algorithm plus certificate alias).
func (l *Leg) Validate() error {
	if l.Security == nil {
		return nil
	}
	if s := l.Security.Sign; s != nil {
		if s.Algorithm == "" || s.HashFunction == "" {
			return errors.New("sign config requires both algorithm and hash function")
		}
	}
	if e := l.Security.Encryption; e != nil {
		if e.Algorithm == "" || e.CertificateAlias == "" {
			return errors.New("encryption config requires both algorithm and certificate alias")
		}
	}
	return nil
}

// SOAPVersion returns the leg's SOAP version, defaulting to 1.2.
func (l *Leg) SOAPVersion() message.SOAPVersion {
	if l != nil && l.Protocol != nil && l.Protocol.SOAPVersion == string(message.SOAP11) {
		return message.SOAP11
	}
	return message.SOAP12
}

// ReportErrorsAsResponse reports whether protocol errors on this leg are
// answered with an Error signal. Defaults to true.
func (l *Leg) ReportErrorsAsResponse() bool {
	if l == nil || l.ErrorHandling == nil || l.ErrorHandling.ReportAsResponse == nil {
		return true
	}
	return *l.ErrorHandling.ReportAsResponse
}

// SendReceiptAsResponse reports whether a user message on this leg is
// acknowledged with a Receipt on the back channel. Defaults to true.
func (l *Leg) SendReceiptAsResponse() bool {
	if l == nil || l.Security == nil || l.Security.SendReceipt == nil {
		return true
	}
	sr := l.Security.SendReceipt
	if sr.Enabled != nil && !*sr.Enabled {
		return false
	}
	return sr.ReplyPattern == "" || sr.ReplyPattern == ReplyPatternResponse
}

// WantsNonRepudiation reports whether receipts on this leg carry
// non-repudiation information.
func (l *Leg) WantsNonRepudiation() bool {
	return l != nil && l.Security != nil && l.Security.SendReceipt != nil &&
		l.Security.SendReceipt.NonRepudiation
}

// SignConfigured reports whether the leg requires outgoing messages to be
// signed.
func (l *Leg) SignConfigured() bool {
	return l != nil && l.Security != nil && l.Security.Sign != nil
}

// EncryptionConfigured reports whether the leg requires outgoing messages
// to be encrypted.
func (l *Leg) EncryptionConfigured() bool {
	return l != nil && l.Security != nil && l.Security.Encryption != nil
}

// Protocol contains transport parameters for a leg.
type Protocol struct {
	Address     string
	SOAPVersion string // "1.1" or "1.2"
}

// BusinessInfo contains business-level message information for a leg.
type BusinessInfo struct {
	Service string
	Action  string
	MPC     string // Message Partition Channel (for Pull)
}

// ErrorHandling configures error reporting for a leg.
type ErrorHandling struct {
	// ReportAsResponse controls whether errors become an Error signal on
	// the back channel. Nil means true.
	ReportAsResponse *bool
	ReceiverErrorsTo string
	SenderErrorsTo   string
	NotifyProducer   bool
	NotifyConsumer   bool
}

// Reliability contains reception-awareness parameters for a leg.
type Reliability struct {
	DuplicateDetection bool
	DuplicateWindow    time.Duration
}

// Security contains security parameters for a leg.
type Security struct {
	WSSVersion    string // "1.1.1"
	Sign          *SignConfig
	Encryption    *EncryptionConfig
	UsernameToken *UsernameToken
	SendReceipt   *SendReceipt
}

// SignConfig contains signing configuration. Algorithm and HashFunction
// must both be set; CertificateAlias selects the signing key.
type SignConfig struct {
	Algorithm        SignatureAlgorithm
	HashFunction     HashAlgorithm
	CertificateAlias string
}

// EncryptionConfig contains encryption configuration. Algorithm and
// CertificateAlias must both be set.
type EncryptionConfig struct {
	Algorithm        KeyEncryptionAlgorithm
	CertificateAlias string
}

// UsernameToken contains username/password authentication for pull.
type UsernameToken struct {
	Username string
	Password string
	Digest   bool
}

// SendReceipt contains receipt sending configuration.
type SendReceipt struct {
	// Enabled controls receipt generation; nil means true.
	Enabled      *bool
	ReplyPattern string // "response" or "callback"
	ReplyTo      string // URL for callback
	// NonRepudiation includes signed digests of the received message in
	// the receipt.
	NonRepudiation bool
}

// Bool is a convenience for the optional boolean fields.
func Bool(v bool) *bool { return &v }
