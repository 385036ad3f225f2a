// Package message provides the ebMS3 envelope model for the receiving MSH:
// namespace and SOAP version handling, extraction of the eb:Messaging header
// from a parsed SOAP document, user-message reversal for synchronous two-way
// replies, and etree builders for outgoing signal and user messages.
package message

import (
	"time"
)

// Namespace constants for AS4/ebMS3
const (
	NsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	NsSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	NsEbMS   = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/"
	NsEBBP   = "http://docs.oasis-open.org/ebxml-bp/ebbp-signals-2.0"
	NsWSSE   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NsWSU    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	NsDS     = "http://www.w3.org/2000/09/xmldsig#"
	NsXENC   = "http://www.w3.org/2001/04/xmlenc#"
)

// Test Service constants (the ebMS3 "ping" service)
const (
	TestService = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/service"
	TestAction  = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/test"
)

// Well-known message property names
const (
	PropOriginalSender = "originalSender"
	PropFinalRecipient = "finalRecipient"
)

// Part property names used by the AS4 compression feature
const (
	PartPropMimeType        = "MimeType"
	PartPropCompressionType = "CompressionType"
	PartPropCharacterSet    = "CharacterSet"
)

// DefaultMPC is the MPC assumed when a message or pull request names none.
const DefaultMPC = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/defaultMPC"

// SOAPVersion identifies the SOAP envelope version of a message.
type SOAPVersion string

const (
	// SOAP11 is SOAP 1.1 (text/xml)
	SOAP11 SOAPVersion = "1.1"
	// SOAP12 is SOAP 1.2 (application/soap+xml), the AS4 default
	SOAP12 SOAPVersion = "1.2"
)

// Namespace returns the SOAP envelope namespace for the version.
func (v SOAPVersion) Namespace() string {
	if v == SOAP11 {
		return NsSOAP11
	}
	return NsSOAP12
}

// ContentType returns the media type implied by the version.
func (v SOAPVersion) ContentType() string {
	if v == SOAP11 {
		return "text/xml"
	}
	return "application/soap+xml"
}

// VersionFromNamespace maps a SOAP envelope namespace to a version.
func VersionFromNamespace(ns string) (SOAPVersion, bool) {
	switch ns {
	case NsSOAP11:
		return SOAP11, true
	case NsSOAP12:
		return SOAP12, true
	}
	return "", false
}

// VersionFromContentType maps a media type to a SOAP version.
func VersionFromContentType(mediaType string) (SOAPVersion, bool) {
	switch mediaType {
	case "text/xml":
		return SOAP11, true
	case "application/soap+xml":
		return SOAP12, true
	}
	return "", false
}

// MessageInfo contains message identification and timestamps.
type MessageInfo struct {
	MessageID      string
	RefToMessageID string
	Timestamp      time.Time
}

// PartyID is one party identifier with optional type.
type PartyID struct {
	Type  string
	Value string
}

// Party is the From or To side of a user message.
type Party struct {
	IDs  []PartyID
	Role string
}

// FirstID returns the first party identifier value, or "".
func (p Party) FirstID() string {
	if len(p.IDs) == 0 {
		return ""
	}
	return p.IDs[0].Value
}

// Service identifies the business service.
type Service struct {
	Type  string
	Value string
}

// AgreementRef references the business agreement governing the exchange.
type AgreementRef struct {
	Type  string
	PMode string
	Value string
}

// Property is a named message or part property.
type Property struct {
	Name  string
	Type  string
	Value string
}

// PartInfo describes one payload part declared in PayloadInfo.
type PartInfo struct {
	Href       string
	Properties []Property
}

// Property returns the named part property value.
func (p PartInfo) Property(name string) (string, bool) {
	for _, prop := range p.Properties {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return "", false
}

// UserMessage is an extracted ebMS3 UserMessage header.
type UserMessage struct {
	MessageInfo
	MPC            string
	From           Party
	To             Party
	AgreementRef   AgreementRef
	Service        Service
	Action         string
	ConversationID string
	Properties     []Property
	PartInfos      []PartInfo
}

// Property returns the named message property value.
func (u *UserMessage) Property(name string) (string, bool) {
	for _, prop := range u.Properties {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return "", false
}

// IsPing reports whether the message targets the ebMS3 test service. Ping
// messages are acknowledged but never dispatched to business handlers.
func (u *UserMessage) IsPing() bool {
	return u.Service.Value == TestService && u.Action == TestAction
}

// Receipt is an extracted ebMS3 Receipt signal.
type Receipt struct {
	MessageInfo
	// NonRepudiation is set when the receipt carries
	// ebbp:NonRepudiationInformation rather than a plain acknowledgment.
	NonRepudiation bool
}

// ErrorDetail is one eb:Error element of an Error signal.
type ErrorDetail struct {
	Code             string
	Severity         string
	ShortDescription string
	Description      string
	Detail           string
	Category         string
	Origin           string
	RefToMessage     string
}

// ErrorSignal is an extracted ebMS3 Error signal.
type ErrorSignal struct {
	MessageInfo
	Errors []ErrorDetail
}

// PullRequest is an extracted ebMS3 PullRequest signal.
type PullRequest struct {
	MessageInfo
	MPC string
}

// Kind discriminates the single payload a Messaging header may carry.
type Kind int

const (
	KindNone Kind = iota
	KindUserMessage
	KindReceipt
	KindError
	KindPullRequest
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUserMessage:
		return "UserMessage"
	case KindReceipt:
		return "Receipt"
	case KindError:
		return "Error"
	case KindPullRequest:
		return "PullRequest"
	}
	return "None"
}

// Messaging is the extracted eb:Messaging header. Exactly one of the four
// payload fields is non-nil after a successful extraction.
type Messaging struct {
	UserMessage *UserMessage
	Receipt     *Receipt
	ErrorSignal *ErrorSignal
	PullRequest *PullRequest
}

// Kind returns which payload the header carries.
func (m *Messaging) Kind() Kind {
	switch {
	case m.UserMessage != nil:
		return KindUserMessage
	case m.Receipt != nil:
		return KindReceipt
	case m.ErrorSignal != nil:
		return KindError
	case m.PullRequest != nil:
		return KindPullRequest
	}
	return KindNone
}

// IsSignal reports whether the payload is a signal message.
func (m *Messaging) IsSignal() bool {
	return m.Kind() != KindUserMessage && m.Kind() != KindNone
}

// MessageID returns the message ID of whichever payload is present.
func (m *Messaging) MessageID() string {
	switch m.Kind() {
	case KindUserMessage:
		return m.UserMessage.MessageID
	case KindReceipt:
		return m.Receipt.MessageID
	case KindError:
		return m.ErrorSignal.MessageID
	case KindPullRequest:
		return m.PullRequest.MessageID
	}
	return ""
}

// RefToMessageID returns the referenced message ID of whichever payload is
// present.
func (m *Messaging) RefToMessageID() string {
	switch m.Kind() {
	case KindUserMessage:
		return m.UserMessage.RefToMessageID
	case KindReceipt:
		return m.Receipt.RefToMessageID
	case KindError:
		return m.ErrorSignal.RefToMessageID
	case KindPullRequest:
		return m.PullRequest.RefToMessageID
	}
	return ""
}
