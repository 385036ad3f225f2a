// Package ebms implements the ebMS3/AS4 error taxonomy.
//
// Protocol-level failures are carried as Error values and eventually
// serialized into eb:Error elements of an ebMS Signal message. Transport
// framing failures that occur before a parseable envelope exists are plain
// Go errors wrapping ErrBadRequest and never become protocol errors.
package ebms

import (
	"errors"
	"fmt"
)

// ErrBadRequest marks conditions where no parseable ebMS envelope exists:
// missing Content-Type, missing MIME boundary, undecodable XML, unknown
// SOAP version. These abort the request with HTTP 400 and are never
// converted into an ebMS Error signal.
var ErrBadRequest = errors.New("bad request")

// Severity of an ebMS error
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// Kind classifies an error per the AS4 processing rules. The kind decides
// how the receiving pipeline reacts; the Code is what goes on the wire.
type Kind int

const (
	KindOther Kind = iota
	KindValueNotRecognized
	KindValueInconsistent
	KindFailedAuthentication
	KindFailedDecryption
	KindProcessingModeMismatch
	KindExternalPayloadError
	KindDecompressionFailure
	KindEmptyMessagePartitionChannel
	KindInvalidHeader
)

// ebMS3 error codes (OASIS ebMS 3.0 Core, Appendix A)
const (
	CodeValueNotRecognized     = "EBMS:0001"
	CodeFeatureNotSupported    = "EBMS:0002"
	CodeValueInconsistent      = "EBMS:0003"
	CodeOther                  = "EBMS:0004"
	CodeConnectionFailure      = "EBMS:0005"
	CodeEmptyPartitionChannel  = "EBMS:0006"
	CodeMimeInconsistency      = "EBMS:0007"
	CodeInvalidHeader          = "EBMS:0009"
	CodeProcessingModeMismatch = "EBMS:0010"
	CodeExternalPayloadError   = "EBMS:0011"
	CodeFailedAuthentication   = "EBMS:0101"
	CodeFailedDecryption       = "EBMS:0102"
	CodePolicyNoncompliance    = "EBMS:0103"
	CodeDeliveryFailure        = "EBMS:0202"
	CodeMissingReceipt         = "EBMS:0301"
	CodeInvalidReceipt         = "EBMS:0302"
	CodeDecompressionFailure   = "EBMS:0303"
)

// Error is one ebMS protocol error. It is a value type; lists of them
// accumulate during header processing and dispatch.
type Error struct {
	Kind             Kind
	Code             string
	Severity         Severity
	ShortDescription string
	Detail           string
	RefToMessage     string
	Origin           string
	Category         string
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s", e.Code, e.ShortDescription)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.ShortDescription, e.Detail)
}

// WithRef returns a copy of the error referencing the message in error.
func (e Error) WithRef(messageID string) Error {
	e.RefToMessage = messageID
	return e
}

func newError(kind Kind, code, short, category, detail string) Error {
	return Error{
		Kind:             kind,
		Code:             code,
		Severity:         SeverityFailure,
		ShortDescription: short,
		Detail:           detail,
		Origin:           "ebMS",
		Category:         category,
	}
}

// ValueNotRecognized reports content that cannot be mapped onto exactly one
// of user message, pull request, receipt or error.
func ValueNotRecognized(detail string) Error {
	return newError(KindValueNotRecognized, CodeValueNotRecognized, "ValueNotRecognized", "Content", detail)
}

// ValueInconsistent reports conflicting values: two async URLs, two pull
// responses, or PartInfo references that contradict the attachment set.
func ValueInconsistent(detail string) Error {
	return newError(KindValueInconsistent, CodeValueInconsistent, "ValueInconsistent", "Content", detail)
}

// FailedAuthentication reports a signature verification failure.
func FailedAuthentication(detail string) Error {
	return newError(KindFailedAuthentication, CodeFailedAuthentication, "FailedAuthentication", "Processing", detail)
}

// FailedDecryption reports an undecryptable payload.
func FailedDecryption(detail string) Error {
	return newError(KindFailedDecryption, CodeFailedDecryption, "FailedDecryption", "Processing", detail)
}

// ProcessingModeMismatch reports a resolved PMode that contradicts the
// message's declared parties, service or action.
func ProcessingModeMismatch(detail string) Error {
	return newError(KindProcessingModeMismatch, CodeProcessingModeMismatch, "ProcessingModeMismatch", "Processing", detail)
}

// ExternalPayloadError reports a PartInfo/attachment count mismatch.
func ExternalPayloadError(detail string) Error {
	return newError(KindExternalPayloadError, CodeExternalPayloadError, "ExternalPayloadError", "Content", detail)
}

// DecompressionFailure reports a corrupt compressed attachment payload.
func DecompressionFailure(detail string) Error {
	return newError(KindDecompressionFailure, CodeDecompressionFailure, "DecompressionFailure", "Communication", detail)
}

// EmptyMessagePartitionChannel reports a pull request against an MPC with
// nothing queued. Severity is warning per the ebMS core spec.
func EmptyMessagePartitionChannel(mpc string) Error {
	e := newError(KindEmptyMessagePartitionChannel, CodeEmptyPartitionChannel, "EmptyMessagePartitionChannel", "Communication", mpc)
	e.Severity = SeverityWarning
	return e
}

// InvalidHeader reports a header element that could not be processed.
func InvalidHeader(detail string) Error {
	return newError(KindInvalidHeader, CodeInvalidHeader, "InvalidHeader", "Content", detail)
}

// Other is the catch-all for handler-reported business failures, duplicate
// deliveries and internal consumer errors.
func Other(detail string) Error {
	return newError(KindOther, CodeOther, "Other", "Content", detail)
}

// List is an accumulating error list.
type List []Error

// Empty reports whether no errors were recorded.
func (l List) Empty() bool { return len(l) == 0 }

// WithRef stamps every error in the list with the message in error.
func (l List) WithRef(messageID string) List {
	out := make(List, len(l))
	for i, e := range l {
		if e.RefToMessage == "" {
			e.RefToMessage = messageID
		}
		out[i] = e
	}
	return out
}

// Consumer receives errors that are surfaced internally instead of (or in
// addition to) being reported as a response, per the PMode leg's
// error-handling policy.
type Consumer interface {
	ConsumeErrors(messageID string, errs List)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(messageID string, errs List)

// ConsumeErrors implements Consumer.
func (f ConsumerFunc) ConsumeErrors(messageID string, errs List) { f(messageID, errs) }
