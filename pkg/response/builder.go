// Package response decides whether and how an inbound exchange is
// answered, and builds the reply: receipt, error signal or reversed
// user message, signed and encrypted per the effective leg and packaged
// as plain XML or MIME.
package response

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
	"github.com/sirosfoundation/go-as4-msh/pkg/security"
)

// Response is a built reply body. A nil *Response means no content is
// due and the transport answers 204.
type Response struct {
	Body        []byte
	ContentType string
}

// Builder constructs replies. Signing and encryption are delegated to
// the security processor, parameterized from leg security settings.
type Builder struct {
	Security security.Processor
	log      *slog.Logger
}

// NewBuilder creates a response builder. A nil logger uses slog's
// default.
func NewBuilder(sec security.Processor, log *slog.Logger) *Builder {
	if sec == nil {
		sec = security.NoopProcessor{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{Security: sec, log: log}
}

// Build runs the response decision for one finished exchange. errs is
// the accumulated protocol error list; out may be nil when dispatch
// never ran.
func (b *Builder) Build(ctx context.Context, st *processor.State, out *dispatch.Outcome, errs ebms.List) (*Response, error) {
	kind := message.KindNone
	if st.Messaging != nil {
		kind = st.Messaging.Kind()
	}

	if !errs.Empty() {
		// An inbound Error signal never triggers an Error response.
		if kind == message.KindError {
			return nil, nil
		}
		if !st.Leg.ReportErrorsAsResponse() {
			return nil, nil
		}
		return b.buildErrorSignal(ctx, st, errs)
	}

	switch kind {
	case message.KindReceipt, message.KindError:
		return nil, nil
	case message.KindPullRequest:
		if out != nil && out.PullResponse != nil && b.pullReplyAllowed(st) {
			return b.buildUserMessageReply(ctx, st, out.PullResponse, out.Attachments)
		}
		return nil, nil
	case message.KindUserMessage:
		return b.buildUserMessageOutcome(ctx, st, out)
	default:
		return nil, nil
	}
}

// buildUserMessageOutcome answers an inbound user message: a reversed
// user message on a synchronous two-way exchange, otherwise a receipt
// when the leg asks for one.
func (b *Builder) buildUserMessageOutcome(ctx context.Context, st *processor.State, out *dispatch.Outcome) (*Response, error) {
	if st.PMode != nil {
		pattern := mep.Pattern(st.PMode.MEP)
		binding := mep.Binding(st.PMode.MEPBinding)
		if mep.AllowsUserMessageReply(pattern, binding) && st.LegNumber == 1 && !outSkipped(out) {
			reversed, err := st.UserMessage().Reverse()
			if err != nil {
				return nil, fmt.Errorf("reversing user message: %w", err)
			}
			var atts []*mime.Attachment
			if out != nil {
				atts = out.Attachments
			}
			return b.buildReversedReply(ctx, st, reversed, atts)
		}
	}

	if st.Leg.SendReceiptAsResponse() {
		return b.buildReceipt(ctx, st)
	}
	return nil, nil
}

func outSkipped(out *dispatch.Outcome) bool {
	return out != nil && out.Skipped
}

// BuildAsyncReply builds the leg-2 user message delivered by an
// outbound call on asynchronous MEPs: the inbound message reversed,
// carrying the handler-produced attachments, secured per leg 2.
func (b *Builder) BuildAsyncReply(ctx context.Context, st *processor.State, out *dispatch.Outcome) (*Response, error) {
	um := st.UserMessage()
	if um == nil {
		return nil, nil
	}
	reversed, err := um.Reverse()
	if err != nil {
		return nil, fmt.Errorf("reversing user message: %w", err)
	}
	var atts []*mime.Attachment
	if out != nil {
		atts = out.Attachments
	}
	return b.buildReversedReply(ctx, st, reversed, atts)
}

// buildErrorSignal renders the error list as an eb:Error signal,
// signed when the leg configures signing.
func (b *Builder) buildErrorSignal(ctx context.Context, st *processor.State, errs ebms.List) (*Response, error) {
	details := make([]message.ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = message.ErrorDetail{
			Code:             e.Code,
			Severity:         string(e.Severity),
			ShortDescription: e.ShortDescription,
			Detail:           e.Detail,
			Category:         e.Category,
			Origin:           e.Origin,
			RefToMessage:     e.RefToMessage,
		}
	}

	doc := message.BuildErrorSignal(st.SOAPVersion, st.MessageID, details)
	doc, err := b.sign(ctx, st, doc, nil)
	if err != nil {
		return nil, err
	}
	return b.packageResponse(doc, st.SOAPVersion, nil)
}

// buildReceipt acknowledges the inbound user message. Non-repudiation
// content is included only when the leg explicitly requests it.
func (b *Builder) buildReceipt(ctx context.Context, st *processor.State) (*Response, error) {
	var nri []*etree.Element
	if st.Leg.WantsNonRepudiation() {
		nri = st.SignedReferences
	}

	doc := message.BuildReceipt(st.SOAPVersion, st.MessageID, nri)
	doc, err := b.sign(ctx, st, doc, nil)
	if err != nil {
		return nil, err
	}
	return b.packageResponse(doc, st.SOAPVersion, nil)
}

// buildReversedReply sends the leg-2 user message on the back channel.
func (b *Builder) buildReversedReply(ctx context.Context, st *processor.State, um *message.UserMessage, atts []*mime.Attachment) (*Response, error) {
	leg := replyLeg(st)
	attachPartInfos(um, atts)

	doc := message.BuildUserMessage(um, st.SOAPVersion)

	doc, err := b.signWithLeg(ctx, leg, doc, atts)
	if err != nil {
		return nil, err
	}
	doc, atts, err = b.encryptWithLeg(ctx, leg, doc, atts)
	if err != nil {
		return nil, err
	}
	return b.packageResponse(doc, st.SOAPVersion, atts)
}

// buildUserMessageReply answers a pull request with the queued user
// message.
func (b *Builder) buildUserMessageReply(ctx context.Context, st *processor.State, um *message.UserMessage, atts []*mime.Attachment) (*Response, error) {
	if um.RefToMessageID == "" {
		um.RefToMessageID = st.MessageID
	}
	attachPartInfos(um, atts)

	doc := message.BuildUserMessage(um, st.SOAPVersion)
	doc, err := b.sign(ctx, st, doc, atts)
	if err != nil {
		return nil, err
	}
	doc, atts, err = b.encrypt(ctx, st, doc, atts)
	if err != nil {
		return nil, err
	}
	return b.packageResponse(doc, st.SOAPVersion, atts)
}

func (b *Builder) pullReplyAllowed(st *processor.State) bool {
	if st.PMode == nil {
		return false
	}
	return mep.IsPullCapable(mep.Binding(st.PMode.MEPBinding))
}

// replyLeg is leg 2 of a two-way PMode when present, otherwise the
// inbound leg.
func replyLeg(st *processor.State) *pmode.Leg {
	if st.PMode != nil {
		if leg := st.PMode.Leg(2); leg != nil {
			return leg
		}
	}
	return st.Leg
}

func (b *Builder) sign(ctx context.Context, st *processor.State, doc *etree.Document, atts []*mime.Attachment) (*etree.Document, error) {
	return b.signWithLeg(ctx, st.Leg, doc, atts)
}

func (b *Builder) signWithLeg(ctx context.Context, leg *pmode.Leg, doc *etree.Document, atts []*mime.Attachment) (*etree.Document, error) {
	if !leg.SignConfigured() {
		return doc, nil
	}
	signed, err := b.Security.Sign(ctx, doc, atts, leg.Security.Sign)
	if err != nil {
		return nil, fmt.Errorf("signing response: %w", err)
	}
	return signed, nil
}

func (b *Builder) encrypt(ctx context.Context, st *processor.State, doc *etree.Document, atts []*mime.Attachment) (*etree.Document, []*mime.Attachment, error) {
	return b.encryptWithLeg(ctx, st.Leg, doc, atts)
}

func (b *Builder) encryptWithLeg(ctx context.Context, leg *pmode.Leg, doc *etree.Document, atts []*mime.Attachment) (*etree.Document, []*mime.Attachment, error) {
	if !leg.EncryptionConfigured() {
		return doc, atts, nil
	}
	encDoc, encAtts, err := b.Security.Encrypt(ctx, doc, atts, leg.Security.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypting response: %w", err)
	}
	return encDoc, encAtts, nil
}

// packageResponse serializes the reply. MIME packaging happens last so
// the signature covers the pre-packaging document and attachment set.
func (b *Builder) packageResponse(doc *etree.Document, v message.SOAPVersion, atts []*mime.Attachment) (*Response, error) {
	if len(atts) > 0 {
		body, contentType, err := mime.PackageMIME(doc, v, atts)
		if err != nil {
			return nil, err
		}
		return &Response{Body: body, ContentType: contentType}, nil
	}
	body, contentType, err := mime.PackageSOAP(doc, v)
	if err != nil {
		return nil, err
	}
	return &Response{Body: body, ContentType: contentType}, nil
}

// attachPartInfos declares the response attachments in the user
// message's PayloadInfo when not already declared.
func attachPartInfos(um *message.UserMessage, atts []*mime.Attachment) {
	if len(atts) == 0 || len(um.PartInfos) > 0 {
		return
	}
	for _, att := range atts {
		um.PartInfos = append(um.PartInfos, message.PartInfo{
			Href: "cid:" + att.ContentID,
			Properties: []message.Property{
				{Name: message.PartPropMimeType, Value: att.ContentType},
			},
		})
	}
}
