package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// HeaderMessaging is the header element name the messaging processor
// registers under.
const HeaderMessaging = "Messaging"

// MessagingProcessor extracts the eb:Messaging header, resolves the
// PMode and selects the effective leg. It must run before the security
// processor, which needs the resolved leg's security settings.
type MessagingProcessor struct {
	Resolver  pmode.Resolver
	ProfileID string
}

// NewMessagingProcessor creates the messaging header processor.
func NewMessagingProcessor(resolver pmode.Resolver, profileID string) *MessagingProcessor {
	return &MessagingProcessor{Resolver: resolver, ProfileID: profileID}
}

// Process implements HeaderProcessor.
func (p *MessagingProcessor) Process(ctx context.Context, el *etree.Element, st *State) (ebms.List, error) {
	msg, err := message.Extract(el)
	if err != nil {
		if errors.Is(err, message.ErrAmbiguousPayload) {
			return ebms.List{ebms.ValueNotRecognized(err.Error())}, nil
		}
		return ebms.List{ebms.InvalidHeader(err.Error())}, nil
	}

	st.Messaging = msg
	st.MessageID = msg.MessageID()
	st.ProfileID = p.ProfileID

	if um := msg.UserMessage; um != nil {
		st.Ping = um.IsPing()
		if errs := p.recordPartInfo(st, um); !errs.Empty() {
			return errs.WithRef(st.MessageID), nil
		}
	}

	errs, err := p.resolvePMode(ctx, st, msg)
	if err != nil {
		return nil, err
	}
	return errs.WithRef(st.MessageID), nil
}

// recordPartInfo captures declared compression modes and checks the
// referenced attachment parts against the MIME parts received. Every
// cid: href must name a received part, and every received part must be
// declared.
func (p *MessagingProcessor) recordPartInfo(st *State, um *message.UserMessage) ebms.List {
	byID := make(map[string]bool, len(st.Attachments))
	for _, att := range st.Attachments {
		byID[att.ContentID] = true
	}

	referenced := 0
	for _, pi := range um.PartInfos {
		if !strings.HasPrefix(pi.Href, "cid:") {
			continue
		}
		referenced++
		id := mime.NormalizeContentID(pi.Href)
		if !byID[id] {
			return ebms.List{ebms.ExternalPayloadError(fmt.Sprintf(
				"part %s references no received attachment", pi.Href))}
		}
		if mode, ok := pi.Property(message.PartPropCompressionType); ok {
			st.CompressionModes[id] = mode
		}
	}
	if referenced != len(st.Attachments) {
		return ebms.List{ebms.ExternalPayloadError(fmt.Sprintf(
			"message references %d attachment parts but %d were received",
			referenced, len(st.Attachments)))}
	}
	return nil
}

// resolvePMode resolves the processing contract for the message. A user
// message or pull request without a resolvable PMode is a bad request;
// receipts and error signals are not resolved at all.
func (p *MessagingProcessor) resolvePMode(ctx context.Context, st *State, msg *message.Messaging) (ebms.List, error) {
	key, required := resolutionKey(msg)
	if key == nil {
		return nil, nil
	}

	pm, err := p.Resolver.Resolve(ctx, *key)
	if err != nil {
		if !errors.Is(err, pmode.ErrNotFound) {
			return nil, fmt.Errorf("resolving pmode: %w", err)
		}
		if required {
			return nil, fmt.Errorf("%w: no pmode for message %s", ebms.ErrBadRequest, st.MessageID)
		}
		return nil, nil
	}

	if errs := checkParties(pm, msg.UserMessage); !errs.Empty() {
		return errs, nil
	}

	st.PMode = pm
	st.LegNumber = effectiveLeg(pm, msg)
	st.Leg = pm.Leg(st.LegNumber)
	if st.Leg == nil {
		return nil, fmt.Errorf("%w: pmode %s has no leg %d", ebms.ErrBadRequest, pm.ID, st.LegNumber)
	}
	return nil, nil
}

func resolutionKey(msg *message.Messaging) (key *pmode.ResolutionKey, required bool) {
	switch {
	case msg.UserMessage != nil:
		um := msg.UserMessage
		return &pmode.ResolutionKey{
			FromParty:    um.From.FirstID(),
			ToParty:      um.To.FirstID(),
			Service:      um.Service.Value,
			Action:       um.Action,
			MPC:          um.MPC,
			AgreementRef: um.AgreementRef.Value,
			PModeID:      um.AgreementRef.PMode,
		}, true
	case msg.PullRequest != nil:
		mpc := msg.PullRequest.MPC
		if mpc == "" {
			mpc = message.DefaultMPC
		}
		return &pmode.ResolutionKey{MPC: mpc}, true
	default:
		// Receipts and error signals carry no business info to match on.
		return nil, false
	}
}

// checkParties verifies the message's declared parties against the
// PMode's pinned initiator and responder.
func checkParties(pm *pmode.ProcessingMode, um *message.UserMessage) ebms.List {
	if um == nil {
		return nil
	}
	if pm.Initiator != "" && um.From.FirstID() != pm.Initiator {
		return ebms.List{ebms.ProcessingModeMismatch(fmt.Sprintf(
			"message From party %q does not match pmode initiator %q", um.From.FirstID(), pm.Initiator))}
	}
	if pm.Responder != "" && um.To.FirstID() != pm.Responder {
		return ebms.List{ebms.ProcessingModeMismatch(fmt.Sprintf(
			"message To party %q does not match pmode responder %q", um.To.FirstID(), pm.Responder))}
	}
	return nil
}

// effectiveLeg selects leg 2 for the second half of a two-way exchange,
// identified by a user message referencing an earlier message.
func effectiveLeg(pm *pmode.ProcessingMode, msg *message.Messaging) int {
	if mep.IsTwoWay(mep.Pattern(pm.MEP)) &&
		msg.UserMessage != nil && msg.UserMessage.RefToMessageID != "" && len(pm.Legs) > 1 {
		return 2
	}
	return 1
}
