package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
)

var (
	// ErrNoMessaging is returned when the SOAP header carries no
	// eb:Messaging element.
	ErrNoMessaging = errors.New("no Messaging header found")
	// ErrAmbiguousPayload is returned when the Messaging header does not
	// carry exactly one of user message, receipt, error or pull request.
	ErrAmbiguousPayload = errors.New("Messaging header must carry exactly one message unit")
)

// FindMessaging locates the eb:Messaging element in the SOAP header of doc,
// or returns nil when absent.
func FindMessaging(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	header := childByLocal(root, "Header")
	if header == nil {
		return nil
	}
	for _, el := range header.ChildElements() {
		if el.Tag == "Messaging" && el.NamespaceURI() == NsEbMS {
			return el
		}
	}
	return nil
}

// Extract parses the eb:Messaging element into the typed model and enforces
// the exactly-one-payload invariant: a header carrying zero or more than one
// of {user message, receipt, error, pull request} fails with
// ErrAmbiguousPayload.
func Extract(messaging *etree.Element) (*Messaging, error) {
	if messaging == nil {
		return nil, ErrNoMessaging
	}

	out := &Messaging{}
	count := 0

	if um := childByLocal(messaging, "UserMessage"); um != nil {
		parsed, err := parseUserMessage(um)
		if err != nil {
			return nil, err
		}
		out.UserMessage = parsed
		count++
	}

	if sig := childByLocal(messaging, "SignalMessage"); sig != nil {
		info := parseMessageInfo(childByLocal(sig, "MessageInfo"))

		if r := childByLocal(sig, "Receipt"); r != nil {
			out.Receipt = &Receipt{
				MessageInfo:    info,
				NonRepudiation: childByLocal(r, "NonRepudiationInformation") != nil,
			}
			count++
		}
		if errs := sig.SelectElements("Error"); len(errs) > 0 {
			signal := &ErrorSignal{MessageInfo: info}
			for _, e := range errs {
				signal.Errors = append(signal.Errors, parseErrorDetail(e))
			}
			out.ErrorSignal = signal
			count++
		}
		if pr := childByLocal(sig, "PullRequest"); pr != nil {
			mpc := pr.SelectAttrValue("mpc", "")
			if mpc == "" {
				mpc = DefaultMPC
			}
			out.PullRequest = &PullRequest{MessageInfo: info, MPC: mpc}
			count++
		}
	}

	if count != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrAmbiguousPayload, count)
	}
	return out, nil
}

func parseUserMessage(um *etree.Element) (*UserMessage, error) {
	out := &UserMessage{
		MessageInfo: parseMessageInfo(childByLocal(um, "MessageInfo")),
		MPC:         um.SelectAttrValue("mpc", DefaultMPC),
	}

	if pi := childByLocal(um, "PartyInfo"); pi != nil {
		if from := childByLocal(pi, "From"); from != nil {
			out.From = parseParty(from)
		}
		if to := childByLocal(pi, "To"); to != nil {
			out.To = parseParty(to)
		}
	}

	if ci := childByLocal(um, "CollaborationInfo"); ci != nil {
		if ar := childByLocal(ci, "AgreementRef"); ar != nil {
			out.AgreementRef = AgreementRef{
				Type:  ar.SelectAttrValue("type", ""),
				PMode: ar.SelectAttrValue("pmode", ""),
				Value: ar.Text(),
			}
		}
		if svc := childByLocal(ci, "Service"); svc != nil {
			out.Service = Service{
				Type:  svc.SelectAttrValue("type", ""),
				Value: svc.Text(),
			}
		}
		if action := childByLocal(ci, "Action"); action != nil {
			out.Action = action.Text()
		}
		if conv := childByLocal(ci, "ConversationId"); conv != nil {
			out.ConversationID = conv.Text()
		}
	}

	if mp := childByLocal(um, "MessageProperties"); mp != nil {
		for _, prop := range mp.SelectElements("Property") {
			out.Properties = append(out.Properties, parseProperty(prop))
		}
	}

	if pli := childByLocal(um, "PayloadInfo"); pli != nil {
		for _, part := range pli.SelectElements("PartInfo") {
			info := PartInfo{Href: part.SelectAttrValue("href", "")}
			if props := childByLocal(part, "PartProperties"); props != nil {
				for _, prop := range props.SelectElements("Property") {
					info.Properties = append(info.Properties, parseProperty(prop))
				}
			}
			out.PartInfos = append(out.PartInfos, info)
		}
	}

	if out.MessageID == "" {
		return nil, fmt.Errorf("UserMessage without MessageId")
	}
	return out, nil
}

func parseParty(el *etree.Element) Party {
	p := Party{}
	for _, id := range el.SelectElements("PartyId") {
		p.IDs = append(p.IDs, PartyID{
			Type:  id.SelectAttrValue("type", ""),
			Value: id.Text(),
		})
	}
	if role := childByLocal(el, "Role"); role != nil {
		p.Role = role.Text()
	}
	return p
}

func parseMessageInfo(el *etree.Element) MessageInfo {
	info := MessageInfo{}
	if el == nil {
		return info
	}
	if id := childByLocal(el, "MessageId"); id != nil {
		info.MessageID = id.Text()
	}
	if ref := childByLocal(el, "RefToMessageId"); ref != nil {
		info.RefToMessageID = ref.Text()
	}
	if ts := childByLocal(el, "Timestamp"); ts != nil {
		if parsed, err := time.Parse(time.RFC3339, ts.Text()); err == nil {
			info.Timestamp = parsed
		}
	}
	return info
}

func parseErrorDetail(el *etree.Element) ErrorDetail {
	d := ErrorDetail{
		Code:             el.SelectAttrValue("errorCode", ""),
		Severity:         el.SelectAttrValue("severity", ""),
		ShortDescription: el.SelectAttrValue("shortDescription", ""),
		Category:         el.SelectAttrValue("category", ""),
		Origin:           el.SelectAttrValue("origin", ""),
		RefToMessage:     el.SelectAttrValue("refToMessageInError", ""),
	}
	if desc := childByLocal(el, "Description"); desc != nil {
		d.Description = desc.Text()
	}
	if det := childByLocal(el, "ErrorDetail"); det != nil {
		d.Detail = det.Text()
	}
	return d
}

func parseProperty(el *etree.Element) Property {
	return Property{
		Name:  el.SelectAttrValue("name", ""),
		Type:  el.SelectAttrValue("type", ""),
		Value: el.Text(),
	}
}

// childByLocal returns the first child element with the given local name,
// regardless of namespace prefix.
func childByLocal(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}
