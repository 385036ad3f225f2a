package message

import (
	"time"

	"github.com/beevik/etree"
)

// NewEnvelope creates an empty SOAP envelope document for the given version
// and returns the document together with its Header and Body elements.
func NewEnvelope(v SOAPVersion) (*etree.Document, *etree.Element, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", v.Namespace())
	env.CreateAttr("xmlns:eb", NsEbMS)

	header := env.CreateElement("soap:Header")
	body := env.CreateElement("soap:Body")
	return doc, header, body
}

// mustUnderstandValue is the attribute value the SOAP version requires.
func mustUnderstandValue(v SOAPVersion) string {
	if v == SOAP11 {
		return "1"
	}
	return "true"
}

// createMessaging appends an eb:Messaging element flagged mustUnderstand to
// the SOAP header.
func createMessaging(header *etree.Element, v SOAPVersion) *etree.Element {
	messaging := header.CreateElement("eb:Messaging")
	messaging.CreateAttr("soap:mustUnderstand", mustUnderstandValue(v))
	return messaging
}

func writeMessageInfo(parent *etree.Element, info MessageInfo) {
	msgInfo := parent.CreateElement("eb:MessageInfo")
	ts := info.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msgInfo.CreateElement("eb:Timestamp").SetText(ts.Format(time.RFC3339))
	msgInfo.CreateElement("eb:MessageId").SetText(info.MessageID)
	if info.RefToMessageID != "" {
		msgInfo.CreateElement("eb:RefToMessageId").SetText(info.RefToMessageID)
	}
}

// BuildUserMessage serializes a user message into a fresh SOAP envelope.
func BuildUserMessage(u *UserMessage, v SOAPVersion) *etree.Document {
	doc, header, _ := NewEnvelope(v)
	messaging := createMessaging(header, v)

	um := messaging.CreateElement("eb:UserMessage")
	if u.MPC != "" && u.MPC != DefaultMPC {
		um.CreateAttr("mpc", u.MPC)
	}
	writeMessageInfo(um, u.MessageInfo)

	partyInfo := um.CreateElement("eb:PartyInfo")
	writeParty(partyInfo.CreateElement("eb:From"), u.From)
	writeParty(partyInfo.CreateElement("eb:To"), u.To)

	ci := um.CreateElement("eb:CollaborationInfo")
	if u.AgreementRef.Value != "" || u.AgreementRef.PMode != "" {
		ar := ci.CreateElement("eb:AgreementRef")
		if u.AgreementRef.Type != "" {
			ar.CreateAttr("type", u.AgreementRef.Type)
		}
		if u.AgreementRef.PMode != "" {
			ar.CreateAttr("pmode", u.AgreementRef.PMode)
		}
		ar.SetText(u.AgreementRef.Value)
	}
	svc := ci.CreateElement("eb:Service")
	if u.Service.Type != "" {
		svc.CreateAttr("type", u.Service.Type)
	}
	svc.SetText(u.Service.Value)
	ci.CreateElement("eb:Action").SetText(u.Action)
	ci.CreateElement("eb:ConversationId").SetText(u.ConversationID)

	if len(u.Properties) > 0 {
		mp := um.CreateElement("eb:MessageProperties")
		for _, prop := range u.Properties {
			writeProperty(mp, prop)
		}
	}

	if len(u.PartInfos) > 0 {
		pli := um.CreateElement("eb:PayloadInfo")
		for _, part := range u.PartInfos {
			pi := pli.CreateElement("eb:PartInfo")
			if part.Href != "" {
				pi.CreateAttr("href", part.Href)
			}
			if len(part.Properties) > 0 {
				props := pi.CreateElement("eb:PartProperties")
				for _, prop := range part.Properties {
					writeProperty(props, prop)
				}
			}
		}
	}

	return doc
}

// BuildReceipt serializes a Receipt signal referencing refToMessageID.
// nonRepudiation, when non-empty, is the list of ds:Reference elements
// from the signed inbound document; they are wrapped as
// ebbp:NonRepudiationInformation. Without references the receipt stays
// plain.
func BuildReceipt(v SOAPVersion, refToMessageID string, nonRepudiation []*etree.Element) *etree.Document {
	doc, header, _ := NewEnvelope(v)
	messaging := createMessaging(header, v)

	signal := messaging.CreateElement("eb:SignalMessage")
	writeMessageInfo(signal, MessageInfo{
		MessageID:      NewMessageID(),
		RefToMessageID: refToMessageID,
	})

	receipt := signal.CreateElement("eb:Receipt")
	if len(nonRepudiation) > 0 {
		nri := receipt.CreateElement("ebbp:NonRepudiationInformation")
		nri.CreateAttr("xmlns:ebbp", NsEBBP)
		for _, ref := range nonRepudiation {
			part := nri.CreateElement("ebbp:MessagePartNRInformation")
			part.AddChild(ref.Copy())
		}
	}

	return doc
}

// BuildErrorSignal serializes an Error signal carrying the given details.
func BuildErrorSignal(v SOAPVersion, refToMessageID string, details []ErrorDetail) *etree.Document {
	doc, header, _ := NewEnvelope(v)
	messaging := createMessaging(header, v)

	signal := messaging.CreateElement("eb:SignalMessage")
	writeMessageInfo(signal, MessageInfo{
		MessageID:      NewMessageID(),
		RefToMessageID: refToMessageID,
	})

	for _, d := range details {
		errEl := signal.CreateElement("eb:Error")
		errEl.CreateAttr("errorCode", d.Code)
		errEl.CreateAttr("severity", d.Severity)
		if d.ShortDescription != "" {
			errEl.CreateAttr("shortDescription", d.ShortDescription)
		}
		if d.Category != "" {
			errEl.CreateAttr("category", d.Category)
		}
		if d.Origin != "" {
			errEl.CreateAttr("origin", d.Origin)
		}
		if d.RefToMessage != "" {
			errEl.CreateAttr("refToMessageInError", d.RefToMessage)
		}
		if d.Description != "" {
			desc := errEl.CreateElement("eb:Description")
			desc.CreateAttr("xml:lang", "en")
			desc.SetText(d.Description)
		}
		if d.Detail != "" {
			errEl.CreateElement("eb:ErrorDetail").SetText(d.Detail)
		}
	}

	return doc
}

func writeParty(el *etree.Element, p Party) {
	for _, id := range p.IDs {
		pid := el.CreateElement("eb:PartyId")
		if id.Type != "" {
			pid.CreateAttr("type", id.Type)
		}
		pid.SetText(id.Value)
	}
	el.CreateElement("eb:Role").SetText(p.Role)
}

func writeProperty(parent *etree.Element, prop Property) {
	el := parent.CreateElement("eb:Property")
	el.CreateAttr("name", prop.Name)
	if prop.Type != "" {
		el.CreateAttr("type", prop.Type)
	}
	el.SetText(prop.Value)
}
