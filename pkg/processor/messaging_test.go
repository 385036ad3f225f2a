package processor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

func userMessageEnvelope(service, action, refTo string, partInfos string) string {
	ref := ""
	if refTo != "" {
		ref = fmt.Sprintf("<eb:RefToMessageId>%s</eb:RefToMessageId>", refTo)
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<S12:Envelope xmlns:S12="http://www.w3.org/2003/05/soap-envelope"
              xmlns:eb="http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/">
  <S12:Header>
    <eb:Messaging S12:mustUnderstand="true">
      <eb:UserMessage>
        <eb:MessageInfo>
          <eb:MessageId>um-1@sender.example</eb:MessageId>
          %s
        </eb:MessageInfo>
        <eb:PartyInfo>
          <eb:From><eb:PartyId>sender</eb:PartyId><eb:Role>initiator</eb:Role></eb:From>
          <eb:To><eb:PartyId>receiver</eb:PartyId><eb:Role>responder</eb:Role></eb:To>
        </eb:PartyInfo>
        <eb:CollaborationInfo>
          <eb:Service>%s</eb:Service>
          <eb:Action>%s</eb:Action>
          <eb:ConversationId>conv-1</eb:ConversationId>
        </eb:CollaborationInfo>
        %s
      </eb:UserMessage>
    </eb:Messaging>
  </S12:Header>
  <S12:Body/>
</S12:Envelope>`, ref, service, action, partInfos)
}

const gzipPartInfo = `<eb:PayloadInfo>
  <eb:PartInfo href="cid:payload-1">
    <eb:PartProperties>
      <eb:Property name="MimeType">application/xml</eb:Property>
      <eb:Property name="CompressionType">application/gzip</eb:Property>
    </eb:PartProperties>
  </eb:PartInfo>
</eb:PayloadInfo>`

func registryWith(t *testing.T, pms ...*pmode.ProcessingMode) *pmode.Registry {
	t.Helper()
	r := pmode.NewRegistry()
	for _, pm := range pms {
		require.NoError(t, r.Add(pm))
	}
	return r
}

func onewayPMode(id, service, action string) *pmode.ProcessingMode {
	return &pmode.ProcessingMode{
		ID:         id,
		MEP:        string(mep.OneWay),
		MEPBinding: string(mep.Push),
		Legs: []*pmode.Leg{{
			BusinessInfo: &pmode.BusinessInfo{Service: service, Action: action},
		}},
	}
}

func attachment(id string) *mime.Attachment {
	return &mime.Attachment{ContentID: id, Source: mime.BytesSource([]byte("data"))}
}

func runMessaging(t *testing.T, p *MessagingProcessor, st *State) (ebms.List, error) {
	t.Helper()
	el := message.FindMessaging(st.Doc)
	require.NotNil(t, el)
	return p.Process(context.Background(), el, st)
}

func TestMessagingResolvesUserMessage(t *testing.T) {
	st := stateFor(t, userMessageEnvelope("urn:svc", "Submit", "", gzipPartInfo))
	st.Attachments = []*mime.Attachment{attachment("payload-1")}

	p := NewMessagingProcessor(registryWith(t, onewayPMode("pm-1", "urn:svc", "Submit")), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	assert.True(t, errs.Empty())

	assert.Equal(t, "um-1@sender.example", st.MessageID)
	assert.Equal(t, "default", st.ProfileID)
	require.NotNil(t, st.PMode)
	assert.Equal(t, "pm-1", st.PMode.ID)
	assert.Equal(t, 1, st.LegNumber)
	require.NotNil(t, st.Leg)
	assert.Equal(t, "application/gzip", st.CompressionModes["payload-1"])
	assert.False(t, st.Ping)
}

func TestMessagingAttachmentCountMismatch(t *testing.T) {
	st := stateFor(t, userMessageEnvelope("urn:svc", "Submit", "", gzipPartInfo))
	// PartInfo references one cid: part, none arrived.

	p := NewMessagingProcessor(registryWith(t, onewayPMode("pm-1", "urn:svc", "Submit")), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ebms.CodeExternalPayloadError, errs[0].Code)
	assert.Equal(t, "um-1@sender.example", errs[0].RefToMessage)
}

func TestMessagingPartInfoNamesMissingAttachment(t *testing.T) {
	partInfo := `<eb:PayloadInfo><eb:PartInfo href="cid:does-not-exist"/></eb:PayloadInfo>`
	st := stateFor(t, userMessageEnvelope("urn:svc", "Submit", "", partInfo))
	// Counts agree, the content ID does not.
	st.Attachments = []*mime.Attachment{attachment("actual-attachment")}

	p := NewMessagingProcessor(registryWith(t, onewayPMode("pm-1", "urn:svc", "Submit")), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ebms.CodeExternalPayloadError, errs[0].Code)
	assert.Equal(t, "um-1@sender.example", errs[0].RefToMessage)
}

func TestMessagingNoPModeIsBadRequest(t *testing.T) {
	st := stateFor(t, userMessageEnvelope("urn:unknown", "Submit", "", ""))

	p := NewMessagingProcessor(registryWith(t), "default")

	_, err := runMessaging(t, p, st)
	assert.ErrorIs(t, err, ebms.ErrBadRequest)
}

func TestMessagingPartyMismatch(t *testing.T) {
	pm := onewayPMode("pm-1", "urn:svc", "Submit")
	pm.Responder = "someone-else"

	st := stateFor(t, userMessageEnvelope("urn:svc", "Submit", "", ""))
	p := NewMessagingProcessor(registryWith(t, pm), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ebms.CodeProcessingModeMismatch, errs[0].Code)
}

func TestMessagingTwoWaySelectsLegTwo(t *testing.T) {
	pm := &pmode.ProcessingMode{
		ID:         "pm-twoway",
		MEP:        string(mep.TwoWay),
		MEPBinding: string(mep.PushAndPush),
		Legs: []*pmode.Leg{
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Submit"}},
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Respond"}},
		},
	}

	st := stateFor(t, userMessageEnvelope("urn:svc", "Submit", "earlier-msg", ""))
	p := NewMessagingProcessor(registryWith(t, pm), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
	assert.Equal(t, 2, st.LegNumber)
	assert.Same(t, pm.Legs[1], st.Leg)
}

func TestMessagingPingDetected(t *testing.T) {
	st := stateFor(t, userMessageEnvelope(message.TestService, message.TestAction, "", ""))
	p := NewMessagingProcessor(registryWith(t, onewayPMode("pm-test", message.TestService, message.TestAction)), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
	assert.True(t, st.Ping)
}

func TestMessagingReceiptWithoutPMode(t *testing.T) {
	st := stateFor(t, `<?xml version="1.0"?>
<S12:Envelope xmlns:S12="http://www.w3.org/2003/05/soap-envelope"
              xmlns:eb="http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/">
  <S12:Header>
    <eb:Messaging S12:mustUnderstand="true">
      <eb:SignalMessage>
        <eb:MessageInfo>
          <eb:MessageId>receipt-1</eb:MessageId>
          <eb:RefToMessageId>um-1</eb:RefToMessageId>
        </eb:MessageInfo>
        <eb:Receipt/>
      </eb:SignalMessage>
    </eb:Messaging>
  </S12:Header>
  <S12:Body/>
</S12:Envelope>`)

	p := NewMessagingProcessor(registryWith(t), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
	assert.Nil(t, st.PMode)
	assert.Equal(t, "receipt-1", st.MessageID)
}

func TestMessagingAmbiguousPayload(t *testing.T) {
	st := stateFor(t, `<?xml version="1.0"?>
<S12:Envelope xmlns:S12="http://www.w3.org/2003/05/soap-envelope"
              xmlns:eb="http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/">
  <S12:Header><eb:Messaging S12:mustUnderstand="true"/></S12:Header>
  <S12:Body/>
</S12:Envelope>`)

	p := NewMessagingProcessor(registryWith(t), "default")

	errs, err := runMessaging(t, p, st)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ebms.CodeValueNotRecognized, errs[0].Code)
}
