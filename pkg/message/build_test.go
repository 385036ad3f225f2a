package message

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUserMessageRoundTrip(t *testing.T) {
	um := reversibleUserMessage()
	um.PartInfos = []PartInfo{{
		Href: "cid:payload-1",
		Properties: []Property{
			{Name: PartPropMimeType, Value: "application/xml"},
		},
	}}

	doc := BuildUserMessage(um, SOAP12)
	require.NotNil(t, doc.Root())
	assert.Equal(t, NsSOAP12, doc.Root().NamespaceURI())

	parsed, err := Extract(FindMessaging(doc))
	require.NoError(t, err)
	require.Equal(t, KindUserMessage, parsed.Kind())

	got := parsed.UserMessage
	assert.Equal(t, um.MessageID, got.MessageID)
	assert.Equal(t, um.Service, got.Service)
	assert.Equal(t, um.Action, got.Action)
	assert.Equal(t, um.From.FirstID(), got.From.FirstID())
	assert.Equal(t, um.To.FirstID(), got.To.FirstID())
	require.Len(t, got.PartInfos, 1)
	assert.Equal(t, "cid:payload-1", got.PartInfos[0].Href)
}

func TestBuildReceiptPlain(t *testing.T) {
	doc := BuildReceipt(SOAP12, "um-1", nil)

	parsed, err := Extract(FindMessaging(doc))
	require.NoError(t, err)
	require.Equal(t, KindReceipt, parsed.Kind())
	assert.Equal(t, "um-1", parsed.Receipt.RefToMessageID)
	assert.False(t, parsed.Receipt.NonRepudiation)
}

func TestBuildReceiptNonRepudiation(t *testing.T) {
	ref := etree.NewElement("Reference")
	ref.Space = "ds"
	ref.CreateAttr("xmlns:ds", NsDS)
	ref.CreateAttr("URI", "#body")

	doc := BuildReceipt(SOAP12, "um-1", []*etree.Element{ref})

	parsed, err := Extract(FindMessaging(doc))
	require.NoError(t, err)
	assert.True(t, parsed.Receipt.NonRepudiation)
}

func TestBuildErrorSignal(t *testing.T) {
	details := []ErrorDetail{{
		Code:             "EBMS:0010",
		Severity:         "failure",
		ShortDescription: "ProcessingModeMismatch",
		Category:         "Processing",
		Origin:           "ebMS",
		Description:      "no matching pmode",
		RefToMessage:     "um-1",
	}}

	doc := BuildErrorSignal(SOAP12, "um-1", details)

	parsed, err := Extract(FindMessaging(doc))
	require.NoError(t, err)
	require.Equal(t, KindError, parsed.Kind())
	assert.Equal(t, "um-1", parsed.ErrorSignal.RefToMessageID)
	require.Len(t, parsed.ErrorSignal.Errors, 1)
	assert.Equal(t, "EBMS:0010", parsed.ErrorSignal.Errors[0].Code)
	assert.Equal(t, "no matching pmode", parsed.ErrorSignal.Errors[0].Description)
}

func TestBuildMessagingMustUnderstand(t *testing.T) {
	doc := BuildReceipt(SOAP12, "um-1", nil)
	messaging := FindMessaging(doc)
	require.NotNil(t, messaging)

	found := false
	for _, attr := range messaging.Attr {
		if attr.Key == "mustUnderstand" {
			assert.Equal(t, "true", attr.Value)
			found = true
		}
	}
	assert.True(t, found)
}
