package response

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

func inboundUserMessage() *message.UserMessage {
	return &message.UserMessage{
		MessageInfo: message.MessageInfo{MessageID: "um-1@sender.example"},
		From:        message.Party{IDs: []message.PartyID{{Value: "sender"}}, Role: "initiator"},
		To:          message.Party{IDs: []message.PartyID{{Value: "receiver"}}, Role: "responder"},
		Service:     message.Service{Value: "urn:svc"},
		Action:      "Submit",
		Properties: []message.Property{
			{Name: message.PropOriginalSender, Value: "C1"},
			{Name: message.PropFinalRecipient, Value: "C4"},
		},
	}
}

func userMessageState(pm *pmode.ProcessingMode) *processor.State {
	st := &processor.State{
		SOAPVersion: message.SOAP12,
		MessageID:   "um-1@sender.example",
		Messaging:   &message.Messaging{UserMessage: inboundUserMessage()},
		PMode:       pm,
		LegNumber:   1,
	}
	if pm != nil {
		st.Leg = pm.Leg(1)
	}
	return st
}

func onewayPush() *pmode.ProcessingMode {
	return &pmode.ProcessingMode{
		ID:         "pm-push",
		MEP:        string(mep.OneWay),
		MEPBinding: string(mep.Push),
		Legs: []*pmode.Leg{{
			BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Submit"},
		}},
	}
}

func extractResponse(t *testing.T, resp *Response) *message.Messaging {
	t.Helper()
	f := &mime.Framer{}
	framed, err := f.Frame(strings.NewReader(string(resp.Body)), resp.ContentType)
	require.NoError(t, err)
	msg, err := message.Extract(message.FindMessaging(framed.Doc))
	require.NoError(t, err)
	return msg
}

func TestBuildReceiptForUserMessage(t *testing.T) {
	b := NewBuilder(nil, nil)
	st := userMessageState(onewayPush())

	resp, err := b.Build(context.Background(), st, &dispatch.Outcome{}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)

	msg := extractResponse(t, resp)
	require.Equal(t, message.KindReceipt, msg.Kind())
	assert.Equal(t, "um-1@sender.example", msg.Receipt.RefToMessageID)
	assert.False(t, msg.Receipt.NonRepudiation)
}

func TestBuildReceiptSuppressedByLeg(t *testing.T) {
	pm := onewayPush()
	pm.Legs[0].Security = &pmode.Security{SendReceipt: &pmode.SendReceipt{Enabled: pmode.Bool(false)}}

	b := NewBuilder(nil, nil)
	resp, err := b.Build(context.Background(), userMessageState(pm), &dispatch.Outcome{}, nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestBuildErrorSignal(t *testing.T) {
	b := NewBuilder(nil, nil)
	st := userMessageState(onewayPush())
	errs := ebms.List{ebms.ProcessingModeMismatch("wrong party").WithRef(st.MessageID)}

	resp, err := b.Build(context.Background(), st, nil, errs)
	require.NoError(t, err)
	require.NotNil(t, resp)

	msg := extractResponse(t, resp)
	require.Equal(t, message.KindError, msg.Kind())
	require.Len(t, msg.ErrorSignal.Errors, 1)
	assert.Equal(t, ebms.CodeProcessingModeMismatch, msg.ErrorSignal.Errors[0].Code)
}

func TestErrorsSuppressedForInboundErrorSignal(t *testing.T) {
	b := NewBuilder(nil, nil)
	st := &processor.State{
		SOAPVersion: message.SOAP12,
		MessageID:   "err-1",
		Messaging: &message.Messaging{ErrorSignal: &message.ErrorSignal{
			MessageInfo: message.MessageInfo{MessageID: "err-1"},
		}},
	}

	resp, err := b.Build(context.Background(), st, nil, ebms.List{ebms.Other("x")})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestErrorsSuppressedByLegPolicy(t *testing.T) {
	pm := onewayPush()
	pm.Legs[0].ErrorHandling = &pmode.ErrorHandling{ReportAsResponse: pmode.Bool(false)}

	b := NewBuilder(nil, nil)
	resp, err := b.Build(context.Background(), userMessageState(pm), nil, ebms.List{ebms.Other("x")})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestNoResponseForInboundReceipt(t *testing.T) {
	b := NewBuilder(nil, nil)
	st := &processor.State{
		SOAPVersion: message.SOAP12,
		Messaging: &message.Messaging{Receipt: &message.Receipt{
			MessageInfo: message.MessageInfo{MessageID: "receipt-1"},
		}},
	}

	resp, err := b.Build(context.Background(), st, &dispatch.Outcome{}, nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestSyncTwoWayReversesUserMessage(t *testing.T) {
	pm := &pmode.ProcessingMode{
		ID:         "pm-sync",
		MEP:        string(mep.TwoWay),
		MEPBinding: string(mep.Sync),
		Legs: []*pmode.Leg{
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Submit"}},
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Respond"}},
		},
	}

	b := NewBuilder(nil, nil)
	st := userMessageState(pm)
	atts := []*mime.Attachment{{
		ContentID:   "reply-1",
		ContentType: "application/xml",
		Source:      mime.BytesSource([]byte("<Reply/>")),
	}}

	resp, err := b.Build(context.Background(), st, &dispatch.Outcome{Attachments: atts}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Contains(t, resp.ContentType, "multipart/related")

	f := &mime.Framer{}
	framed, err := f.Frame(strings.NewReader(string(resp.Body)), resp.ContentType)
	require.NoError(t, err)
	require.Len(t, framed.Attachments, 1)

	msg, err := message.Extract(message.FindMessaging(framed.Doc))
	require.NoError(t, err)
	require.Equal(t, message.KindUserMessage, msg.Kind())

	um := msg.UserMessage
	assert.Equal(t, "um-1@sender.example", um.RefToMessageID)
	assert.Equal(t, "receiver", um.From.FirstID())
	assert.Equal(t, "sender", um.To.FirstID())
	require.Len(t, um.PartInfos, 1)
	assert.Equal(t, "cid:reply-1", um.PartInfos[0].Href)
}

func TestSyncTwoWaySkippedDispatchFallsBackToReceipt(t *testing.T) {
	pm := &pmode.ProcessingMode{
		ID:         "pm-sync",
		MEP:        string(mep.TwoWay),
		MEPBinding: string(mep.Sync),
		Legs: []*pmode.Leg{
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Submit"}},
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Respond"}},
		},
	}

	b := NewBuilder(nil, nil)
	resp, err := b.Build(context.Background(), userMessageState(pm), &dispatch.Outcome{Skipped: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)

	msg := extractResponse(t, resp)
	assert.Equal(t, message.KindReceipt, msg.Kind())
}

func TestPullRequestAnswered(t *testing.T) {
	pm := &pmode.ProcessingMode{
		ID:         "pm-pull",
		MEP:        string(mep.OneWay),
		MEPBinding: string(mep.Pull),
		Legs: []*pmode.Leg{{
			BusinessInfo: &pmode.BusinessInfo{MPC: message.DefaultMPC},
		}},
	}
	st := &processor.State{
		SOAPVersion: message.SOAP12,
		MessageID:   "pull-1",
		Messaging: &message.Messaging{PullRequest: &message.PullRequest{
			MessageInfo: message.MessageInfo{MessageID: "pull-1"},
			MPC:         message.DefaultMPC,
		}},
		PMode:     pm,
		Leg:       pm.Leg(1),
		LegNumber: 1,
	}

	queued := &message.UserMessage{
		MessageInfo: message.MessageInfo{MessageID: "queued-1"},
		From:        message.Party{IDs: []message.PartyID{{Value: "receiver"}}},
		To:          message.Party{IDs: []message.PartyID{{Value: "puller"}}},
		Service:     message.Service{Value: "urn:svc"},
		Action:      "Deliver",
	}

	b := NewBuilder(nil, nil)
	resp, err := b.Build(context.Background(), st, &dispatch.Outcome{PullResponse: queued}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)

	msg := extractResponse(t, resp)
	require.Equal(t, message.KindUserMessage, msg.Kind())
	assert.Equal(t, "queued-1", msg.UserMessage.MessageID)
	assert.Equal(t, "pull-1", msg.UserMessage.RefToMessageID)
}

func TestPullRequestWithoutMessage(t *testing.T) {
	st := &processor.State{
		SOAPVersion: message.SOAP12,
		Messaging: &message.Messaging{PullRequest: &message.PullRequest{
			MessageInfo: message.MessageInfo{MessageID: "pull-1"},
		}},
	}

	b := NewBuilder(nil, nil)
	resp, err := b.Build(context.Background(), st, &dispatch.Outcome{}, nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestBuildAsyncReply(t *testing.T) {
	pm := &pmode.ProcessingMode{
		ID:         "pm-async",
		MEP:        string(mep.TwoWay),
		MEPBinding: string(mep.PushAndPush),
		Legs: []*pmode.Leg{
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Submit"}},
			{BusinessInfo: &pmode.BusinessInfo{Service: "urn:svc", Action: "Respond"}},
		},
	}

	b := NewBuilder(nil, nil)
	st := userMessageState(pm)

	resp, err := b.BuildAsyncReply(context.Background(), st, &dispatch.Outcome{})
	require.NoError(t, err)
	require.NotNil(t, resp)

	msg := extractResponse(t, resp)
	require.Equal(t, message.KindUserMessage, msg.Kind())
	assert.Equal(t, "um-1@sender.example", msg.UserMessage.RefToMessageID)
}
