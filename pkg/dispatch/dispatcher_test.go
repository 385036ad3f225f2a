package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-msh/pkg/compression"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

type scriptedHandler struct {
	userResult   Result
	signalResult Result
	userCalls    int
	signalCalls  int
}

func (h *scriptedHandler) ProcessUserMessage(context.Context, Metadata, *message.UserMessage, *processor.State) Result {
	h.userCalls++
	return h.userResult
}

func (h *scriptedHandler) ProcessSignalMessage(context.Context, Metadata, *message.Messaging, *processor.State) Result {
	h.signalCalls++
	return h.signalResult
}

func userState() *processor.State {
	st := &processor.State{
		MessageID: "um-1",
		Messaging: &message.Messaging{UserMessage: &message.UserMessage{
			MessageInfo: message.MessageInfo{MessageID: "um-1"},
		}},
	}
	return st
}

func signalState() *processor.State {
	return &processor.State{
		MessageID: "pull-1",
		Messaging: &message.Messaging{PullRequest: &message.PullRequest{
			MessageInfo: message.MessageInfo{MessageID: "pull-1"},
		}},
	}
}

func TestDispatchRoutesUserMessage(t *testing.T) {
	h := &scriptedHandler{userResult: Ok(), signalResult: Ok()}
	d := NewDispatcher(nil)
	d.Register(h)

	out := d.Dispatch(context.Background(), Metadata{}, userState(), false)
	assert.False(t, out.Failed())
	assert.Equal(t, 1, h.userCalls)
	assert.Equal(t, 0, h.signalCalls)
}

func TestDispatchRoutesSignalMessage(t *testing.T) {
	h := &scriptedHandler{userResult: Ok(), signalResult: Ok()}
	d := NewDispatcher(nil)
	d.Register(h)

	out := d.Dispatch(context.Background(), Metadata{}, signalState(), false)
	assert.False(t, out.Failed())
	assert.Equal(t, 0, h.userCalls)
	assert.Equal(t, 1, h.signalCalls)
}

func TestDispatchSkip(t *testing.T) {
	h := &scriptedHandler{userResult: Ok()}
	d := NewDispatcher(nil)
	d.Register(h)

	out := d.Dispatch(context.Background(), Metadata{}, userState(), true)
	assert.True(t, out.Skipped)
	assert.Equal(t, 0, h.userCalls)
}

func TestDispatchErrorsHaltChain(t *testing.T) {
	failing := &scriptedHandler{userResult: Failed(ebms.Other("boom"))}
	after := &scriptedHandler{userResult: Ok()}
	d := NewDispatcher(nil)
	d.Register(failing)
	d.Register(after)

	out := d.Dispatch(context.Background(), Metadata{}, userState(), false)
	require.True(t, out.Failed())
	assert.Equal(t, "um-1", out.Errors[0].RefToMessage)
	assert.Equal(t, 0, after.userCalls)
}

func TestDispatchUnsuccessfulWithoutErrors(t *testing.T) {
	h := &scriptedHandler{userResult: Result{Success: false}}
	d := NewDispatcher(nil)
	d.Register(h)

	out := d.Dispatch(context.Background(), Metadata{}, userState(), false)
	require.True(t, out.Failed())
	assert.Equal(t, ebms.CodeOther, out.Errors[0].Code)
}

func TestDispatchAttachmentsAccumulate(t *testing.T) {
	a1 := &mime.Attachment{ContentID: "r1", Source: mime.BytesSource([]byte("1"))}
	a2 := &mime.Attachment{ContentID: "r2", Source: mime.BytesSource([]byte("2"))}
	d := NewDispatcher(nil)
	d.Register(&scriptedHandler{userResult: Result{Success: true, Attachments: []*mime.Attachment{a1}}})
	d.Register(&scriptedHandler{userResult: Result{Success: true, Attachments: []*mime.Attachment{a2}}})

	out := d.Dispatch(context.Background(), Metadata{}, userState(), false)
	require.False(t, out.Failed())
	assert.Equal(t, []*mime.Attachment{a1, a2}, out.Attachments)
}

func TestDispatchSecondAsyncURLIsInconsistent(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&scriptedHandler{userResult: Result{Success: true, AsyncResponseURL: "https://a.example/msh"}})
	d.Register(&scriptedHandler{userResult: Result{Success: true, AsyncResponseURL: "https://b.example/msh"}})

	out := d.Dispatch(context.Background(), Metadata{}, userState(), false)
	require.True(t, out.Failed())
	assert.Equal(t, ebms.CodeValueInconsistent, out.Errors[0].Code)
}

func TestDispatchSecondPullResponseIsInconsistent(t *testing.T) {
	um := &message.UserMessage{MessageInfo: message.MessageInfo{MessageID: "q-1"}}
	d := NewDispatcher(nil)
	d.Register(&scriptedHandler{signalResult: Result{Success: true, PullResponse: um}})
	d.Register(&scriptedHandler{signalResult: Result{Success: true, PullResponse: um}})

	out := d.Dispatch(context.Background(), Metadata{}, signalState(), false)
	require.True(t, out.Failed())
	assert.Equal(t, ebms.CodeValueInconsistent, out.Errors[0].Code)
}

func TestPayloadError(t *testing.T) {
	e := PayloadError(compression.ErrDecompression)
	assert.Equal(t, ebms.CodeDecompressionFailure, e.Code)

	e = PayloadError(assert.AnError)
	assert.Equal(t, ebms.CodeOther, e.Code)
}

func TestSynchronous(t *testing.T) {
	st := &processor.State{}
	assert.True(t, Synchronous(st))

	st.PMode = &pmode.ProcessingMode{
		MEP:        string(mep.TwoWay),
		MEPBinding: string(mep.PushAndPush),
	}
	st.LegNumber = 1
	assert.False(t, Synchronous(st))

	st.LegNumber = 2
	assert.True(t, Synchronous(st))

	st.PMode.MEPBinding = string(mep.Sync)
	st.LegNumber = 1
	assert.True(t, Synchronous(st))

	st.PMode.MEP = string(mep.OneWay)
	st.PMode.MEPBinding = string(mep.Push)
	assert.True(t, Synchronous(st))
}
