package msh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

type failingQueue struct{ err error }

func (q *failingQueue) Dequeue(context.Context, string) (*message.UserMessage, []*mime.Attachment, error) {
	return nil, nil, q.err
}

func pullSignal(mpc string) *message.Messaging {
	return &message.Messaging{PullRequest: &message.PullRequest{
		MessageInfo: message.MessageInfo{MessageID: "pull-1"},
		MPC:         mpc,
	}}
}

func TestPullHandlerIgnoresNonPullSignals(t *testing.T) {
	h := &PullHandler{Queue: NewMemoryQueue()}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		&message.Messaging{Receipt: &message.Receipt{}}, &processor.State{})
	assert.True(t, res.Success)
	assert.Nil(t, res.PullResponse)
}

func TestPullHandlerDefaultsMPC(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue("", &message.UserMessage{MessageInfo: message.MessageInfo{MessageID: "q-1"}}, nil)
	h := &PullHandler{Queue: q}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		pullSignal(""), &processor.State{MessageID: "pull-1"})
	require.True(t, res.Success)
	require.NotNil(t, res.PullResponse)
	assert.Equal(t, "q-1", res.PullResponse.MessageID)
	assert.Equal(t, "pull-1", res.PullResponse.RefToMessageID)
}

func TestPullHandlerKeepsExistingRef(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue("mpc-a", &message.UserMessage{MessageInfo: message.MessageInfo{
		MessageID:      "q-1",
		RefToMessageID: "earlier",
	}}, nil)
	h := &PullHandler{Queue: q}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		pullSignal("mpc-a"), &processor.State{MessageID: "pull-1"})
	require.True(t, res.Success)
	assert.Equal(t, "earlier", res.PullResponse.RefToMessageID)
}

func TestPullHandlerEmptyMPC(t *testing.T) {
	h := &PullHandler{Queue: NewMemoryQueue()}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		pullSignal("mpc-empty"), &processor.State{})
	require.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ebms.CodeEmptyPartitionChannel, res.Errors[0].Code)
	assert.Equal(t, ebms.SeverityWarning, res.Errors[0].Severity)
}

func TestPullHandlerQueueError(t *testing.T) {
	h := &PullHandler{Queue: &failingQueue{err: errors.New("backend down")}}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		pullSignal("mpc-a"), &processor.State{})
	require.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ebms.CodeOther, res.Errors[0].Code)
}

func TestPullHandlerCarriesAttachments(t *testing.T) {
	q := NewMemoryQueue()
	atts := []*mime.Attachment{{ContentID: "p1", Source: mime.BytesSource([]byte("data"))}}
	q.Enqueue("mpc-a", &message.UserMessage{MessageInfo: message.MessageInfo{MessageID: "q-1"}}, atts)
	h := &PullHandler{Queue: q}

	res := h.ProcessSignalMessage(context.Background(), dispatch.Metadata{},
		pullSignal("mpc-a"), &processor.State{})
	require.True(t, res.Success)
	assert.Equal(t, atts, res.Attachments)
}

func TestMemoryQueueSeparatesMPCs(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue("mpc-a", &message.UserMessage{MessageInfo: message.MessageInfo{MessageID: "a-1"}}, nil)
	q.Enqueue("mpc-b", &message.UserMessage{MessageInfo: message.MessageInfo{MessageID: "b-1"}}, nil)

	um, _, err := q.Dequeue(context.Background(), "mpc-b")
	require.NoError(t, err)
	assert.Equal(t, "b-1", um.MessageID)
	assert.Equal(t, 1, q.Len("mpc-a"))
	assert.Equal(t, 0, q.Len("mpc-b"))
}
