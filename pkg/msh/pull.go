package msh

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

// Queue supplies user messages awaiting pull delivery, per MPC.
type Queue interface {
	// Dequeue removes and returns the oldest message queued on the MPC.
	// An empty MPC returns a nil message and no error.
	Dequeue(ctx context.Context, mpc string) (*message.UserMessage, []*mime.Attachment, error)
}

// PullHandler answers PullRequest signals from a Queue. An empty MPC is
// the EmptyMessagePartitionChannel warning, as the protocol requires.
type PullHandler struct {
	Queue Queue
}

// ProcessUserMessage implements dispatch.Handler; user messages are not
// this handler's concern.
func (h *PullHandler) ProcessUserMessage(context.Context, dispatch.Metadata, *message.UserMessage, *processor.State) dispatch.Result {
	return dispatch.Ok()
}

// ProcessSignalMessage implements dispatch.Handler.
func (h *PullHandler) ProcessSignalMessage(ctx context.Context, _ dispatch.Metadata, msg *message.Messaging, st *processor.State) dispatch.Result {
	pr := msg.PullRequest
	if pr == nil {
		return dispatch.Ok()
	}
	mpc := pr.MPC
	if mpc == "" {
		mpc = message.DefaultMPC
	}

	um, atts, err := h.Queue.Dequeue(ctx, mpc)
	if err != nil {
		return dispatch.Failed(ebms.Other(fmt.Sprintf("dequeuing from %s: %v", mpc, err)))
	}
	if um == nil {
		return dispatch.Failed(ebms.EmptyMessagePartitionChannel(mpc))
	}
	if um.RefToMessageID == "" {
		um.RefToMessageID = st.MessageID
	}
	return dispatch.Result{Success: true, PullResponse: um, Attachments: atts}
}

type queued struct {
	um   *message.UserMessage
	atts []*mime.Attachment
}

// MemoryQueue is an in-process Queue, FIFO per MPC.
type MemoryQueue struct {
	mu    sync.Mutex
	byMPC map[string][]queued
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byMPC: make(map[string][]queued)}
}

// Enqueue stores a message for later pull delivery on the MPC.
func (q *MemoryQueue) Enqueue(mpc string, um *message.UserMessage, atts []*mime.Attachment) {
	if mpc == "" {
		mpc = message.DefaultMPC
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byMPC[mpc] = append(q.byMPC[mpc], queued{um: um, atts: atts})
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(_ context.Context, mpc string) (*message.UserMessage, []*mime.Attachment, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.byMPC[mpc]
	if len(list) == 0 {
		return nil, nil, nil
	}
	head := list[0]
	q.byMPC[mpc] = list[1:]
	return head.um, head.atts, nil
}

// Len returns the number of messages queued on the MPC.
func (q *MemoryQueue) Len(mpc string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byMPC[mpc])
}

var _ dispatch.Handler = (*PullHandler)(nil)
