package dispatch

import (
	"context"
	"log/slog"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mep"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

// Outcome is the merged result of a dispatch run.
type Outcome struct {
	Errors           ebms.List
	Attachments      []*mime.Attachment
	AsyncResponseURL string
	PullResponse     *message.UserMessage
	// Skipped is set when dispatch did not run (ping or duplicate).
	Skipped bool
}

// Failed reports whether dispatch ended with protocol errors.
func (o *Outcome) Failed() bool { return !o.Errors.Empty() }

// Dispatcher runs registered handlers in order and merges their
// results.
type Dispatcher struct {
	handlers []Handler
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses slog's default.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// Register appends a handler. Handlers run in registration order.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch invokes every handler for the extracted message. A
// non-empty error list halts the run; so does a second handler
// claiming the async-response URL or the pull response, which is a
// ValueInconsistent protocol error. Response attachments accumulate
// across handlers but are only meaningful when the run succeeds.
//
// Ping messages and duplicates never reach handlers; the caller marks
// them via skip==true.
func (d *Dispatcher) Dispatch(ctx context.Context, md Metadata, st *processor.State, skip bool) *Outcome {
	out := &Outcome{}
	if skip {
		out.Skipped = true
		return out
	}
	if st.Messaging == nil {
		return out
	}

	for _, h := range d.handlers {
		var res Result
		if um := st.UserMessage(); um != nil {
			res = h.ProcessUserMessage(ctx, md, um, st)
		} else {
			res = h.ProcessSignalMessage(ctx, md, st.Messaging, st)
		}

		out.Attachments = append(out.Attachments, res.Attachments...)

		if !res.Errors.Empty() {
			out.Errors = res.Errors.WithRef(st.MessageID)
			return out
		}
		if !res.Success {
			out.Errors = ebms.List{ebms.Other("business handler failed").WithRef(st.MessageID)}
			return out
		}

		if res.AsyncResponseURL != "" {
			if out.AsyncResponseURL != "" {
				out.Errors = ebms.List{ebms.ValueInconsistent(
					"more than one handler supplied an asynchronous response URL").WithRef(st.MessageID)}
				return out
			}
			out.AsyncResponseURL = res.AsyncResponseURL
		}

		if res.PullResponse != nil {
			if out.PullResponse != nil {
				out.Errors = ebms.List{ebms.ValueInconsistent(
					"more than one handler supplied a pull response").WithRef(st.MessageID)}
				return out
			}
			out.PullResponse = res.PullResponse
		}
	}

	d.log.Debug("dispatch complete",
		"message_id", st.MessageID,
		"handlers", len(d.handlers),
		"attachments", len(out.Attachments))
	return out
}

// Synchronous reports whether dispatch (and its response) runs on the
// inbound request's control flow. Dispatch moves to the worker pool
// only for leg 1 of a push-initiated asynchronous MEP whose reply is
// delivered by an outbound call.
func Synchronous(st *processor.State) bool {
	if st.PMode == nil {
		return true
	}
	pattern := mep.Pattern(st.PMode.MEP)
	binding := mep.Binding(st.PMode.MEPBinding)
	if !mep.IsAsynchronousLeg(pattern, binding, st.LegNumber) {
		return true
	}
	return binding != mep.PushAndPush
}
