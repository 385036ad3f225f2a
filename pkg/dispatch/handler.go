// Package dispatch invokes registered business handlers for extracted
// messages and merges their results, and provides the worker pool used
// for asynchronous MEP legs.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirosfoundation/go-as4-msh/pkg/compression"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

// Metadata carries transport-level facts about the inbound request,
// handed to handlers alongside the extracted message.
type Metadata struct {
	RemoteAddr string
	Headers    http.Header
	ReceivedAt time.Time
}

// Result is what one business handler returns.
type Result struct {
	Success bool
	Errors  ebms.List
	// Attachments to include in a synchronous user message response.
	Attachments []*mime.Attachment
	// AsyncResponseURL requests that the reply be delivered by an
	// outbound call instead of the back channel. At most one handler
	// per dispatch may set it.
	AsyncResponseURL string
	// PullResponse is the user message answering a pull request. At
	// most one handler per dispatch may set it.
	PullResponse *message.UserMessage
}

// Ok is a successful empty result.
func Ok() Result { return Result{Success: true} }

// Failed wraps protocol errors in a failed result.
func Failed(errs ...ebms.Error) Result {
	return Result{Errors: ebms.List(errs)}
}

// PayloadError maps an attachment read failure to its protocol error.
// Corrupt compressed payloads keep their dedicated code instead of
// collapsing into the catch-all.
func PayloadError(err error) ebms.Error {
	if errors.Is(err, compression.ErrDecompression) {
		return ebms.DecompressionFailure(err.Error())
	}
	return ebms.Other(err.Error())
}

// Handler is the business logic SPI. Handlers run in registration
// order; see Dispatcher for the merging rules.
type Handler interface {
	// ProcessUserMessage handles an inbound user message. Payloads are
	// st.EffectiveAttachments(), already decrypted and lazily
	// decompressed.
	ProcessUserMessage(ctx context.Context, md Metadata, um *message.UserMessage, st *processor.State) Result

	// ProcessSignalMessage handles an inbound signal (receipt, error or
	// pull request).
	ProcessSignalMessage(ctx context.Context, md Metadata, msg *message.Messaging, st *processor.State) Result
}
