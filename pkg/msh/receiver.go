// Package msh implements the receiving Message Service Handler: the
// pipeline that takes one inbound HTTP request from raw bytes to a
// transport verdict.
//
// Pipeline order: transport framing, header processor chain, duplicate
// detection, lazy attachment decompression, business dispatch, response
// construction. Asynchronous MEP legs move dispatch and delivery to a
// worker pool and answer the inbound request with no content.
package msh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sirosfoundation/go-as4-msh/pkg/compression"
	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
	"github.com/sirosfoundation/go-as4-msh/pkg/reliability"
	"github.com/sirosfoundation/go-as4-msh/pkg/response"
	"github.com/sirosfoundation/go-as4-msh/pkg/transport"
)

// RequestInfo carries transport-level facts about one inbound request.
type RequestInfo struct {
	RemoteAddr string
	Headers    http.Header
	ReceivedAt time.Time
}

// DumpSink receives a byte-level copy of every inbound request body.
// Opening may return a nil writer to skip dumping for that request.
type DumpSink interface {
	Open(info RequestInfo) (io.WriteCloser, error)
}

// Verdict is what the transport layer writes back.
type Verdict struct {
	Status      int
	Body        []byte
	ContentType string
}

// Receiver is the receiving MSH pipeline.
type Receiver struct {
	framer     *mime.Framer
	headers    *processor.Registry
	duplicates *reliability.Detector
	dispatcher *dispatch.Dispatcher
	responses  *response.Builder
	pool       *dispatch.Pool
	client     *transport.Client
	consumer   ebms.Consumer
	dump       DumpSink
	log        *slog.Logger
}

// Config assembles a Receiver. Framer, Headers, Dispatcher and
// Responses are required; the rest is optional.
type Config struct {
	Framer        *mime.Framer
	Headers       *processor.Registry
	Duplicates    *reliability.Detector
	Dispatcher    *dispatch.Dispatcher
	Responses     *response.Builder
	Pool          *dispatch.Pool
	Client        *transport.Client
	ErrorConsumer ebms.Consumer
	Dump          DumpSink
	Logger        *slog.Logger
}

// NewReceiver creates a Receiver.
func NewReceiver(cfg Config) (*Receiver, error) {
	if cfg.Framer == nil {
		return nil, errors.New("framer is required")
	}
	if cfg.Headers == nil {
		return nil, errors.New("header processor registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Responses == nil {
		return nil, errors.New("response builder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Receiver{
		framer:     cfg.Framer,
		headers:    cfg.Headers,
		duplicates: cfg.Duplicates,
		dispatcher: cfg.Dispatcher,
		responses:  cfg.Responses,
		pool:       cfg.Pool,
		client:     cfg.Client,
		consumer:   cfg.ErrorConsumer,
		dump:       cfg.Dump,
		log:        cfg.Logger,
	}, nil
}

// Receive processes one inbound request. It never panics outward; every
// outcome is a Verdict.
func (r *Receiver) Receive(ctx context.Context, info RequestInfo, body io.Reader, contentType string) *Verdict {
	body, closeDump := r.teeDump(info, body)
	defer closeDump()

	framed, err := r.framer.Frame(body, contentType)
	if err != nil {
		r.log.Warn("framing failed", "remote", info.RemoteAddr, "error", err)
		return &Verdict{Status: http.StatusBadRequest}
	}

	st := processor.NewState(framed.SOAPVersion, framed.Doc, framed.Attachments)

	handedOff := false
	defer func() {
		if !handedOff {
			mime.ReleaseAll(st.Attachments)
		}
	}()

	errs, err := r.headers.ProcessHeaders(ctx, st)
	if err != nil {
		return r.fatalVerdict(st, err)
	}
	if !errs.Empty() {
		return r.errorVerdict(ctx, st, errs)
	}

	r.restoreAttachments(st)

	skip, errs := r.checkDuplicateAndPing(st)
	if !errs.Empty() {
		return r.errorVerdict(ctx, st, errs)
	}

	md := dispatch.Metadata{
		RemoteAddr: info.RemoteAddr,
		Headers:    info.Headers,
		ReceivedAt: info.ReceivedAt,
	}

	if !dispatch.Synchronous(st) && r.pool != nil {
		handedOff = true
		r.submitAsync(md, st, skip)
		return &Verdict{Status: http.StatusNoContent}
	}

	out := r.dispatcher.Dispatch(ctx, md, st, skip)
	if out.Failed() {
		return r.errorVerdict(ctx, st, out.Errors)
	}

	resp, err := r.responses.Build(ctx, st, out, nil)
	if err != nil {
		return r.fatalVerdict(st, err)
	}
	return verdictFor(resp)
}

// teeDump wraps the body with the dump side channel. The wrapper is
// transparent to parsing; dump write failures are logged, never fatal.
func (r *Receiver) teeDump(info RequestInfo, body io.Reader) (io.Reader, func()) {
	if r.dump == nil {
		return body, func() {}
	}
	sink, err := r.dump.Open(info)
	if err != nil || sink == nil {
		if err != nil {
			r.log.Warn("opening dump sink failed", "error", err)
		}
		return body, func() {}
	}
	return io.TeeReader(body, sink), func() {
		if err := sink.Close(); err != nil {
			r.log.Warn("closing dump sink failed", "error", err)
		}
	}
}

// restoreAttachments reverses declared payload compression on the
// effective attachment list. Decompression is lazy; corrupt payloads
// surface when a consumer reads.
func (r *Receiver) restoreAttachments(st *processor.State) {
	if len(st.CompressionModes) == 0 {
		return
	}
	var partInfos []message.PartInfo
	if um := st.UserMessage(); um != nil {
		partInfos = um.PartInfos
	}
	restored := compression.Restore(st.EffectiveAttachments(), st.CompressionModes, partInfos)
	if st.Decrypted {
		st.DecryptedAttachments = restored
	} else {
		st.Attachments = restored
	}
}

// checkDuplicateAndPing runs duplicate detection before dispatch and
// decides whether dispatch is skipped. Duplicates are recorded as an
// error; pings skip dispatch silently.
func (r *Receiver) checkDuplicateAndPing(st *processor.State) (skip bool, errs ebms.List) {
	if st.Ping {
		skip = true
	}
	if r.duplicates == nil || st.MessageID == "" {
		return skip, nil
	}
	pmodeID := ""
	if st.PMode != nil {
		pmodeID = st.PMode.ID
	}
	if r.duplicates.RegisterAndCheck(st.MessageID, st.ProfileID, pmodeID) {
		return true, ebms.List{ebms.Other("message already processed").WithRef(st.MessageID)}
	}
	return skip, nil
}

// submitAsync moves dispatch and reply delivery to the worker pool. The
// task carries a copied subset of the request state; attachment
// ownership transfers with it.
func (r *Receiver) submitAsync(md dispatch.Metadata, st *processor.State, skip bool) {
	task := newAsyncTask(st)
	r.pool.Submit("async-dispatch "+task.MessageID, func(ctx context.Context) error {
		defer mime.ReleaseAll(task.Attachments)

		ts := task.state()
		out := r.dispatcher.Dispatch(ctx, md, ts, skip)
		if out.Failed() {
			r.notify(task.MessageID, out.Errors)
			return fmt.Errorf("async dispatch of %s failed: %v", task.MessageID, out.Errors)
		}
		if out.AsyncResponseURL == "" || r.client == nil {
			return nil
		}

		resp, err := r.responses.BuildAsyncReply(ctx, ts, out)
		if err != nil {
			return fmt.Errorf("building async reply for %s: %w", task.MessageID, err)
		}
		if resp == nil {
			return nil
		}
		if _, err := r.client.Send(ctx, out.AsyncResponseURL, resp.Body, resp.ContentType); err != nil {
			return fmt.Errorf("delivering async reply for %s: %w", task.MessageID, err)
		}
		r.log.Info("async reply delivered", "message_id", task.MessageID, "url", out.AsyncResponseURL)
		return nil
	})
}

// errorVerdict converts a protocol error list into the HTTP answer:
// an Error signal body when the leg reports errors as responses, no
// content otherwise. The error consumer sees the list either way.
func (r *Receiver) errorVerdict(ctx context.Context, st *processor.State, errs ebms.List) *Verdict {
	r.notify(st.MessageID, errs)
	r.log.Warn("request failed with protocol errors",
		"message_id", st.MessageID, "errors", len(errs))

	resp, err := r.responses.Build(ctx, st, nil, errs)
	if err != nil {
		return r.fatalVerdict(st, err)
	}
	return verdictFor(resp)
}

// fatalVerdict maps non-protocol failures: bad requests to 400,
// anything else to 500.
func (r *Receiver) fatalVerdict(st *processor.State, err error) *Verdict {
	if errors.Is(err, ebms.ErrBadRequest) {
		r.log.Warn("bad request", "message_id", st.MessageID, "error", err)
		return &Verdict{Status: http.StatusBadRequest}
	}
	r.log.Error("internal failure", "message_id", st.MessageID, "error", err)
	return &Verdict{Status: http.StatusInternalServerError}
}

func (r *Receiver) notify(messageID string, errs ebms.List) {
	if r.consumer == nil || errs.Empty() {
		return
	}
	r.consumer.ConsumeErrors(messageID, errs)
}

func verdictFor(resp *response.Response) *Verdict {
	if resp == nil {
		return &Verdict{Status: http.StatusNoContent}
	}
	return &Verdict{
		Status:      http.StatusOK,
		Body:        resp.Body,
		ContentType: resp.ContentType,
	}
}
