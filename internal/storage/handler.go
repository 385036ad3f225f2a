package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

// Handler persists received messages to a Store. It registers as a
// business handler so every accepted message leaves an audit record.
type Handler struct {
	store Store
	log   *slog.Logger
	// KeepPayloadData stores attachment bytes inline. When false only
	// size and checksum are recorded.
	KeepPayloadData bool
}

// NewHandler creates a persisting handler.
func NewHandler(store Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// ProcessUserMessage implements dispatch.Handler.
func (h *Handler) ProcessUserMessage(ctx context.Context, md dispatch.Metadata, um *message.UserMessage, st *processor.State) dispatch.Result {
	rec := &Record{
		MessageID:      um.MessageID,
		RefToMessageID: um.RefToMessageID,
		ConversationID: um.ConversationID,
		Kind:           KindUserMessage,
		FromParty:      um.From.FirstID(),
		ToParty:        um.To.FirstID(),
		Service:        um.Service.Value,
		Action:         um.Action,
		MPC:            um.MPC,
		SignatureValid: st.SignatureVerified,
		ReceivedAt:     md.ReceivedAt,
	}
	if st.PMode != nil {
		rec.PModeID = st.PMode.ID
	}

	for _, att := range st.EffectiveAttachments() {
		data, err := att.Bytes()
		if err != nil {
			return dispatch.Failed(dispatch.PayloadError(err))
		}
		sum := sha256.Sum256(data)
		payload := Payload{
			ContentID: att.ContentID,
			MimeType:  att.ContentType,
			Size:      int64(len(data)),
			Checksum:  hex.EncodeToString(sum[:]),
		}
		if h.KeepPayloadData {
			payload.Data = data
		}
		rec.Payloads = append(rec.Payloads, payload)
	}

	if err := h.store.SaveMessage(ctx, rec); err != nil {
		h.log.Error("failed to persist user message",
			"messageId", rec.MessageID, "error", err)
		return dispatch.Failed(dispatch.PayloadError(err))
	}

	h.log.Info("persisted user message",
		"messageId", rec.MessageID,
		"service", rec.Service,
		"action", rec.Action,
		"payloads", len(rec.Payloads))
	return dispatch.Ok()
}

// ProcessSignalMessage implements dispatch.Handler.
func (h *Handler) ProcessSignalMessage(ctx context.Context, md dispatch.Metadata, msg *message.Messaging, st *processor.State) dispatch.Result {
	rec := &Record{
		MessageID:      st.MessageID,
		SignatureValid: st.SignatureVerified,
		ReceivedAt:     md.ReceivedAt,
	}
	if st.PMode != nil {
		rec.PModeID = st.PMode.ID
	}

	switch {
	case msg.Receipt != nil:
		rec.Kind = KindReceipt
		rec.RefToMessageID = msg.Receipt.RefToMessageID
	case msg.ErrorSignal != nil:
		rec.Kind = KindError
		rec.RefToMessageID = msg.ErrorSignal.RefToMessageID
	case msg.PullRequest != nil:
		rec.Kind = KindPullRequest
		rec.MPC = msg.PullRequest.MPC
	default:
		return dispatch.Ok()
	}

	if err := h.store.SaveMessage(ctx, rec); err != nil {
		h.log.Error("failed to persist signal message",
			"messageId", rec.MessageID, "error", err)
		return dispatch.Failed(dispatch.PayloadError(err))
	}
	return dispatch.Ok()
}

var _ dispatch.Handler = (*Handler)(nil)
