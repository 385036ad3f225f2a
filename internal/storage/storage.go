// Package storage persists received AS4 messages and their payloads.
//
// All store implementations must be safe for concurrent use from
// multiple goroutines. The mongodb sub-package provides the production
// implementation; the in-memory store serves tests and single-node
// setups.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches the message ID.
var ErrNotFound = errors.New("message not found")

// Kind labels what the stored message was.
type Kind string

const (
	KindUserMessage Kind = "user-message"
	KindReceipt     Kind = "receipt"
	KindError       Kind = "error"
	KindPullRequest Kind = "pull-request"
)

// Record is one received message.
type Record struct {
	MessageID      string    `bson:"_id"`
	RefToMessageID string    `bson:"ref_to_message_id,omitempty"`
	ConversationID string    `bson:"conversation_id,omitempty"`
	Kind           Kind      `bson:"kind"`
	PModeID        string    `bson:"pmode_id,omitempty"`
	FromParty      string    `bson:"from_party,omitempty"`
	ToParty        string    `bson:"to_party,omitempty"`
	Service        string    `bson:"service,omitempty"`
	Action         string    `bson:"action,omitempty"`
	MPC            string    `bson:"mpc,omitempty"`
	SignatureValid bool      `bson:"signature_valid"`
	ReceivedAt     time.Time `bson:"received_at"`
	Payloads       []Payload `bson:"payloads,omitempty"`
}

// Payload is one stored attachment.
type Payload struct {
	ContentID string `bson:"content_id"`
	MimeType  string `bson:"mime_type"`
	Size      int64  `bson:"size"`
	Data      []byte `bson:"data,omitempty"`
	Checksum  string `bson:"checksum,omitempty"`
}

// Filter narrows ListMessages.
type Filter struct {
	Kind    Kind
	Service string
	Action  string
	Since   *time.Time
	Limit   int
}

// Store persists received messages.
type Store interface {
	// SaveMessage stores a record. Saving an existing message ID
	// overwrites the record.
	SaveMessage(ctx context.Context, rec *Record) error

	// GetMessage retrieves a record by AS4 message ID.
	GetMessage(ctx context.Context, messageID string) (*Record, error)

	// ListMessages returns records matching the filter, newest first.
	ListMessages(ctx context.Context, filter Filter) ([]*Record, error)

	// Close releases storage resources.
	Close(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
