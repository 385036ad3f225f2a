package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewMessageID generates a unique ebMS message identifier.
func NewMessageID() string {
	return uuid.NewString() + "@as4.siros.org"
}

// Reverse builds the leg-2 user message answering u on a synchronous
// two-way exchange: parties swap sides, the originalSender and
// finalRecipient properties swap values, collaboration info is carried over
// unchanged and the new message references the original by ID.
//
// A user message missing either the originalSender or the finalRecipient
// property cannot be reversed.
func (u *UserMessage) Reverse() (*UserMessage, error) {
	sender, ok := u.Property(PropOriginalSender)
	if !ok {
		return nil, fmt.Errorf("cannot reverse user message %s: missing %s property", u.MessageID, PropOriginalSender)
	}
	recipient, ok := u.Property(PropFinalRecipient)
	if !ok {
		return nil, fmt.Errorf("cannot reverse user message %s: missing %s property", u.MessageID, PropFinalRecipient)
	}

	rev := &UserMessage{
		MessageInfo: MessageInfo{
			MessageID:      NewMessageID(),
			RefToMessageID: u.MessageID,
			Timestamp:      time.Now().UTC(),
		},
		MPC:            u.MPC,
		From:           copyParty(u.To),
		To:             copyParty(u.From),
		AgreementRef:   u.AgreementRef,
		Service:        u.Service,
		Action:         u.Action,
		ConversationID: u.ConversationID,
	}

	for _, prop := range u.Properties {
		switch prop.Name {
		case PropOriginalSender:
			rev.Properties = append(rev.Properties, Property{Name: PropOriginalSender, Type: prop.Type, Value: recipient})
		case PropFinalRecipient:
			rev.Properties = append(rev.Properties, Property{Name: PropFinalRecipient, Type: prop.Type, Value: sender})
		default:
			rev.Properties = append(rev.Properties, prop)
		}
	}

	return rev, nil
}

func copyParty(p Party) Party {
	out := Party{Role: p.Role}
	out.IDs = append(out.IDs, p.IDs...)
	return out
}
