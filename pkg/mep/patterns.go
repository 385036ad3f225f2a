// Package mep implements Message Exchange Patterns for AS4.
//
// A Pattern (one-way or two-way) combines with a Binding (push, pull and
// their combinations, or sync) to decide whether an exchange has a leg 2,
// whether that leg rides the synchronous back channel, and whether the
// responder may answer with a user message.
package mep

// Pattern represents a Message Exchange Pattern type.
type Pattern string

const (
	// OneWay is the one-way MEP
	OneWay Pattern = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/oneWay"
	// TwoWay is the two-way MEP
	TwoWay Pattern = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/twoWay"
)

// Binding represents a MEP binding.
type Binding string

const (
	// Push binding: sender pushes, receiver acknowledges
	Push Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/push"
	// Pull binding: receiver pulls from an MPC
	Pull Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/pull"
	// Sync binding: two-way exchange on one HTTP round trip
	Sync Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/sync"
	// PushAndPush binding: two-way as two independent pushes
	PushAndPush Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/pushAndPush"
	// PushAndPull binding
	PushAndPull Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/pushAndPull"
	// PullAndPush binding
	PullAndPush Binding = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/pullAndPush"
)

// IsTwoWay reports whether the pattern has a second leg.
func IsTwoWay(p Pattern) bool { return p == TwoWay }

// IsPullCapable reports whether the binding serves pull requests.
func IsPullCapable(b Binding) bool {
	return b == Pull || b == PushAndPull || b == PullAndPush
}

// IsSynchronousReply reports whether leg 2 rides the HTTP back channel of
// the leg-1 request.
func IsSynchronousReply(p Pattern, b Binding) bool {
	return IsTwoWay(p) && b == Sync
}

// AllowsUserMessageReply reports whether the responder may answer the
// inbound user message with a user message on the same connection.
func AllowsUserMessageReply(p Pattern, b Binding) bool {
	return IsTwoWay(p) && (b == Sync || b == PushAndPull)
}

// IsAsynchronousLeg reports whether leg legNumber of the exchange is
// answered out-of-band: the inbound request completes with no content and
// the reply (if any) travels on a later, independent connection.
func IsAsynchronousLeg(p Pattern, b Binding, legNumber int) bool {
	if !IsTwoWay(p) {
		return false
	}
	return legNumber == 1 && (b == PushAndPush || b == PullAndPush)
}
