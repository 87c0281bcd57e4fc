// Package convo defines the canonical conversation schema that every vendor
// export is normalized into. The wire shape matches the Instagram data export
// format, which the rest of the pipeline treats as the lingua franca.
package convo

import "sort"

// Participant is one named member of a conversation. Identity is the exact
// name string; there is no cross-conversation resolution.
type Participant struct {
	Name string `json:"name"`
}

// Message is a single normalized message. TimestampMS is milliseconds since
// epoch and is the canonical ordering key.
type Message struct {
	SenderName  string `json:"sender_name"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Conversation is the canonical record produced by merging. Messages are
// ordered per the merge policy of the producing adapter; Participants has no
// duplicate names.
type Conversation struct {
	Participants  []Participant `json:"participants"`
	Messages      []Message     `json:"messages"`
	HasSenderInfo bool          `json:"has_sender_info"`
	Warning       string        `json:"warning,omitempty"`
}

// ParseOutcome distinguishes "the input genuinely had nothing" from "the
// input could not be read or parsed". Outward pipeline behavior is fail-open
// either way; the outcome lets callers and tests tell the two apart.
type ParseOutcome int

const (
	OutcomeOK ParseOutcome = iota
	OutcomeEmpty
	OutcomeUnreadable
)

func (o ParseOutcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// SortMessages orders messages ascending by timestamp. The sort is stable so
// same-millisecond messages keep their on-disk relative order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].TimestampMS < msgs[j].TimestampMS
	})
}
