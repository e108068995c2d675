package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSessionChanged reports that the stored session was written by someone
// else since it was last read.
var ErrSessionChanged = errors.New("domain: session changed by another writer")

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"

	// senderLegacyAI is how older persisted logs tagged agent replies.
	senderLegacyAI = "ai"
)

func (s *Sender) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("domain: decode sender: %w", err)
	}
	switch raw {
	case string(SenderUser), string(SenderAgent), string(SenderSystem):
		*s = Sender(raw)
	case senderLegacyAI:
		*s = SenderAgent
	default:
		return fmt.Errorf("domain: unknown sender %q", raw)
	}
	return nil
}

// Message is a single entry in the conversation transcript.
type Message struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Sender    Sender       `json:"sender"`
	Timestamp int64        `json:"timestamp"`
	Actions   []ActionItem `json:"actions,omitempty"`
}

// Session is the persisted form of a conversation log.
// CreatedAt is epoch milliseconds of the first message of the session.
// PendingUntil, when in the future, marks an agent request in flight so every
// reader of the record treats the conversation as busy.
type Session struct {
	Messages     []Message `json:"messages"`
	CreatedAt    int64     `json:"createdAt"`
	PendingUntil int64     `json:"pendingUntil,omitempty"`
}
