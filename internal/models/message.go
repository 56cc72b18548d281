package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks the delivery state of a message. Status only moves forward:
// pending → success or pending → error.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// CanAdvanceTo reports whether a message in status s may move to next.
// Re-applying the same status is allowed so streamed partial content can
// update a pending message in place.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case "", StatusPending:
		return next == StatusPending || next.Terminal()
	default:
		return false
	}
}

// Message is a single entry in a conversation log.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
