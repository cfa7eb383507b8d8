package chat

import "time"

// Senders of a conversation turn.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one spoken turn kept as model context for the rest of the call.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
