package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry in a conversation history. The history is owned by the
// user record: deleting the user deletes all of its messages.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(sender Sender, text string, at time.Time) *Message {
	return &Message{ID: uuid.NewString(), Sender: sender, Text: text, Timestamp: at}
}
