package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageSender identifies who produced a conversation message.
type MessageSender string

const (
	SenderUser      MessageSender = "user"
	SenderAssistant MessageSender = "assistant"
	SenderSystem    MessageSender = "system"
)

// MessageType tags a message with its presentation role. Safety alerts must
// render as high-salience alerts distinct from ordinary questions.
type MessageType string

const (
	MessageTypeText           MessageType = "text"
	MessageTypeQuestion       MessageType = "question"
	MessageTypeInstruction    MessageType = "instruction"
	MessageTypeSafetyAlert    MessageType = "safety_alert"
	MessageTypeMechanicReport MessageType = "mechanic_report"
	MessageTypeDiagnosis      MessageType = "diagnosis"
	MessageTypeError          MessageType = "error"
)

// Message is one entry in a conversation's append-only log. Messages are
// never mutated after creation.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Sender    MessageSender  `json:"sender"`
	Text      string         `json:"text"`
	Type      MessageType    `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(sender MessageSender, msgType MessageType, text string) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Type:      msgType,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// IsFromUser returns true if the message was sent by the user.
func (m *Message) IsFromUser() bool {
	return m.Sender == SenderUser
}

// IsFromAssistant returns true if the message was produced by the engine.
func (m *Message) IsFromAssistant() bool {
	return m.Sender == SenderAssistant
}
