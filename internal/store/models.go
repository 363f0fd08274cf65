// Package store persists conversations, messages, and uploaded attachments.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation is one chat thread between the learner and the two personas.
type Conversation struct {
	ID             string `gorm:"primaryKey;type:text"`
	Title          string
	TargetLanguage string
	Model          string

	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []Message `gorm:"constraint:OnDelete:CASCADE"`
}

// Message is one finalized conversation message. Role is the actor it is
// attributed to; MessageType records which call produced it (empty for the
// learner's own messages).
type Message struct {
	ID             string `gorm:"primaryKey;type:text"`
	ConversationID string `gorm:"index;not null"`

	Role        string `gorm:"not null"`
	MessageType string
	Content     string
	Reasoning   string
	Model       string

	GenerationTimeMs int64
	Metadata         datatypes.JSON

	CreatedAt time.Time

	Attachments []FileAttachment `gorm:"constraint:OnDelete:CASCADE"`
}

// FileAttachment is an uploaded image referenced by a message. DisplayURL is
// the renderable location handed to clients and to the model provider.
type FileAttachment struct {
	ID        string `gorm:"primaryKey;type:text"`
	MessageID string `gorm:"index"`

	Filename   string
	MimeType   string
	Size       int64
	Width      int
	Height     int
	DisplayURL string

	SavedAt time.Time
}
