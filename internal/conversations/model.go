package conversations

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of a conversation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAttending Status = "attending"
	StatusClosed    Status = "closed"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusPending:
		return StatusPending, nil
	case StatusAttending:
		return StatusAttending, nil
	case StatusClosed:
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("conversations: unknown status %q", raw)
	}
}

// MessageType tags the payload kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
	MessageTypeFile  MessageType = "file"
)

// Conversation is a support thread opened by a client.
type Conversation struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	ProtocolNumber string    `gorm:"column:protocol_number;size:10;not null;uniqueIndex" json:"protocolNumber"`
	ClientID       string    `gorm:"column:client_id;size:64;not null;index" json:"clientId"`
	AttendantID    *string   `gorm:"column:attendant_id;size:64;index" json:"attendantId"`
	Status         Status    `gorm:"column:status;size:16;not null;default:pending;index" json:"status"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;index" json:"updatedAt"`
}

// TableName exposes the table backing conversations.
func (Conversation) TableName() string {
	return "conversations"
}

// Assigned reports whether an attendant has claimed the conversation.
func (c Conversation) Assigned() bool {
	return c.AttendantID != nil && *c.AttendantID != ""
}

// AssignedTo reports whether userID is the claiming attendant.
func (c Conversation) AssignedTo(userID string) bool {
	return c.Assigned() && *c.AttendantID == userID
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	ConversationID string      `gorm:"column:conversation_id;size:64;not null;index" json:"conversationId"`
	SenderID       string      `gorm:"column:sender_id;size:64;not null" json:"senderId"`
	Content        string      `gorm:"column:content;type:text;not null;default:''" json:"content"`
	MessageType    MessageType `gorm:"column:message_type;size:16;not null;default:text" json:"messageType"`
	FileURL        *string     `gorm:"column:file_url;size:512" json:"fileUrl"`
	FileName       *string     `gorm:"column:file_name;size:512" json:"fileName"`
	ReplyToID      *string     `gorm:"column:reply_to_id;size:64" json:"replyToId"`
	CreatedAt      time.Time   `gorm:"column:created_at;not null;index" json:"createdAt"`
}

// TableName exposes the table backing messages.
func (Message) TableName() string {
	return "messages"
}

// Reaction is a user's emoji on a message, unique per (message, user, emoji).
type Reaction struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	MessageID string    `gorm:"column:message_id;size:64;not null;uniqueIndex:idx_reactions_natural_key,priority:1" json:"messageId"`
	UserID    string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_reactions_natural_key,priority:2" json:"userId"`
	Emoji     string    `gorm:"column:emoji;size:64;not null;uniqueIndex:idx_reactions_natural_key,priority:3" json:"emoji"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName exposes the table backing reactions.
func (Reaction) TableName() string {
	return "reactions"
}
