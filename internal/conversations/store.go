package conversations

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
)

var (
	// ErrNotFound is returned by stores when the requested record is absent.
	ErrNotFound = errors.New("conversations: record not found")
	// ErrAlreadyAssigned is returned when a claim loses against an existing assignment.
	ErrAlreadyAssigned = errors.New("conversations: already assigned")
	// ErrProtocolNumberExhausted is returned when every protocol number attempt collided.
	ErrProtocolNumberExhausted = errors.New("conversations: protocol number attempts exhausted")
	// ErrDuplicateReaction is returned when the (message, user, emoji) triple already exists.
	ErrDuplicateReaction = errors.New("conversations: duplicate reaction")
)

// ListFilter scopes a conversation listing to what the viewer may see.
type ListFilter struct {
	Status     Status
	ViewerID   string
	ViewerRole users.Role
}

// ConversationChanges carries a single-statement conversation update.
// A non-nil AttendantID only applies while the conversation is unassigned.
type ConversationChanges struct {
	AttendantID *string
	Status      *Status
	UpdatedAt   time.Time
}

// Store is the durable-store collaborator.
type Store interface {
	CreateConversation(ctx context.Context, conversation Conversation) (Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	UpdateConversation(ctx context.Context, conversationID string, changes ConversationChanges) (Conversation, error)
	ListConversations(ctx context.Context, filter ListFilter) ([]Conversation, error)
	TouchConversation(ctx context.Context, conversationID string, at time.Time) error

	CreateMessage(ctx context.Context, message Message) (Message, error)
	GetMessage(ctx context.Context, messageID string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	CreateReaction(ctx context.Context, reaction Reaction) (Reaction, error)
	FindReaction(ctx context.Context, messageID, userID, emoji string) (Reaction, error)
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ListReactionsByMessage(ctx context.Context, messageID string) ([]Reaction, error)
}
