package conversations

import "github.com/MarcoPoloResearchLab/helpdesk/backend/internal/realtime"

const (
	EventNewMessage          = "new_message"
	EventNewReaction         = "new_reaction"
	EventDeleteReaction      = "delete_reaction"
	EventConversationUpdated = "conversation_updated"
)

// Notifier delivers events to live connections.
type Notifier interface {
	PushToConversation(conversationID string, event realtime.Event)
	PushToUser(userID string, event realtime.Event)
}

type MessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

func (e MessageEvent) EventType() string { return e.Type }

type ReactionEvent struct {
	Type     string   `json:"type"`
	Reaction Reaction `json:"reaction"`
}

func (e ReactionEvent) EventType() string { return e.Type }

type ReactionRemovedEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

func (e ReactionRemovedEvent) EventType() string { return e.Type }

// ConversationEvent tells participants that assignment or status changed.
type ConversationEvent struct {
	Type         string       `json:"type"`
	Conversation Conversation `json:"conversation"`
}

func (e ConversationEvent) EventType() string { return e.Type }

type noopNotifier struct{}

func (noopNotifier) PushToConversation(string, realtime.Event) {}

func (noopNotifier) PushToUser(string, realtime.Event) {}
