package users

import "github.com/MarcoPoloResearchLab/helpdesk/backend/internal/realtime"

const (
	EventUserCreated = "user_created"
	EventUserUpdated = "user_updated"
	EventUserDeleted = "user_deleted"
)

// Broadcaster pushes account changes to every authenticated connection.
type Broadcaster interface {
	PushToAll(event realtime.Event)
}

// UserEvent announces a created or updated account.
type UserEvent struct {
	Type string `json:"type"`
	User User   `json:"user"`
}

func (e UserEvent) EventType() string {
	return e.Type
}

// UserDeletedEvent announces a removed account.
type UserDeletedEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func (e UserDeletedEvent) EventType() string {
	return e.Type
}

type noopBroadcaster struct{}

func (noopBroadcaster) PushToAll(realtime.Event) {}
