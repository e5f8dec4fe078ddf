package conversations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
)

type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	messages      []Message
	reactions     []Reaction
	protocols     ProtocolGenerator
	touched       int
	messageErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: map[string]Conversation{}, protocols: NewProtocolNumber}
}

func (m *memoryStore) CreateConversation(_ context.Context, conversation Conversation) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for attempt := 0; attempt < MaxProtocolAttempts; attempt++ {
		candidate, err := m.protocols()
		if err != nil {
			return Conversation{}, err
		}
		if !m.protocolTaken(candidate) {
			conversation.ProtocolNumber = candidate
			m.conversations[conversation.ID] = conversation
			return conversation, nil
		}
	}
	return Conversation{}, ErrProtocolNumberExhausted
}

func (m *memoryStore) protocolTaken(candidate string) bool {
	for _, existing := range m.conversations {
		if existing.ProtocolNumber == candidate {
			return true
		}
	}
	return false
}

func (m *memoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return conversation, nil
}

func (m *memoryStore) UpdateConversation(_ context.Context, conversationID string, changes ConversationChanges) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	if changes.AttendantID != nil {
		if conversation.Assigned() {
			return Conversation{}, ErrAlreadyAssigned
		}
		attendantID := *changes.AttendantID
		conversation.AttendantID = &attendantID
	}
	if changes.Status != nil {
		conversation.Status = *changes.Status
	}
	conversation.UpdatedAt = changes.UpdatedAt
	m.conversations[conversationID] = conversation
	return conversation, nil
}

func (m *memoryStore) ListConversations(_ context.Context, filter ListFilter) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Conversation
	for _, conversation := range m.conversations {
		if filter.Status != "" && conversation.Status != filter.Status {
			continue
		}
		switch filter.ViewerRole {
		case users.RoleClient:
			if conversation.ClientID != filter.ViewerID {
				continue
			}
		case users.RoleAttendant:
			if !conversation.AssignedTo(filter.ViewerID) && (conversation.Assigned() || conversation.Status != StatusPending) {
				continue
			}
		}
		result = append(result, conversation)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (m *memoryStore) TouchConversation(_ context.Context, conversationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conversation.UpdatedAt = at
	m.conversations[conversationID] = conversation
	m.touched++
	return nil
}

func (m *memoryStore) CreateMessage(_ context.Context, message Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messageErr != nil {
		return Message{}, m.messageErr
	}
	m.messages = append(m.messages, message)
	return message, nil
}

func (m *memoryStore) GetMessage(_ context.Context, messageID string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range m.messages {
		if message.ID == messageID {
			return message, nil
		}
	}
	return Message{}, ErrNotFound
}

func (m *memoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Message
	for _, message := range m.messages {
		if message.ConversationID == conversationID {
			result = append(result, message)
		}
	}
	return result, nil
}

func (m *memoryStore) CreateReaction(_ context.Context, reaction Reaction) (Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reactions {
		if existing.MessageID == reaction.MessageID && existing.UserID == reaction.UserID && existing.Emoji == reaction.Emoji {
			return Reaction{}, ErrDuplicateReaction
		}
	}
	m.reactions = append(m.reactions, reaction)
	return reaction, nil
}

func (m *memoryStore) FindReaction(_ context.Context, messageID, userID, emoji string) (Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reactions {
		if existing.MessageID == messageID && existing.UserID == userID && existing.Emoji == emoji {
			return existing, nil
		}
	}
	return Reaction{}, ErrNotFound
}

func (m *memoryStore) DeleteReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for index, existing := range m.reactions {
		if existing.MessageID == messageID && existing.UserID == userID && existing.Emoji == emoji {
			m.reactions = append(m.reactions[:index], m.reactions[index+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ListReactionsByMessage(_ context.Context, messageID string) ([]Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Reaction
	for _, existing := range m.reactions {
		if existing.MessageID == messageID {
			result = append(result, existing)
		}
	}
	return result, nil
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%03d", p.next), nil
}

type pushRecord struct {
	scope  string
	target string
	event  realtime.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []pushRecord
}

func (n *recordingNotifier) PushToConversation(conversationID string, event realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, pushRecord{scope: "conversation", target: conversationID, event: event})
}

func (n *recordingNotifier) PushToUser(userID string, event realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, pushRecord{scope: "user", target: userID, event: event})
}

func (n *recordingNotifier) ofType(eventType string) []pushRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []pushRecord
	for _, push := range n.pushes {
		if push.event.EventType() == eventType {
			matched = append(matched, push)
		}
	}
	return matched
}
