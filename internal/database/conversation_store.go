package database

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/conversations"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database: connection required")

// ConversationStoreConfig configures the GORM-backed conversation store.
type ConversationStoreConfig struct {
	Database  *gorm.DB
	Protocols conversations.ProtocolGenerator
	Logger    *zap.Logger
}

// ConversationStore implements conversations.Store with single-statement writes.
type ConversationStore struct {
	db        *gorm.DB
	protocols conversations.ProtocolGenerator
	logger    *zap.Logger
}

var _ conversations.Store = (*ConversationStore)(nil)

func NewConversationStore(cfg ConversationStoreConfig) (*ConversationStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	protocols := cfg.Protocols
	if protocols == nil {
		protocols = conversations.NewProtocolNumber
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationStore{db: cfg.Database, protocols: protocols, logger: logger}, nil
}

// CreateConversation inserts the conversation under a fresh protocol number, drawing a
// new one on each uniqueness collision up to conversations.MaxProtocolAttempts times.
func (s *ConversationStore) CreateConversation(ctx context.Context, conversation conversations.Conversation) (conversations.Conversation, error) {
	for attempt := 1; attempt <= conversations.MaxProtocolAttempts; attempt++ {
		number, err := s.protocols()
		if err != nil {
			return conversations.Conversation{}, err
		}
		candidate := conversation
		candidate.ProtocolNumber = number
		err = s.db.WithContext(ctx).Create(&candidate).Error
		if err == nil {
			return candidate, nil
		}
		if !isDuplicateKey(err) {
			return conversations.Conversation{}, err
		}
		s.logger.Debug("protocol number collision",
			zap.String("protocol_number", number),
			zap.Int("attempt", attempt),
		)
	}
	return conversations.Conversation{}, conversations.ErrProtocolNumberExhausted
}

func (s *ConversationStore) GetConversation(ctx context.Context, conversationID string) (conversations.Conversation, error) {
	var conversation conversations.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", conversationID).Take(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversations.Conversation{}, conversations.ErrNotFound
	}
	return conversation, err
}

// UpdateConversation applies changes in one statement. An assignment only matches
// rows whose attendant is still absent, so concurrent claims cannot both succeed.
func (s *ConversationStore) UpdateConversation(ctx context.Context, conversationID string, changes conversations.ConversationChanges) (conversations.Conversation, error) {
	updates := map[string]interface{}{"updated_at": changes.UpdatedAt}
	query := s.db.WithContext(ctx).Model(&conversations.Conversation{}).Where("id = ?", conversationID)
	if changes.AttendantID != nil {
		updates["attendant_id"] = *changes.AttendantID
		query = query.Where("attendant_id IS NULL")
	}
	if changes.Status != nil {
		updates["status"] = *changes.Status
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return conversations.Conversation{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetConversation(ctx, conversationID); err != nil {
			return conversations.Conversation{}, err
		}
		if changes.AttendantID != nil {
			return conversations.Conversation{}, conversations.ErrAlreadyAssigned
		}
	}
	return s.GetConversation(ctx, conversationID)
}

// ListConversations returns the viewer's conversations by most recent activity.
func (s *ConversationStore) ListConversations(ctx context.Context, filter conversations.ListFilter) ([]conversations.Conversation, error) {
	query := s.db.WithContext(ctx).Model(&conversations.Conversation{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	switch filter.ViewerRole {
	case users.RoleClient:
		query = query.Where("client_id = ?", filter.ViewerID)
	case users.RoleAttendant:
		query = query.Where("(attendant_id = ? OR (status = ? AND attendant_id IS NULL))", filter.ViewerID, conversations.StatusPending)
	default:
		return []conversations.Conversation{}, nil
	}

	var result []conversations.Conversation
	if err := query.Order("updated_at DESC").Order("id DESC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ConversationStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&conversations.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("updated_at", at).
		Error
}

func (s *ConversationStore) CreateMessage(ctx context.Context, message conversations.Message) (conversations.Message, error) {
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return conversations.Message{}, err
	}
	return message, nil
}

func (s *ConversationStore) GetMessage(ctx context.Context, messageID string) (conversations.Message, error) {
	var message conversations.Message
	err := s.db.WithContext(ctx).Where("id = ?", messageID).Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversations.Message{}, conversations.ErrNotFound
	}
	return message, err
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]conversations.Message, error) {
	var messages []conversations.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).
		Error
	return messages, err
}

func (s *ConversationStore) CreateReaction(ctx context.Context, reaction conversations.Reaction) (conversations.Reaction, error) {
	err := s.db.WithContext(ctx).Create(&reaction).Error
	if isDuplicateKey(err) {
		return conversations.Reaction{}, conversations.ErrDuplicateReaction
	}
	if err != nil {
		return conversations.Reaction{}, err
	}
	return reaction, nil
}

func (s *ConversationStore) FindReaction(ctx context.Context, messageID, userID, emoji string) (conversations.Reaction, error) {
	var reaction conversations.Reaction
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Take(&reaction).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversations.Reaction{}, conversations.ErrNotFound
	}
	return reaction, err
}

func (s *ConversationStore) DeleteReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&conversations.Reaction{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *ConversationStore) ListReactionsByMessage(ctx context.Context, messageID string) ([]conversations.Reaction, error) {
	var reactions []conversations.Reaction
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).
		Error
	return reactions, err
}
