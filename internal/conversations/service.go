package conversations

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"go.uber.org/zap"
)

const maxEmojiLength = 64

var (
	errMissingStore      = errors.New("conversations: store required")
	errMissingIDProvider = errors.New("conversations: id provider required")
	errMissingFileStore  = errors.New("conversations: file store required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew     = "conversations.service.new"
	opCreate         = "conversations.create"
	opGet            = "conversations.get"
	opList           = "conversations.list"
	opClaim          = "conversations.claim"
	opUpdateStatus   = "conversations.update_status"
	opPatch          = "conversations.patch"
	opListMessages   = "conversations.list_messages"
	opSendMessage    = "conversations.send_message"
	opListReactions  = "conversations.list_reactions"
	opAddReaction    = "conversations.add_reaction"
	opRemoveReaction = "conversations.remove_reaction"
)

// FileStore persists message attachments.
type FileStore interface {
	Save(header *multipart.FileHeader) (uploads.Attachment, error)
	Remove(url string) error
}

// ServiceConfig describes the collaborators of the conversation service.
type ServiceConfig struct {
	Store      Store
	IDProvider ids.Provider
	Notifier   Notifier
	Files      FileStore
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service enforces conversation guards, assembles messages and triggers delivery.
type Service struct {
	store      Store
	idProvider ids.Provider
	notifier   Notifier
	files      FileStore
	clock      func() time.Time
	logger     *zap.Logger
}

// PatchInput mirrors the partial conversation update accepted over HTTP.
type PatchInput struct {
	AttendantID *string
	Status      *string
}

// SendMessageInput carries the content of a new message. File is stored only after
// the write guard passes; Attachment is used when the file was already stored.
type SendMessageInput struct {
	Content    string
	ReplyToID  string
	Attachment *uploads.Attachment
	File       *multipart.FileHeader
}

// NewService constructs the conversation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, apperr.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		idProvider: cfg.IDProvider,
		notifier:   notifier,
		files:      cfg.Files,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create opens a pending, unassigned conversation for a client.
func (s *Service) Create(ctx context.Context, actor users.User) (Conversation, error) {
	if err := checkCreate(actor); err != nil {
		return Conversation{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Conversation{}, apperr.Internal(opCreate, "id_generation_failed", err)
	}
	now := s.now()
	created, err := s.store.CreateConversation(ctx, Conversation{
		ID:        id,
		ClientID:  actor.ID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, ErrProtocolNumberExhausted) {
		s.logError(opCreate, "protocol_number_exhausted", err, zap.String("client_id", actor.ID))
		return Conversation{}, apperr.New(apperr.CategoryUniqueConstraintExhausted, opCreate, "protocol_number_exhausted", "could not create conversation", err)
	}
	if err != nil {
		s.logError(opCreate, "insert_failed", err)
		return Conversation{}, apperr.Internal(opCreate, "insert_failed", err)
	}
	return created, nil
}

// Get returns a conversation the actor may read.
func (s *Service) Get(ctx context.Context, actor users.User, conversationID string) (Conversation, error) {
	conversation, err := s.load(ctx, opGet, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if err := checkRead(opGet, actor, conversation); err != nil {
		return Conversation{}, err
	}
	return conversation, nil
}

// List returns the actor's visible conversations, most recently active first.
// Clients see their own; attendants see their assignments plus the unassigned pending queue.
func (s *Service) List(ctx context.Context, actor users.User, status string) ([]Conversation, error) {
	filter := ListFilter{ViewerID: actor.ID, ViewerRole: actor.Role}
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		parsed, err := ParseStatus(trimmed)
		if err != nil {
			return nil, apperr.Invalid(opList, "status", "status must be pending, attending or closed")
		}
		filter.Status = parsed
	}
	conversations, err := s.store.ListConversations(ctx, filter)
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, apperr.Internal(opList, "query_failed", err)
	}
	return conversations, nil
}

// Claim assigns the acting attendant to an unassigned conversation and moves it to attending.
func (s *Service) Claim(ctx context.Context, actor users.User, conversationID string) (Conversation, error) {
	conversation, err := s.load(ctx, opClaim, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if err := checkClaim(actor, conversation); err != nil {
		return Conversation{}, err
	}
	return s.applyClaim(ctx, actor, conversation.ID, nil)
}

// UpdateStatus changes the status on behalf of the assigned attendant.
func (s *Service) UpdateStatus(ctx context.Context, actor users.User, conversationID string, status string) (Conversation, error) {
	target, err := ParseStatus(status)
	if err != nil {
		return Conversation{}, apperr.Invalid(opUpdateStatus, "status", "status must be attending or closed")
	}
	conversation, err := s.load(ctx, opUpdateStatus, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if err := checkStatusEdit(actor, conversation, target); err != nil {
		return Conversation{}, err
	}
	return s.applyChanges(ctx, opUpdateStatus, conversation.ID, ConversationChanges{Status: &target})
}

// Patch applies {attendantId?, status?}. A present attendantId is a claim by the actor.
func (s *Service) Patch(ctx context.Context, actor users.User, conversationID string, input PatchInput) (Conversation, error) {
	if input.AttendantID == nil && input.Status == nil {
		return Conversation{}, apperr.Invalid(opPatch, "body", "attendantId or status is required")
	}
	var target *Status
	if input.Status != nil {
		parsed, err := ParseStatus(*input.Status)
		if err != nil {
			return Conversation{}, apperr.Invalid(opPatch, "status", "status must be attending or closed")
		}
		if err := checkStatusTarget(parsed); err != nil {
			return Conversation{}, err
		}
		target = &parsed
	}
	conversation, err := s.load(ctx, opPatch, conversationID)
	if err != nil {
		return Conversation{}, err
	}

	if input.AttendantID == nil {
		if err := checkStatusEdit(actor, conversation, *target); err != nil {
			return Conversation{}, err
		}
		return s.applyChanges(ctx, opPatch, conversation.ID, ConversationChanges{Status: target})
	}

	if strings.TrimSpace(*input.AttendantID) != actor.ID {
		return Conversation{}, apperr.Forbidden(opPatch, "self_assignment_only", "attendants can only assign themselves")
	}
	if err := checkClaim(actor, conversation); err != nil {
		return Conversation{}, err
	}
	return s.applyClaim(ctx, actor, conversation.ID, target)
}

// ListMessages returns the conversation history in creation order.
func (s *Service) ListMessages(ctx context.Context, actor users.User, conversationID string) ([]Message, error) {
	conversation, err := s.load(ctx, opListMessages, conversationID)
	if err != nil {
		return nil, err
	}
	if err := checkRead(opListMessages, actor, conversation); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversation.ID)
	if err != nil {
		s.logError(opListMessages, "query_failed", err)
		return nil, apperr.Internal(opListMessages, "query_failed", err)
	}
	return messages, nil
}

// SendMessage persists a message, bumps the conversation activity and pushes it to the room.
func (s *Service) SendMessage(ctx context.Context, actor users.User, conversationID string, input SendMessageInput) (Message, error) {
	conversation, err := s.load(ctx, opSendMessage, conversationID)
	if err != nil {
		return Message{}, err
	}
	if err := checkWrite(opSendMessage, actor, conversation); err != nil {
		return Message{}, err
	}
	hasFile := input.Attachment != nil || input.File != nil
	if strings.TrimSpace(input.Content) == "" && !hasFile {
		return Message{}, apperr.Invalid(opSendMessage, "content", "message needs text or an attachment")
	}

	attachment := input.Attachment
	var stored *uploads.Attachment
	if attachment == nil && input.File != nil {
		if s.files == nil {
			return Message{}, apperr.Internal(opSendMessage, "missing_file_store", errMissingFileStore)
		}
		saved, saveErr := s.files.Save(input.File)
		if errors.Is(saveErr, uploads.ErrFileTooLarge) {
			return Message{}, apperr.Invalid(opSendMessage, "file", "file is too large")
		}
		if saveErr != nil {
			s.logError(opSendMessage, "attachment_failed", saveErr, zap.String("conversation_id", conversation.ID))
			return Message{}, apperr.Internal(opSendMessage, "attachment_failed", saveErr)
		}
		attachment = &saved
		stored = &saved
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSendMessage, "id_generation_failed", err)
		return Message{}, apperr.Internal(opSendMessage, "id_generation_failed", err)
	}
	now := s.now()
	message := Message{
		ID:             id,
		ConversationID: conversation.ID,
		SenderID:       actor.ID,
		Content:        input.Content,
		MessageType:    MessageTypeText,
		CreatedAt:      now,
	}
	if attachment != nil {
		message.MessageType = InferMessageType(attachment.MediaType, true)
		message.FileURL = stringPointer(attachment.URL)
		message.FileName = stringPointer(attachment.FileName)
	}
	if replyTo := strings.TrimSpace(input.ReplyToID); replyTo != "" {
		message.ReplyToID = &replyTo
	}

	created, err := s.store.CreateMessage(ctx, message)
	if err != nil {
		s.logError(opSendMessage, "insert_failed", err, zap.String("conversation_id", conversation.ID))
		if stored != nil {
			s.discardAttachment(*stored)
		}
		return Message{}, apperr.Internal(opSendMessage, "insert_failed", err)
	}
	if err := s.store.TouchConversation(ctx, conversation.ID, now); err != nil {
		s.logError(opSendMessage, "touch_failed", err, zap.String("conversation_id", conversation.ID))
	}
	s.notifier.PushToConversation(conversation.ID, MessageEvent{Type: EventNewMessage, Message: created})
	return created, nil
}

// ListReactions returns the reactions of a message the actor may read.
func (s *Service) ListReactions(ctx context.Context, actor users.User, messageID string) ([]Reaction, error) {
	message, conversation, err := s.loadMessage(ctx, opListReactions, messageID)
	if err != nil {
		return nil, err
	}
	if err := checkRead(opListReactions, actor, conversation); err != nil {
		return nil, err
	}
	reactions, err := s.store.ListReactionsByMessage(ctx, message.ID)
	if err != nil {
		s.logError(opListReactions, "query_failed", err)
		return nil, apperr.Internal(opListReactions, "query_failed", err)
	}
	return reactions, nil
}

// AddReaction records the actor's emoji on a message. Re-adding an existing reaction
// returns it unchanged and reports created=false without pushing.
func (s *Service) AddReaction(ctx context.Context, actor users.User, messageID string, emoji string) (Reaction, bool, error) {
	normalizedEmoji, err := validateEmoji(opAddReaction, emoji)
	if err != nil {
		return Reaction{}, false, err
	}
	message, conversation, err := s.loadMessage(ctx, opAddReaction, messageID)
	if err != nil {
		return Reaction{}, false, err
	}
	if err := checkWrite(opAddReaction, actor, conversation); err != nil {
		return Reaction{}, false, err
	}

	existing, err := s.store.FindReaction(ctx, message.ID, actor.ID, normalizedEmoji)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.logError(opAddReaction, "query_failed", err)
		return Reaction{}, false, apperr.Internal(opAddReaction, "query_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddReaction, "id_generation_failed", err)
		return Reaction{}, false, apperr.Internal(opAddReaction, "id_generation_failed", err)
	}
	created, err := s.store.CreateReaction(ctx, Reaction{
		ID:        id,
		MessageID: message.ID,
		UserID:    actor.ID,
		Emoji:     normalizedEmoji,
		CreatedAt: s.now(),
	})
	if errors.Is(err, ErrDuplicateReaction) {
		existing, findErr := s.store.FindReaction(ctx, message.ID, actor.ID, normalizedEmoji)
		if findErr == nil {
			return existing, false, nil
		}
		err = findErr
	}
	if err != nil {
		s.logError(opAddReaction, "insert_failed", err)
		return Reaction{}, false, apperr.Internal(opAddReaction, "insert_failed", err)
	}
	s.notifier.PushToConversation(conversation.ID, ReactionEvent{Type: EventNewReaction, Reaction: created})
	return created, true, nil
}

// RemoveReaction deletes the actor's emoji from a message.
func (s *Service) RemoveReaction(ctx context.Context, actor users.User, messageID string, emoji string) error {
	normalizedEmoji, err := validateEmoji(opRemoveReaction, emoji)
	if err != nil {
		return err
	}
	message, conversation, err := s.loadMessage(ctx, opRemoveReaction, messageID)
	if err != nil {
		return err
	}
	if err := checkWrite(opRemoveReaction, actor, conversation); err != nil {
		return err
	}
	deleted, err := s.store.DeleteReaction(ctx, message.ID, actor.ID, normalizedEmoji)
	if err != nil {
		s.logError(opRemoveReaction, "delete_failed", err)
		return apperr.Internal(opRemoveReaction, "delete_failed", err)
	}
	if !deleted {
		return apperr.NotFound(opRemoveReaction, "reaction")
	}
	s.notifier.PushToConversation(conversation.ID, ReactionRemovedEvent{
		Type:      EventDeleteReaction,
		MessageID: message.ID,
		UserID:    actor.ID,
		Emoji:     normalizedEmoji,
	})
	return nil
}

func (s *Service) applyClaim(ctx context.Context, actor users.User, conversationID string, status *Status) (Conversation, error) {
	target := StatusAttending
	if status != nil {
		target = *status
	}
	attendantID := actor.ID
	return s.applyChanges(ctx, opClaim, conversationID, ConversationChanges{AttendantID: &attendantID, Status: &target})
}

func (s *Service) applyChanges(ctx context.Context, operation, conversationID string, changes ConversationChanges) (Conversation, error) {
	changes.UpdatedAt = s.now()
	updated, err := s.store.UpdateConversation(ctx, conversationID, changes)
	if errors.Is(err, ErrAlreadyAssigned) {
		return Conversation{}, apperr.Forbidden(operation, "already_assigned", "conversation already has an attendant")
	}
	if errors.Is(err, ErrNotFound) {
		return Conversation{}, apperr.NotFound(operation, "conversation")
	}
	if err != nil {
		s.logError(operation, "update_failed", err, zap.String("conversation_id", conversationID))
		return Conversation{}, apperr.Internal(operation, "update_failed", err)
	}
	event := ConversationEvent{Type: EventConversationUpdated, Conversation: updated}
	s.notifier.PushToUser(updated.ClientID, event)
	if updated.Assigned() {
		s.notifier.PushToUser(*updated.AttendantID, event)
	}
	return updated, nil
}

func (s *Service) load(ctx context.Context, operation, conversationID string) (Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, strings.TrimSpace(conversationID))
	if errors.Is(err, ErrNotFound) {
		return Conversation{}, apperr.NotFound(operation, "conversation")
	}
	if err != nil {
		s.logError(operation, "query_failed", err)
		return Conversation{}, apperr.Internal(operation, "query_failed", err)
	}
	return conversation, nil
}

func (s *Service) loadMessage(ctx context.Context, operation, messageID string) (Message, Conversation, error) {
	message, err := s.store.GetMessage(ctx, strings.TrimSpace(messageID))
	if errors.Is(err, ErrNotFound) {
		return Message{}, Conversation{}, apperr.NotFound(operation, "message")
	}
	if err != nil {
		s.logError(operation, "query_failed", err)
		return Message{}, Conversation{}, apperr.Internal(operation, "query_failed", err)
	}
	conversation, err := s.load(ctx, operation, message.ConversationID)
	if err != nil {
		return Message{}, Conversation{}, err
	}
	return message, conversation, nil
}

// discardAttachment removes a file stored for a message that was never persisted.
func (s *Service) discardAttachment(attachment uploads.Attachment) {
	if err := s.files.Remove(attachment.URL); err != nil {
		s.logError(opSendMessage, "attachment_cleanup_failed", err, zap.String("file_url", attachment.URL))
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func validateEmoji(operation, emoji string) (string, error) {
	trimmed := strings.TrimSpace(emoji)
	if trimmed == "" || len(trimmed) > maxEmojiLength {
		return "", apperr.Invalid(operation, "emoji", "emoji is required")
	}
	return trimmed, nil
}

func stringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("conversations service error", attrs...)
}
