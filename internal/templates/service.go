package templates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTitleLength = 190

var (
	errMissingDatabase   = errors.New("templates: database connection required")
	errMissingIDProvider = errors.New("templates: id provider required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "templates.service.new"
	opList       = "templates.list"
	opCreate     = "templates.create"
	opUpdate     = "templates.update"
	opDelete     = "templates.delete"
)

// MessageTemplate is a reusable message body owned by one user. Content may contain
// {{clientName}}, {{attendantName}}, {{protocol}} and {{conversationDate}} placeholders
// which clients substitute before sending.
type MessageTemplate struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index" json:"userId"`
	Title     string    `gorm:"column:title;size:190;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName exposes the table backing message templates.
func (MessageTemplate) TableName() string {
	return "message_templates"
}

// ServiceConfig describes the dependencies of the template service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages owner-scoped templates. Templates of other users are reported as missing.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// Input carries template fields; nil fields are left untouched on update.
type Input struct {
	Title   *string
	Content *string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]MessageTemplate, error) {
	var templates []MessageTemplate
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at ASC").Find(&templates).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, apperr.Internal(opList, "query_failed", err)
	}
	return templates, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, input Input) (MessageTemplate, error) {
	if input.Title == nil || input.Content == nil {
		return MessageTemplate{}, apperr.Invalid(opCreate, "body", "title and content are required")
	}
	title, err := validateTitle(opCreate, *input.Title)
	if err != nil {
		return MessageTemplate{}, err
	}
	content, err := validateContent(opCreate, *input.Content)
	if err != nil {
		return MessageTemplate{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return MessageTemplate{}, apperr.Internal(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	template := MessageTemplate{ID: id, UserID: ownerID, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
		s.logError(opCreate, "insert_failed", err)
		return MessageTemplate{}, apperr.Internal(opCreate, "insert_failed", err)
	}
	return template, nil
}

func (s *Service) Update(ctx context.Context, ownerID, templateID string, input Input) (MessageTemplate, error) {
	updates := map[string]interface{}{}
	if input.Title != nil {
		title, err := validateTitle(opUpdate, *input.Title)
		if err != nil {
			return MessageTemplate{}, err
		}
		updates["title"] = title
	}
	if input.Content != nil {
		content, err := validateContent(opUpdate, *input.Content)
		if err != nil {
			return MessageTemplate{}, err
		}
		updates["content"] = content
	}
	updates["updated_at"] = s.clock().UTC()

	result := s.db.WithContext(ctx).Model(&MessageTemplate{}).
		Where("id = ? AND user_id = ?", templateID, ownerID).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error)
		return MessageTemplate{}, apperr.Internal(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return MessageTemplate{}, apperr.NotFound(opUpdate, "template")
	}

	var updated MessageTemplate
	if err := s.db.WithContext(ctx).Where("id = ?", templateID).Take(&updated).Error; err != nil {
		s.logError(opUpdate, "reload_failed", err)
		return MessageTemplate{}, apperr.Internal(opUpdate, "reload_failed", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, templateID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", templateID, ownerID).Delete(&MessageTemplate{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error)
		return apperr.Internal(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound(opDelete, "template")
	}
	return nil
}

func validateTitle(operation, raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || len(title) > maxTitleLength {
		return "", apperr.Invalid(operation, "title", "title is required")
	}
	return title, nil
}

func validateContent(operation, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperr.Invalid(operation, "content", "content is required")
	}
	return raw, nil
}

func (s *Service) logError(operation, reason string, err error) {
	s.logger.Error("templates service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	)
}
