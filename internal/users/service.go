package users

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minUsernameLength     = 3
	maxUsernameLength     = 190
	minPasswordLength     = 6
	maxProfilePictureSize = 5 * 1024 * 1024
)

var (
	errMissingDatabase   = errors.New("users: database connection required")
	errMissingHasher     = errors.New("users: password hasher required")
	errMissingIDProvider = errors.New("users: id provider required")
	noOpLogger           = zap.NewNop()

	profilePictureTypes = map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/gif":  {},
		"image/webp": {},
	}
)

const (
	opServiceNew     = "users.service.new"
	opRegister       = "users.register"
	opAuthenticate   = "users.authenticate"
	opGet            = "users.get"
	opList           = "users.list"
	opCreate         = "users.create"
	opUpdate         = "users.update"
	opDelete         = "users.delete"
	opProfilePicture = "users.profile_picture"
)

// PasswordHasher derives and checks stored password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) bool
}

// FileStore persists uploaded profile pictures.
type FileStore interface {
	Save(header *multipart.FileHeader) (uploads.Attachment, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database    *gorm.DB
	Hasher      PasswordHasher
	IDProvider  ids.Provider
	Files       FileStore
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

// Service manages accounts, credentials and profile updates.
type Service struct {
	db          *gorm.DB
	hasher      PasswordHasher
	idProvider  ids.Provider
	files       FileStore
	broadcaster Broadcaster
	logger      *zap.Logger
}

// Credentials carries the fields accepted when creating an account.
type Credentials struct {
	Username string
	Password string
	Role     string
}

// UpdateInput carries optional account changes; nil fields are left untouched.
type UpdateInput struct {
	Username       *string
	Password       *string
	Role           *string
	ProfilePicture *multipart.FileHeader
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Hasher == nil {
		return nil, apperr.Internal(opServiceNew, "missing_hasher", errMissingHasher)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:          cfg.Database,
		hasher:      cfg.Hasher,
		idProvider:  cfg.IDProvider,
		files:       cfg.Files,
		broadcaster: broadcaster,
		logger:      logger,
	}, nil
}

// Register creates a self-service account. Role defaults to client.
func (s *Service) Register(ctx context.Context, credentials Credentials) (User, error) {
	return s.createAccount(ctx, opRegister, credentials)
}

// Authenticate verifies the credentials and returns the matching account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, invalidCredentials()
	}
	if err != nil {
		s.logError(opAuthenticate, "query_failed", err)
		return User{}, apperr.Internal(opAuthenticate, "query_failed", err)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return User{}, invalidCredentials()
	}
	return user, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", normalize(userID)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.NotFound(opGet, "user")
	}
	if err != nil {
		s.logError(opGet, "query_failed", err)
		return User{}, apperr.Internal(opGet, "query_failed", err)
	}
	return user, nil
}

// List returns accounts for attendants, optionally filtered by role.
func (s *Service) List(ctx context.Context, actor User, role string) ([]User, error) {
	if !actor.IsAttendant() {
		return nil, apperr.Forbidden(opList, "attendant_required", "only attendants can list users")
	}
	query := s.db.WithContext(ctx).Order("created_at ASC")
	if trimmed := normalize(role); trimmed != "" {
		parsed, err := ParseRole(trimmed)
		if err != nil {
			return nil, apperr.Invalid(opList, "role", "role must be client or attendant")
		}
		query = query.Where("role = ?", parsed)
	}
	var accounts []User
	if err := query.Find(&accounts).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, apperr.Internal(opList, "query_failed", err)
	}
	return accounts, nil
}

// Create adds an account on behalf of an attendant and announces it.
func (s *Service) Create(ctx context.Context, actor User, credentials Credentials) (User, error) {
	if !actor.IsAttendant() {
		return User{}, apperr.Forbidden(opCreate, "attendant_required", "only attendants can create users")
	}
	user, err := s.createAccount(ctx, opCreate, credentials)
	if err != nil {
		return User{}, err
	}
	s.broadcaster.PushToAll(UserEvent{Type: EventUserCreated, User: user})
	return user, nil
}

// Update applies profile changes. Users may edit themselves; attendants may edit anyone
// but never their own role.
func (s *Service) Update(ctx context.Context, actor User, userID string, input UpdateInput) (User, error) {
	target, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	isSelf := target.ID == actor.ID
	if !isSelf && !actor.IsAttendant() {
		return User{}, apperr.Forbidden(opUpdate, "not_allowed", "cannot modify this user")
	}

	updates := map[string]interface{}{}
	if input.Username != nil {
		username, validationErr := validateUsername(opUpdate, *input.Username)
		if validationErr != nil {
			return User{}, validationErr
		}
		if username != target.Username {
			updates["username"] = username
		}
	}
	if input.Role != nil {
		if !actor.IsAttendant() {
			return User{}, apperr.Forbidden(opUpdate, "role_change_not_allowed", "only attendants can change roles")
		}
		if isSelf {
			return User{}, apperr.Forbidden(opUpdate, "own_role_change", "cannot change your own role")
		}
		role, parseErr := ParseRole(*input.Role)
		if parseErr != nil {
			return User{}, apperr.Invalid(opUpdate, "role", "role must be client or attendant")
		}
		updates["role"] = role
	}
	if input.Password != nil {
		if len(*input.Password) < minPasswordLength {
			return User{}, apperr.Invalid(opUpdate, "password", "password must have at least 6 characters")
		}
		hash, hashErr := s.hasher.Hash(*input.Password)
		if hashErr != nil {
			s.logError(opUpdate, "hash_failed", hashErr)
			return User{}, apperr.Internal(opUpdate, "hash_failed", hashErr)
		}
		updates["password"] = hash
	}
	if input.ProfilePicture != nil {
		url, pictureErr := s.saveProfilePicture(input.ProfilePicture)
		if pictureErr != nil {
			return User{}, pictureErr
		}
		updates["profile_picture"] = url
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", target.ID).Updates(updates).Error; err != nil {
			if isDuplicateKey(err) {
				return User{}, usernameTaken(opUpdate)
			}
			s.logError(opUpdate, "update_failed", err, zap.String("user_id", target.ID))
			return User{}, apperr.Internal(opUpdate, "update_failed", err)
		}
	}

	updated, err := s.Get(ctx, target.ID)
	if err != nil {
		return User{}, err
	}
	s.broadcaster.PushToAll(UserEvent{Type: EventUserUpdated, User: updated})
	return updated, nil
}

// Delete removes an account. Attendants only, and never themselves.
func (s *Service) Delete(ctx context.Context, actor User, userID string) error {
	if !actor.IsAttendant() {
		return apperr.Forbidden(opDelete, "attendant_required", "only attendants can delete users")
	}
	target := normalize(userID)
	if target == actor.ID {
		return apperr.New(apperr.CategoryValidationFailed, opDelete, "self_delete", "cannot delete yourself", nil)
	}
	result := s.db.WithContext(ctx).Where("id = ?", target).Delete(&User{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", target))
		return apperr.Internal(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound(opDelete, "user")
	}
	s.broadcaster.PushToAll(UserDeletedEvent{Type: EventUserDeleted, UserID: target})
	return nil
}

func (s *Service) createAccount(ctx context.Context, operation string, credentials Credentials) (User, error) {
	username, err := validateUsername(operation, credentials.Username)
	if err != nil {
		return User{}, err
	}
	if len(credentials.Password) < minPasswordLength {
		return User{}, apperr.Invalid(operation, "password", "password must have at least 6 characters")
	}
	role := RoleClient
	if normalize(credentials.Role) != "" {
		parsed, parseErr := ParseRole(credentials.Role)
		if parseErr != nil {
			return User{}, apperr.Invalid(operation, "role", "role must be client or attendant")
		}
		role = parsed
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		s.logError(operation, "query_failed", err)
		return User{}, apperr.Internal(operation, "query_failed", err)
	}
	if existing > 0 {
		return User{}, usernameTaken(operation)
	}

	hash, err := s.hasher.Hash(credentials.Password)
	if err != nil {
		s.logError(operation, "hash_failed", err)
		return User{}, apperr.Internal(operation, "hash_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return User{}, apperr.Internal(operation, "id_generation_failed", err)
	}

	user := User{ID: id, Username: username, PasswordHash: hash, Role: role}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return User{}, usernameTaken(operation)
		}
		s.logError(operation, "insert_failed", err)
		return User{}, apperr.Internal(operation, "insert_failed", err)
	}
	return user, nil
}

func (s *Service) saveProfilePicture(header *multipart.FileHeader) (string, error) {
	mediaType := normalize(header.Header.Get("Content-Type"))
	if _, ok := profilePictureTypes[mediaType]; !ok {
		return "", apperr.Invalid(opProfilePicture, "profile_picture", "profile picture must be JPEG, PNG, GIF or WEBP")
	}
	if header.Size > maxProfilePictureSize {
		return "", apperr.Invalid(opProfilePicture, "profile_picture", "profile picture must be at most 5MB")
	}
	if s.files == nil {
		return "", apperr.Internal(opProfilePicture, "missing_file_store", errors.New("users: file store required"))
	}
	attachment, err := s.files.Save(header)
	if err != nil {
		s.logError(opProfilePicture, "save_failed", err)
		return "", apperr.Internal(opProfilePicture, "save_failed", err)
	}
	return attachment.URL, nil
}

func validateUsername(operation, raw string) (string, error) {
	username := normalize(raw)
	if len(username) < minUsernameLength {
		return "", apperr.Invalid(operation, "username", "username must have at least 3 characters")
	}
	if len(username) > maxUsernameLength {
		return "", apperr.Invalid(operation, "username", "username is too long")
	}
	return username, nil
}

func invalidCredentials() error {
	return apperr.New(apperr.CategoryAuthenticationRequired, opAuthenticate, "invalid_credentials", "invalid username or password", nil)
}

func usernameTaken(operation string) error {
	return apperr.New(apperr.CategoryConflict, operation, "username_taken", "username already in use", nil)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
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
	s.logger.Error("users service error", attrs...)
}
