package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/conversations"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/templates"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const actorContextKey = "helpdesk_actor"

var (
	errMissingSessions      = errors.New("session manager dependency required")
	errMissingUsers         = errors.New("users service dependency required")
	errMissingConversations = errors.New("conversations service dependency required")
	errMissingTemplates     = errors.New("templates service dependency required")
	errMissingFiles         = errors.New("file store dependency required")
	errMissingRealtime      = errors.New("realtime handler dependency required")
)

// SessionManager issues and validates session cookies.
type SessionManager interface {
	CookieName() string
	TTL() time.Duration
	Issue(userID string, role string) (string, time.Time, error)
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// FileStore persists uploaded files and exposes the directory they are served from.
type FileStore interface {
	Save(header *multipart.FileHeader) (uploads.Attachment, error)
	Directory() string
}

// TextAssistant drafts and corrects support text.
type TextAssistant interface {
	CorrectText(ctx context.Context, text string) (string, error)
	SuggestMessage(ctx context.Context, prompt string, variables map[string]string) (string, error)
	GenerateTemplate(ctx context.Context, description string) (string, error)
}

type Dependencies struct {
	Sessions       SessionManager
	Users          *users.Service
	Conversations  *conversations.Service
	Templates      *templates.Service
	Files          FileStore
	Assistant      TextAssistant
	Realtime       http.Handler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Conversations == nil {
		return nil, errMissingConversations
	}
	if deps.Templates == nil {
		return nil, errMissingTemplates
	}
	if deps.Files == nil {
		return nil, errMissingFiles
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.Sessions,
		users:         deps.Users,
		conversations: deps.Conversations,
		templates:     deps.Templates,
		files:         deps.Files,
		assistant:     deps.Assistant,
		logger:        logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", gin.WrapH(deps.Realtime))
	router.Static(uploads.URLPrefix, deps.Files.Directory())

	api := router.Group("/api")
	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)
	api.POST("/auth/logout", handler.handleLogout)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleCurrentUser)

	protected.GET("/users", handler.handleListUsers)
	protected.POST("/users", handler.handleCreateUser)
	protected.PATCH("/users/:id", handler.handleUpdateUser)
	protected.DELETE("/users/:id", handler.handleDeleteUser)

	protected.GET("/conversations", handler.handleListConversations)
	protected.POST("/conversations", handler.handleCreateConversation)
	protected.GET("/conversations/:id", handler.handleGetConversation)
	protected.PATCH("/conversations/:id", handler.handlePatchConversation)
	protected.POST("/conversations/:id/claim", handler.handleClaimConversation)
	protected.GET("/conversations/:id/messages", handler.handleListMessages)
	protected.POST("/conversations/:id/messages", handler.handleSendMessage)

	protected.GET("/messages/:id/reactions", handler.handleListReactions)
	protected.POST("/messages/:id/reactions", handler.handleAddReaction)
	protected.DELETE("/messages/:id/reactions", handler.handleRemoveReaction)

	protected.GET("/templates", handler.handleListTemplates)
	protected.POST("/templates", handler.handleCreateTemplate)
	protected.PATCH("/templates/:id", handler.handleUpdateTemplate)
	protected.DELETE("/templates/:id", handler.handleDeleteTemplate)

	protected.POST("/upload", handler.handleUpload)

	protected.POST("/ai/correct-text", handler.handleCorrectText)
	protected.POST("/ai/suggest-message", handler.handleSuggestMessage)
	protected.POST("/ai/generate-template", handler.handleGenerateTemplate)

	return router, nil
}

type httpHandler struct {
	sessions      SessionManager
	users         *users.Service
	conversations *conversations.Service
	templates     *templates.Service
	files         FileStore
	assistant     TextAssistant
	logger        *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		// Credentialed requests cannot use a literal "*", so the request origin is echoed back.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func actorFromContext(c *gin.Context) (users.User, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return users.User{}, false
	}
	actor, ok := value.(users.User)
	return actor, ok
}
