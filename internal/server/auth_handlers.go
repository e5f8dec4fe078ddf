package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opAuthorize = "server.authorize"
	opLogin     = "server.login"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (p credentialsPayload) credentials() users.Credentials {
	return users.Credentials{Username: p.Username, Password: p.Password, Role: p.Role}
}

type sessionResponsePayload struct {
	User users.User `json:"user"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), request.credentials())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.startSession(c, user); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponsePayload{User: user})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.startSession(c, user); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponsePayload{User: user})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	actor, _ := actorFromContext(c)
	c.JSON(http.StatusOK, sessionResponsePayload{User: actor})
}

func (h *httpHandler) startSession(c *gin.Context, user users.User) error {
	token, _, err := h.sessions.Issue(user.ID, string(user.Role))
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", user.ID), zap.Error(err))
		return apperr.Internal(opLogin, "session_issue_failed", err)
	}
	h.setSessionCookie(c, token, int(h.sessions.TTL().Seconds()))
	return nil
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), value, maxAge, "/", "", c.Request.TLS != nil, true)
}

// authorizeRequest resolves the session cookie to a stored user and records it as the actor.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		h.respondError(c, apperr.New(apperr.CategoryAuthenticationRequired, opAuthorize, "invalid_session", "authentication required", err))
		return
	}

	actor, err := h.users.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.CategoryNotFound) {
			h.logger.Info("session user no longer exists", zap.String("user_id", claims.UserID))
			h.respondError(c, apperr.New(apperr.CategoryAuthenticationRequired, opAuthorize, "unknown_user", "authentication required", err))
			return
		}
		h.respondError(c, err)
		return
	}

	c.Set(actorContextKey, actor)
	c.Next()
}

func (h *httpHandler) requireActor(c *gin.Context) (users.User, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		h.respondError(c, apperr.New(apperr.CategoryAuthenticationRequired, opAuthorize, "missing_actor", "authentication required", nil))
		return users.User{}, false
	}
	return actor, true
}
