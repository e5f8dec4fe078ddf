package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	formFieldProfilePicture = "profilePicture"
	mimeMultipartForm       = "multipart/form-data"
	maxMultipartMemory      = 8 << 20
)

type userListPayload struct {
	Users []users.User `json:"users"`
}

type userPayload struct {
	User users.User `json:"user"`
}

type userUpdatePayload struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	list, err := h.users.List(c.Request.Context(), actor, c.Query("role"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userListPayload{Users: list})
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	created, err := h.users.Create(c.Request.Context(), actor, request.credentials())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userPayload{User: created})
}

// handleUpdateUser accepts JSON, or a multipart form when a profile picture is attached.
func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var input users.UpdateInput
	if c.ContentType() == mimeMultipartForm {
		if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
			h.respondInvalidBody(c, err)
			return
		}
		input.Username = optionalFormValue(c, "username")
		input.Password = optionalFormValue(c, "password")
		input.Role = optionalFormValue(c, "role")
		if header, err := c.FormFile(formFieldProfilePicture); err == nil {
			input.ProfilePicture = header
		}
	} else {
		var request userUpdatePayload
		if err := c.ShouldBindJSON(&request); err != nil {
			h.respondInvalidBody(c, err)
			return
		}
		input.Username = request.Username
		input.Password = request.Password
		input.Role = request.Role
	}

	updated, err := h.users.Update(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userPayload{User: updated})
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func optionalFormValue(c *gin.Context, key string) *string {
	value, present := c.GetPostForm(key)
	if !present {
		return nil
	}
	return &value
}
