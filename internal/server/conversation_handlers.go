package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/conversations"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/gin-gonic/gin"
)

const (
	opSendMessage    = "server.send_message"
	formFieldFile    = "file"
	formFieldContent = "content"
	formFieldReplyTo = "replyToId"
)

type conversationPayload struct {
	Conversation conversations.Conversation `json:"conversation"`
}

type conversationListPayload struct {
	Conversations []conversations.Conversation `json:"conversations"`
}

type conversationPatchPayload struct {
	AttendantID *string `json:"attendantId"`
	Status      *string `json:"status"`
}

type messagePayload struct {
	Message conversations.Message `json:"message"`
}

type messageListPayload struct {
	Messages []conversations.Message `json:"messages"`
}

// sendMessagePayload is the JSON message body. Attachment references a file
// previously stored through the upload endpoint.
type sendMessagePayload struct {
	Content    string              `json:"content"`
	ReplyToID  string              `json:"replyToId"`
	Attachment *uploads.Attachment `json:"attachment"`
}

type reactionPayload struct {
	Emoji string `json:"emoji"`
}

type reactionResponsePayload struct {
	Reaction conversations.Reaction `json:"reaction"`
}

type reactionListPayload struct {
	Reactions []conversations.Reaction `json:"reactions"`
}

func (h *httpHandler) handleListConversations(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	list, err := h.conversations.List(c.Request.Context(), actor, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationListPayload{Conversations: list})
}

func (h *httpHandler) handleCreateConversation(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	created, err := h.conversations.Create(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversationPayload{Conversation: created})
}

func (h *httpHandler) handleGetConversation(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	conversation, err := h.conversations.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationPayload{Conversation: conversation})
}

func (h *httpHandler) handlePatchConversation(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request conversationPatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	updated, err := h.conversations.Patch(c.Request.Context(), actor, c.Param("id"), conversations.PatchInput{
		AttendantID: request.AttendantID,
		Status:      request.Status,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationPayload{Conversation: updated})
}

func (h *httpHandler) handleClaimConversation(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	claimed, err := h.conversations.Claim(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationPayload{Conversation: claimed})
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	messages, err := h.conversations.ListMessages(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageListPayload{Messages: messages})
}

// handleSendMessage accepts JSON, or a multipart form carrying the attachment in "file".
func (h *httpHandler) handleSendMessage(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var input conversations.SendMessageInput
	if c.ContentType() == mimeMultipartForm {
		if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
			h.respondInvalidBody(c, err)
			return
		}
		input.Content = c.PostForm(formFieldContent)
		input.ReplyToID = c.PostForm(formFieldReplyTo)
		header, err := optionalFormFile(c, formFieldFile)
		if err != nil {
			h.respondInvalidBody(c, err)
			return
		}
		input.File = header
	} else {
		var request sendMessagePayload
		if err := c.ShouldBindJSON(&request); err != nil {
			h.respondInvalidBody(c, err)
			return
		}
		if request.Attachment != nil && !strings.HasPrefix(request.Attachment.URL, uploads.URLPrefix) {
			h.respondError(c, apperr.Invalid(opSendMessage, "attachment", "attachment must reference an uploaded file"))
			return
		}
		input.Content = request.Content
		input.ReplyToID = request.ReplyToID
		input.Attachment = request.Attachment
	}

	message, err := h.conversations.SendMessage(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messagePayload{Message: message})
}

// optionalFormFile returns the named file part, or nil when the form has none.
func optionalFormFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return header, nil
}

func (h *httpHandler) handleListReactions(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	reactions, err := h.conversations.ListReactions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reactionListPayload{Reactions: reactions})
}

func (h *httpHandler) handleAddReaction(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request reactionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	reaction, created, err := h.conversations.AddReaction(c.Request.Context(), actor, c.Param("id"), request.Emoji)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, reactionResponsePayload{Reaction: reaction})
}

func (h *httpHandler) handleRemoveReaction(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request reactionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	if err := h.conversations.RemoveReaction(c.Request.Context(), actor, c.Param("id"), request.Emoji); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
