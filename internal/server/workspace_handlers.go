package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/templates"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opUpload = "server.upload"
	opAssist = "server.assist"
)

var errAssistantUnavailable = errors.New("text assistant not configured")

type templatePayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type templateResponsePayload struct {
	Template templates.MessageTemplate `json:"template"`
}

type templateListPayload struct {
	Templates []templates.MessageTemplate `json:"templates"`
}

type correctTextPayload struct {
	Text string `json:"text"`
}

type suggestMessagePayload struct {
	Prompt    string            `json:"prompt"`
	Variables map[string]string `json:"variables"`
}

type generateTemplatePayload struct {
	Description string `json:"description"`
}

type assistResponsePayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleListTemplates(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	list, err := h.templates.List(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templateListPayload{Templates: list})
}

func (h *httpHandler) handleCreateTemplate(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request templatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	created, err := h.templates.Create(c.Request.Context(), actor.ID, templates.Input(request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, templateResponsePayload{Template: created})
}

func (h *httpHandler) handleUpdateTemplate(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var request templatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	updated, err := h.templates.Update(c.Request.Context(), actor.ID, c.Param("id"), templates.Input(request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templateResponsePayload{Template: updated})
}

func (h *httpHandler) handleDeleteTemplate(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), actor.ID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	header, err := c.FormFile(formFieldFile)
	if err != nil {
		h.respondError(c, apperr.Invalid(opUpload, formFieldFile, "a file is required"))
		return
	}
	attachment, err := h.files.Save(header)
	if err != nil {
		if errors.Is(err, uploads.ErrFileTooLarge) {
			h.respondError(c, apperr.Invalid(opUpload, formFieldFile, "file is too large"))
			return
		}
		h.logger.Error("upload failed", zap.String("user_id", actor.ID), zap.Error(err))
		h.respondError(c, apperr.Internal(opUpload, "store_failed", err))
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func (h *httpHandler) handleCorrectText(c *gin.Context) {
	var request correctTextPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	h.respondAssist(c, func() (string, error) {
		return h.assistant.CorrectText(c.Request.Context(), request.Text)
	})
}

func (h *httpHandler) handleSuggestMessage(c *gin.Context) {
	var request suggestMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	h.respondAssist(c, func() (string, error) {
		return h.assistant.SuggestMessage(c.Request.Context(), request.Prompt, request.Variables)
	})
}

func (h *httpHandler) handleGenerateTemplate(c *gin.Context) {
	var request generateTemplatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidBody(c, err)
		return
	}
	h.respondAssist(c, func() (string, error) {
		return h.assistant.GenerateTemplate(c.Request.Context(), request.Description)
	})
}

func (h *httpHandler) respondAssist(c *gin.Context, call func() (string, error)) {
	if h.assistant == nil {
		h.respondError(c, apperr.New(apperr.CategoryInternal, opAssist, "not_configured", "text assist is not configured", errAssistantUnavailable))
		return
	}
	text, err := call()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assistResponsePayload{Text: text})
}
