package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

const (
	opCorrectText      = "assist.correct_text"
	opSuggestMessage   = "assist.suggest_message"
	opGenerateTemplate = "assist.generate_template"
)

var errNotConfigured = errors.New("assist: api key not configured")

const templateVariables = `Available variables:
- {{clientName}}: the client's name
- {{attendantName}}: the attendant's name
- {{protocol}}: the conversation protocol number
- {{conversationDate}}: the conversation date`

const (
	correctTextPrompt = "You fix spelling, grammar and clarity of Brazilian Portuguese text. " +
		"Return only the corrected text, without explanations or comments."

	suggestMessagePrompt = "You are a professional customer support assistant. " +
		"Write clear, polite and helpful support messages in Brazilian Portuguese.\n\n" +
		templateVariables + "\n\n" +
		"Use the variables exactly as shown, with double braces, where appropriate. " +
		"Return only the message text, without explanations."

	generateTemplatePrompt = "You create reusable customer support message templates in Brazilian Portuguese.\n\n" +
		templateVariables + "\n\n" +
		"Include the appropriate variables using the {{variableName}} syntax. " +
		"Return only the template text, without explanations."
)

// Config configures the OpenAI-compatible chat completion endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// Client proxies text assist requests to a chat completion model.
type Client struct {
	completions openai.ChatCompletionService
	model       string
	enabled     bool
	logger      *zap.Logger
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)
	return &Client{
		completions: client.Chat.Completions,
		model:       cfg.Model,
		enabled:     strings.TrimSpace(cfg.APIKey) != "",
		logger:      logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// CorrectText returns a corrected version of text, or text itself when the model returns nothing.
func (c *Client) CorrectText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Invalid(opCorrectText, "text", "text is required")
	}
	corrected, err := c.complete(ctx, opCorrectText, correctTextPrompt, "Correct the following text: "+text)
	if err != nil {
		return "", err
	}
	if corrected == "" {
		return text, nil
	}
	return corrected, nil
}

// SuggestMessage drafts a support message from a prompt and optional context values.
func (c *Client) SuggestMessage(ctx context.Context, prompt string, variables map[string]string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperr.Invalid(opSuggestMessage, "prompt", "prompt is required")
	}
	userPrompt := prompt
	if len(variables) > 0 {
		encoded, err := json.MarshalIndent(variables, "", "  ")
		if err != nil {
			return "", apperr.Invalid(opSuggestMessage, "variables", "variables must be an object of strings")
		}
		userPrompt = fmt.Sprintf("%s\n\nAvailable information:\n%s", prompt, encoded)
	}
	return c.complete(ctx, opSuggestMessage, suggestMessagePrompt, userPrompt)
}

// GenerateTemplate drafts a template body for the described situation.
func (c *Client) GenerateTemplate(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", apperr.Invalid(opGenerateTemplate, "description", "description is required")
	}
	return c.complete(ctx, opGenerateTemplate, generateTemplatePrompt, "Create a message template for: "+description)
}

func (c *Client) complete(ctx context.Context, operation, systemPrompt, userPrompt string) (string, error) {
	if !c.enabled {
		return "", apperr.New(apperr.CategoryInternal, operation, "not_configured", "text assist is not configured", errNotConfigured)
	}
	completion, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	})
	if err != nil {
		c.logger.Error("assist completion failed",
			zap.String("operation", operation),
			zap.String("model", c.model),
			zap.Error(err),
		)
		return "", apperr.Internal(operation, "completion_failed", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
