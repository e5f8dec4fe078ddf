package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
)

type capturedRequest struct {
	Authorization string
	Model         string                   `json:"model"`
	Messages      []map[string]interface{} `json:"messages"`
	Temperature   float64                  `json:"temperature"`
	MaxTokens     int                      `json:"max_tokens"`
}

type fakeCompletions struct {
	mu       sync.Mutex
	requests []capturedRequest
	reply    string
	status   int
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var request capturedRequest
	_ = json.NewDecoder(r.Body).Decode(&request)
	request.Authorization = r.Header.Get("Authorization")
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   request.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": f.reply},
		}},
	})
}

func newTestClient(t *testing.T, fake *fakeCompletions) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/v1/", Model: "llama-3.3-70b-versatile"})
}

func TestCorrectTextSendsPromptAndReturnsCompletion(t *testing.T) {
	fake := &fakeCompletions{reply: "  Olá, tudo bem?  "}
	client := newTestClient(t, fake)

	corrected, err := client.CorrectText(context.Background(), "ola tudo bem")
	if err != nil {
		t.Fatalf("correct text: %v", err)
	}
	if corrected != "Olá, tudo bem?" {
		t.Fatalf("unexpected correction %q", corrected)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(fake.requests))
	}
	request := fake.requests[0]
	if request.Authorization != "Bearer test-key" || request.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("unexpected request headers/model %+v", request)
	}
	if request.Temperature != defaultTemperature || request.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected sampling parameters %+v", request)
	}
	if len(request.Messages) != 2 || request.Messages[0]["role"] != "system" || !strings.Contains(request.Messages[1]["content"].(string), "ola tudo bem") {
		t.Fatalf("unexpected messages %+v", request.Messages)
	}
}

func TestCorrectTextFallsBackToInputOnEmptyCompletion(t *testing.T) {
	client := newTestClient(t, &fakeCompletions{reply: ""})
	corrected, err := client.CorrectText(context.Background(), "texto")
	if err != nil {
		t.Fatalf("correct text: %v", err)
	}
	if corrected != "texto" {
		t.Fatalf("expected original text, got %q", corrected)
	}
}

func TestSuggestMessageIncludesVariables(t *testing.T) {
	fake := &fakeCompletions{reply: "Olá {{clientName}}!"}
	client := newTestClient(t, fake)

	suggestion, err := client.SuggestMessage(context.Background(), "greet the client", map[string]string{"clientName": "Carla"})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if suggestion != "Olá {{clientName}}!" {
		t.Fatalf("unexpected suggestion %q", suggestion)
	}
	userPrompt := fake.requests[0].Messages[1]["content"].(string)
	if !strings.Contains(userPrompt, `"clientName": "Carla"`) {
		t.Fatalf("expected variables in prompt, got %q", userPrompt)
	}
	systemPrompt := fake.requests[0].Messages[0]["content"].(string)
	if !strings.Contains(systemPrompt, "{{conversationDate}}") {
		t.Fatalf("expected template variables in system prompt")
	}
}

func TestAssistValidationAndFailures(t *testing.T) {
	client := newTestClient(t, &fakeCompletions{status: http.StatusInternalServerError})

	if _, err := client.GenerateTemplate(context.Background(), " "); !apperr.Is(err, apperr.CategoryValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if _, err := client.GenerateTemplate(context.Background(), "boas-vindas"); !apperr.Is(err, apperr.CategoryInternal) {
		t.Fatalf("expected internal error on upstream failure, got %v", err)
	}

	disabled := NewClient(Config{Model: "m"})
	if disabled.Enabled() {
		t.Fatalf("client without key must be disabled")
	}
	if _, err := disabled.SuggestMessage(context.Background(), "oi", nil); !apperr.Is(err, apperr.CategoryInternal) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}
