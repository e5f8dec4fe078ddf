package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/conversations"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/database"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/templates"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type testServer struct {
	server   *httptest.Server
	registry *realtime.Registry
}

type stubAssistant struct{}

func (stubAssistant) CorrectText(_ context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func (stubAssistant) SuggestMessage(_ context.Context, prompt string, variables map[string]string) (string, error) {
	return prompt + " " + variables["clientName"], nil
}

func (stubAssistant) GenerateTemplate(_ context.Context, description string) (string, error) {
	return "Olá {{clientName}}, " + description, nil
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "helpdesk.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})

	idProvider := ids.NewUUIDProvider()
	files, err := uploads.NewStore(uploads.Config{Directory: filepath.Join(t.TempDir(), "uploads")})
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	metrics, err := realtime.NewMetrics(metricsRegistry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(realtime.RouterConfig{Registry: registry, Logger: logger, Metrics: metrics})
	relay, err := realtime.NewRelay(realtime.RelayConfig{Router: router, Logger: logger, Metrics: metrics})
	if err != nil {
		t.Fatalf("failed to build relay: %v", err)
	}
	socket, err := realtime.NewSocketHandler(realtime.SocketConfig{Relay: relay, Logger: logger, Metrics: metrics})
	if err != nil {
		t.Fatalf("failed to build socket handler: %v", err)
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		CookieName:    "helpdesk_session",
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:    db,
		Hasher:      auth.NewPasswordHasher(auth.Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}),
		IDProvider:  idProvider,
		Files:       files,
		Broadcaster: router,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	store, err := database.NewConversationStore(database.ConversationStoreConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build conversation store: %v", err)
	}
	conversationService, err := conversations.NewService(conversations.ServiceConfig{
		Store:      store,
		IDProvider: idProvider,
		Notifier:   router,
		Files:      files,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to build conversations service: %v", err)
	}
	templateService, err := templates.NewService(templates.ServiceConfig{Database: db, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build templates service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:      sessions,
		Users:         userService,
		Conversations: conversationService,
		Templates:     templateService,
		Files:         files,
		Assistant:     stubAssistant{},
		Realtime:      socket,
		Gatherer:      metricsRegistry,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return testServer{server: server, registry: registry}
}

// apiClient is one browser session with its own cookie jar.
type apiClient struct {
	t       *testing.T
	baseURL string
	http    *http.Client
	user    users.User
}

func (s testServer) newClient(t *testing.T) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &apiClient{t: t, baseURL: s.server.URL, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (s testServer) registerClient(t *testing.T, username string, role users.Role) *apiClient {
	t.Helper()
	client := s.newClient(t)
	var response sessionResponsePayload
	status := client.doJSON(http.MethodPost, "/api/auth/register", credentialsPayload{
		Username: username,
		Password: "secret1",
		Role:     string(role),
	}, &response)
	if status != http.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", username, status)
	}
	client.user = response.User
	return client
}

func (c *apiClient) doJSON(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.do(request, out)
}

func (c *apiClient) doMultipart(method, path string, fields map[string]string, fileField, fileName, mediaType string, content []byte, out any) int {
	c.t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			c.t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+fileName+`"`)
		header.Set("Content-Type", mediaType)
		part, err := writer.CreatePart(header)
		if err != nil {
			c.t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(content)
	}
	if err := writer.Close(); err != nil {
		c.t.Fatalf("close multipart writer: %v", err)
	}
	request, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(request, out)
}

func (c *apiClient) do(request *http.Request, out any) int {
	c.t.Helper()
	response, err := c.http.Do(request)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()
	if out != nil && response.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s response: %v", request.Method, request.URL.Path, err)
		}
	}
	return response.StatusCode
}

func (c *apiClient) expectError(method, path string, body any, wantStatus int, wantCode string) {
	c.t.Helper()
	var payload errorPayload
	status := c.doJSON(method, path, body, &payload)
	if status != wantStatus {
		c.t.Fatalf("%s %s: expected status %d, got %d (%+v)", method, path, wantStatus, status, payload)
	}
	if wantCode != "" && payload.Code != wantCode {
		c.t.Fatalf("%s %s: expected code %q, got %q", method, path, wantCode, payload.Code)
	}
}

func (s testServer) dialSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func (s testServer) waitForTags(t *testing.T, want realtime.Tags) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, tags := range s.registry.Snapshot() {
			if tags == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for connection tagged %+v", want)
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntil returns the first inbound frame whose type is frameType, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s frame: %v", frameType, err)
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if envelope.Type == frameType {
			return data
		}
	}
}
