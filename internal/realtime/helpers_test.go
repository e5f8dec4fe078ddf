package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
	failWith error
}

func (s *recordingSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

func (s *recordingSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}

func (s *recordingSink) types(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, payload := range s.received() {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			t.Fatalf("failed to decode payload %q: %v", payload, err)
		}
		types = append(types, envelope.Type)
	}
	return types
}

type testEvent struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

func (e testEvent) EventType() string {
	return e.Type
}

var errSinkBroken = errors.New("sink broken")

type taggedConnection struct {
	connection *Connection
	sink       *recordingSink
}

func connect(registry *Registry, userID, conversationID string) taggedConnection {
	sink := &recordingSink{}
	connection := registry.Register(sink)
	if userID != "" {
		registry.Identify(connection, userID)
	}
	if conversationID != "" {
		registry.Subscribe(connection, conversationID)
	}
	return taggedConnection{connection: connection, sink: sink}
}
