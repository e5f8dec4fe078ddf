package realtime

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Event is an outbound frame. Implementations serialize with a "type" field equal to EventType.
type Event interface {
	EventType() string
}

// RouterConfig describes the Router dependencies.
type RouterConfig struct {
	Registry *Registry
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Router pushes events to the live connections selected by a targeting rule.
// Delivery is fire-and-forget: failures are logged and never returned.
type Router struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *Metrics
}

func NewRouter(cfg RouterConfig) *Router {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Registry exposes the registry the router enumerates.
func (r *Router) Registry() *Registry {
	return r.registry
}

// PushToAll delivers event to every authenticated connection.
func (r *Router) PushToAll(event Event) {
	r.push(event, r.registry.match(func(tags Tags) bool {
		return tags.Authenticated()
	}))
}

// PushToConversation delivers event to every connection subscribed to conversationID,
// authenticated or not.
func (r *Router) PushToConversation(conversationID string, event Event) {
	if conversationID == "" {
		return
	}
	r.push(event, r.registry.match(func(tags Tags) bool {
		return tags.ConversationID == conversationID
	}))
}

// PushToUser delivers event to every connection identified as userID.
func (r *Router) PushToUser(userID string, event Event) {
	if userID == "" {
		return
	}
	r.push(event, r.registry.match(func(tags Tags) bool {
		return tags.UserID == userID
	}))
}

func (r *Router) push(event Event, targets []*Connection) {
	if event == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("realtime event encoding failed",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
		return
	}
	r.deliver(event.EventType(), payload, targets)
}

func (r *Router) deliver(frameType string, payload []byte, targets []*Connection) {
	for _, target := range targets {
		if err := target.sink.Send(payload); err != nil {
			r.metrics.deliveryFailed(frameType)
			r.logger.Warn("realtime delivery failed",
				zap.String("frame_type", frameType),
				zap.Int64("connection_id", target.id),
				zap.Error(err))
			continue
		}
		r.metrics.frameDelivered(frameType)
	}
}
