package realtime

import (
	"errors"

	"go.uber.org/zap"
)

// RelayConfig describes the Relay dependencies.
type RelayConfig struct {
	Router  *Router
	Logger  *zap.Logger
	Metrics *Metrics
}

// Relay interprets inbound frames: control frames update connection tags,
// signaling frames are forwarded verbatim to peers in the sender's room.
// It keeps no call state of its own.
type Relay struct {
	registry *Registry
	router   *Router
	logger   *zap.Logger
	metrics  *Metrics
}

var errMissingRouter = errors.New("realtime: router is required")

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.Router == nil {
		return nil, errMissingRouter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry: cfg.Router.registry,
		router:   cfg.Router,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// HandleFrame processes one raw inbound frame from connection. Malformed frames are dropped.
func (r *Relay) HandleFrame(connection *Connection, raw []byte) {
	frame, err := ParseInboundFrame(raw)
	if err != nil {
		r.metrics.frameDropped(dropReason(err))
		r.logger.Debug("realtime frame dropped",
			zap.Int64("connection_id", connection.ID()),
			zap.Error(err))
		return
	}
	r.metrics.frameRelayed(frame.Type())

	switch typed := frame.(type) {
	case AuthFrame:
		r.registry.Identify(connection, typed.UserID)
	case SubscribeFrame:
		r.registry.Subscribe(connection, typed.ConversationID)
	case UnsubscribeFrame:
		r.registry.Unsubscribe(connection)
	case SignalFrame:
		peers := r.registry.roomPeers(connection, func(tags Tags) bool {
			return tags.UserID == typed.TargetUserID
		})
		if len(peers) == 0 {
			r.logger.Debug("signaling target not in room",
				zap.String("frame_type", string(typed.Kind)),
				zap.String("target_user_id", typed.TargetUserID))
			return
		}
		r.router.deliver(string(typed.Kind), typed.Raw, peers)
	case CallFrame:
		r.router.deliver(string(typed.Kind), typed.Raw, r.registry.roomPeers(connection, nil))
	default:
		r.logger.Warn("realtime frame without handler", zap.String("frame_type", string(frame.Type())))
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownFrameType):
		return "unknown_type"
	case errors.Is(err, ErrMissingFrameField):
		return "missing_field"
	default:
		return "malformed"
	}
}
