package realtime

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultSendBuffer    = 64
	defaultWriteTimeout  = 10 * time.Second
	defaultPongWait      = 60 * time.Second
	defaultMaxFrameBytes = 1 << 20
)

var (
	errMissingRelay     = errors.New("realtime: relay is required")
	errSendBufferFull   = errors.New("realtime: send buffer full")
	errConnectionClosed = errors.New("realtime: connection closed")
)

// SocketConfig describes the websocket endpoint.
type SocketConfig struct {
	Relay          *Relay
	Logger         *zap.Logger
	Metrics        *Metrics
	SendBuffer     int
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PongWait       time.Duration
	MaxFrameBytes  int64
}

// SocketHandler upgrades HTTP requests to websockets and binds each one to a registry connection.
type SocketHandler struct {
	registry      *Registry
	relay         *Relay
	logger        *zap.Logger
	metrics       *Metrics
	sendBuffer    int
	writeTimeout  time.Duration
	pongWait      time.Duration
	pingPeriod    time.Duration
	maxFrameBytes int64
	upgrader      websocket.Upgrader
}

func NewSocketHandler(cfg SocketConfig) (*SocketHandler, error) {
	if cfg.Relay == nil {
		return nil, errMissingRelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &SocketHandler{
		registry:      cfg.Relay.registry,
		relay:         cfg.Relay,
		logger:        logger,
		metrics:       cfg.Metrics,
		sendBuffer:    cfg.SendBuffer,
		writeTimeout:  cfg.WriteTimeout,
		pongWait:      cfg.PongWait,
		maxFrameBytes: cfg.MaxFrameBytes,
	}
	if handler.sendBuffer <= 0 {
		handler.sendBuffer = defaultSendBuffer
	}
	if handler.writeTimeout <= 0 {
		handler.writeTimeout = defaultWriteTimeout
	}
	if handler.pongWait <= 0 {
		handler.pongWait = defaultPongWait
	}
	if handler.maxFrameBytes <= 0 {
		handler.maxFrameBytes = defaultMaxFrameBytes
	}
	handler.pingPeriod = handler.pongWait * 9 / 10
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return handler, nil
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	sink := newSocketSink(h.sendBuffer)
	connection := h.registry.Register(sink)
	h.metrics.connectionOpened()
	h.logger.Debug("websocket connected", zap.Int64("connection_id", connection.ID()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ws, sink, connection)
	}()

	h.readLoop(ws, connection)

	h.registry.Remove(connection)
	h.metrics.connectionClosed()
	sink.close()
	<-done
	_ = ws.Close()
	h.logger.Debug("websocket disconnected", zap.Int64("connection_id", connection.ID()))
}

// readLoop processes frames in arrival order until the peer goes away.
func (h *SocketHandler) readLoop(ws *websocket.Conn, connection *Connection) {
	ws.SetReadLimit(h.maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				h.logger.Info("websocket read failed",
					zap.Int64("connection_id", connection.ID()),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		h.relay.HandleFrame(connection, data)
	}
}

// writeLoop is the only writer on ws.
func (h *SocketHandler) writeLoop(ws *websocket.Conn, sink *socketSink, connection *Connection) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sink.outbound:
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Info("websocket write failed",
					zap.Int64("connection_id", connection.ID()),
					zap.Error(err))
				sink.close()
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				sink.close()
				_ = ws.Close()
				return
			}
		case <-sink.closed:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeTimeout))
			return
		}
	}
}

// socketSink buffers outbound frames for the write loop. Send never blocks.
type socketSink struct {
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSocketSink(buffer int) *socketSink {
	return &socketSink{
		outbound: make(chan []byte, buffer),
		closed:   make(chan struct{}),
	}
}

func (s *socketSink) Send(payload []byte) error {
	select {
	case <-s.closed:
		return errConnectionClosed
	default:
	}
	select {
	case s.outbound <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *socketSink) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	normalized := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		normalized[strings.ToLower(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := normalized[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
