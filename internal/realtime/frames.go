package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FrameType is the "type" discriminator of an inbound realtime frame.
type FrameType string

const (
	FrameAuth               FrameType = "auth"
	FrameSubscribe          FrameType = "subscribe"
	FrameUnsubscribe        FrameType = "unsubscribe"
	FrameWebRTCOffer        FrameType = "webrtc-offer"
	FrameWebRTCAnswer       FrameType = "webrtc-answer"
	FrameWebRTCICECandidate FrameType = "webrtc-ice-candidate"
	FrameCallStart          FrameType = "call-start"
	FrameCallEnd            FrameType = "call-end"
	FrameCallDeclined       FrameType = "call-declined"
)

var (
	// ErrMalformedFrame indicates the payload is not a JSON object with a string type.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	// ErrUnknownFrameType indicates a type discriminator outside the supported set.
	ErrUnknownFrameType = errors.New("realtime: unknown frame type")
	// ErrMissingFrameField indicates a required field for the frame type is absent.
	ErrMissingFrameField = errors.New("realtime: missing frame field")
)

// InboundFrame is the closed set of frames a client may send.
type InboundFrame interface {
	Type() FrameType
	inbound()
}

// AuthFrame declares the user behind the connection.
type AuthFrame struct {
	UserID string
}

// SubscribeFrame scopes the connection to a conversation room.
type SubscribeFrame struct {
	ConversationID string
}

// UnsubscribeFrame leaves the current room.
type UnsubscribeFrame struct{}

// SignalFrame is a WebRTC negotiation frame relayed to one target user in the room.
type SignalFrame struct {
	Kind         FrameType
	TargetUserID string
	Raw          []byte
}

// CallFrame is a call lifecycle notification relayed to the whole room.
type CallFrame struct {
	Kind FrameType
	Raw  []byte
}

func (AuthFrame) Type() FrameType        { return FrameAuth }
func (SubscribeFrame) Type() FrameType   { return FrameSubscribe }
func (UnsubscribeFrame) Type() FrameType { return FrameUnsubscribe }
func (f SignalFrame) Type() FrameType    { return f.Kind }
func (f CallFrame) Type() FrameType      { return f.Kind }

func (AuthFrame) inbound()        {}
func (SubscribeFrame) inbound()   {}
func (UnsubscribeFrame) inbound() {}
func (SignalFrame) inbound()      {}
func (CallFrame) inbound()        {}

type inboundEnvelope struct {
	Type           *string `json:"type"`
	UserID         string  `json:"userId"`
	ConversationID string  `json:"conversationId"`
	TargetUserID   string  `json:"targetUserId"`
}

// ParseInboundFrame decodes raw into its concrete frame type.
// Relayed frames keep the original bytes so they are forwarded verbatim.
func ParseInboundFrame(raw []byte) (InboundFrame, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if envelope.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	frameType := FrameType(*envelope.Type)
	switch frameType {
	case FrameAuth:
		userID := strings.TrimSpace(envelope.UserID)
		if userID == "" {
			return nil, fmt.Errorf("%w: userId", ErrMissingFrameField)
		}
		return AuthFrame{UserID: userID}, nil
	case FrameSubscribe:
		conversationID := strings.TrimSpace(envelope.ConversationID)
		if conversationID == "" {
			return nil, fmt.Errorf("%w: conversationId", ErrMissingFrameField)
		}
		return SubscribeFrame{ConversationID: conversationID}, nil
	case FrameUnsubscribe:
		return UnsubscribeFrame{}, nil
	case FrameWebRTCOffer, FrameWebRTCAnswer, FrameWebRTCICECandidate:
		targetUserID := strings.TrimSpace(envelope.TargetUserID)
		if targetUserID == "" {
			return nil, fmt.Errorf("%w: targetUserId", ErrMissingFrameField)
		}
		return SignalFrame{Kind: frameType, TargetUserID: targetUserID, Raw: raw}, nil
	case FrameCallStart, FrameCallEnd, FrameCallDeclined:
		return CallFrame{Kind: frameType, Raw: raw}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, frameType)
	}
}
