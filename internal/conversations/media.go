package conversations

import "strings"

// InferMessageType derives the message type from an attachment's declared media type.
// The media type is client supplied and not verified.
func InferMessageType(mediaType string, hasAttachment bool) MessageType {
	if !hasAttachment {
		return MessageTypeText
	}
	normalized := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(normalized, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(normalized, "audio/"):
		return MessageTypeAudio
	case strings.HasPrefix(normalized, "video/"):
		return MessageTypeVideo
	default:
		return MessageTypeFile
	}
}
