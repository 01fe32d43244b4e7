package session

import (
	"encoding/json"
	"fmt"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// Message types on the wire.
const (
	TypeMarkdown = "message_markdown"
	TypeStyle    = "style"
	TypeUpdate   = "update"
	TypeInit     = "init"
)

// MarkdownMessage carries the rendered HTML body of an alert.
type MarkdownMessage struct {
	Type    string         `json:"type"`
	AlertID models.AlertID `json:"alert_id"`
	Text    string         `json:"text"`
}

// StyleMessage carries the rendered CSS of an alert.
type StyleMessage struct {
	Type    string         `json:"type"`
	AlertID models.AlertID `json:"alert_id"`
	Style   string         `json:"style"`
}

// UpdateMessage asks the client to refresh.
type UpdateMessage struct {
	Type    string         `json:"type"`
	AlertID models.AlertID `json:"alert_id"`
}

// InitMessage is the optional client handshake.
type InitMessage struct {
	Type    string         `json:"type"`
	AlertID models.AlertID `json:"alert_id"`
}

// Frames converts an event into the messages sent to a client, in order.
func Frames(ev models.Event) []any {
	switch ev.Kind {
	case models.EventContentChanged:
		return []any{
			MarkdownMessage{Type: TypeMarkdown, AlertID: ev.AlertID, Text: ev.HTML},
			StyleMessage{Type: TypeStyle, AlertID: ev.AlertID, Style: ev.Style},
		}
	case models.EventPinged:
		return []any{UpdateMessage{Type: TypeUpdate, AlertID: ev.AlertID}}
	default:
		return nil
	}
}

// frameType returns the type discriminator of a frame built by Frames.
func frameType(frame any) string {
	switch m := frame.(type) {
	case MarkdownMessage:
		return m.Type
	case StyleMessage:
		return m.Type
	case UpdateMessage:
		return m.Type
	}
	return "unknown"
}

// ParseInbound decodes a client text frame. Only init is understood.
func ParseInbound(data []byte) (InitMessage, error) {
	var msg InitMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InitMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type != TypeInit {
		return InitMessage{}, fmt.Errorf("unsupported client message type %q", msg.Type)
	}
	return msg, nil
}
