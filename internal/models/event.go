package models

// EventKind distinguishes alert notifications.
type EventKind string

const (
	// EventContentChanged carries the freshly rendered document.
	EventContentChanged EventKind = "content_changed"
	// EventPinged asks connected clients to refresh; nothing changed.
	EventPinged EventKind = "pinged"
)

// Event is emitted by the alert store after every successful mutation.
type Event struct {
	Kind    EventKind
	AlertID AlertID
	Text    string // substituted markdown
	HTML    string // Text converted to HTML
	Style   string // substituted CSS
}

// ContentChanged builds an EventContentChanged event.
func ContentChanged(id AlertID, text, html, style string) Event {
	return Event{Kind: EventContentChanged, AlertID: id, Text: text, HTML: html, Style: style}
}

// Pinged builds an EventPinged event.
func Pinged(id AlertID) Event {
	return Event{Kind: EventPinged, AlertID: id}
}
