package models

// EventKind distinguishes the inbound Slack events the bridge reacts to.
type EventKind string

const (
	// EventMention is an app_mention event addressed to the bot.
	EventMention EventKind = "app_mention"
	// EventMessage is a plain channel or thread message.
	EventMessage EventKind = "message"
)

// Event is an inbound chat event normalized from the Slack Events API.
type Event struct {
	Kind     EventKind `json:"kind"`
	Channel  string    `json:"channel"`
	TS       string    `json:"ts"`
	ThreadTS string    `json:"thread_ts,omitempty"` // Empty for top-level messages
	Text     string    `json:"text"`                // Raw text, mention markers included
	User     string    `json:"user,omitempty"`
	BotID    string    `json:"bot_id,omitempty"`
}

// InThread reports whether the event is a reply inside a thread.
func (e Event) InThread() bool {
	return e.ThreadTS != ""
}

// ThreadRoot returns the timestamp replies should be attached to: the thread
// root when the event is already threaded, otherwise the event itself.
func (e Event) ThreadRoot() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// Key returns the ThreadKey the event belongs to.
func (e Event) Key() ThreadKey {
	return NewThreadKey(e.Channel, e.ThreadRoot())
}
