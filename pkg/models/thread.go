// Package models defines the data passed between the Slack adapter, the turn
// orchestrator, and the Claude process invoker.
package models

// ThreadKey identifies a Slack thread by channel and root message timestamp.
// It is the lookup key for continuation tokens.
type ThreadKey struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts"`
}

// NewThreadKey builds a ThreadKey from its parts.
func NewThreadKey(channel, threadTS string) ThreadKey {
	return ThreadKey{Channel: channel, ThreadTS: threadTS}
}

// String renders the key as "channel:thread_ts".
func (k ThreadKey) String() string {
	return k.Channel + ":" + k.ThreadTS
}

// IsZero reports whether either part of the key is missing.
func (k ThreadKey) IsZero() bool {
	return k.Channel == "" || k.ThreadTS == ""
}
