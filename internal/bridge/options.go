package bridge

import (
	"fmt"

	"github.com/haasonsaas/claudebridge/internal/channels/chunk"
	"github.com/haasonsaas/claudebridge/internal/markdown"
)

// ReplyMode selects who delivers the assistant's answer to Slack.
type ReplyMode string

const (
	// ReplyCompose posts an interim message, then the transformed and
	// chunked result.
	ReplyCompose ReplyMode = "compose"
	// ReplyDelegate leaves all Slack side effects on success to the child
	// process, which finds the thread through its environment.
	ReplyDelegate ReplyMode = "delegate"
)

const (
	DefaultThinkingText    = "Thinking... :thinking_face:"
	DefaultEmptyPromptText = "Please enter a message"
	// EmptyResultText is posted when the CLI succeeds with no text.
	EmptyResultText = "_(no response)_"
)

// IsValidReplyMode reports whether mode names a known reply mode.
func IsValidReplyMode(mode string) bool {
	switch ReplyMode(mode) {
	case ReplyCompose, ReplyDelegate:
		return true
	default:
		return false
	}
}

// Options tunes turn handling.
type Options struct {
	ReplyMode       ReplyMode
	ChunkSize       int
	ThinkingText    string
	EmptyPromptText string
	Tables          markdown.TableMode
	// SerializeThreads runs at most one invocation per thread at a time.
	SerializeThreads bool
}

func (o *Options) applyDefaults() error {
	if o.ReplyMode == "" {
		o.ReplyMode = ReplyCompose
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = chunk.DefaultLimit
	}
	if o.ThinkingText == "" {
		o.ThinkingText = DefaultThinkingText
	}
	if o.EmptyPromptText == "" {
		o.EmptyPromptText = DefaultEmptyPromptText
	}
	if o.Tables == "" {
		o.Tables = markdown.TableModeCode
	}

	if !IsValidReplyMode(string(o.ReplyMode)) {
		return fmt.Errorf("unknown reply mode %q", o.ReplyMode)
	}
	if o.ChunkSize < 0 || o.ChunkSize > chunk.SlackLimit {
		return fmt.Errorf("chunk size must be between 1 and %d", chunk.SlackLimit)
	}
	return nil
}
