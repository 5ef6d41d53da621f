package slack

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/claudebridge/internal/channels"
)

// Post sends text to the thread rooted at threadTS and returns the new
// message's timestamp.
func (a *Adapter) Post(ctx context.Context, channel, threadTS, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", channels.ErrInvalidInput("message text is empty", nil)
	}
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}

	_, ts, err := a.api.PostMessageContext(ctx, channel, options...)
	if err != nil {
		a.metrics.RecordSlackError("post")
		return "", classify("failed to send Slack message", err)
	}
	return ts, nil
}

// Delete removes the message at ts.
func (a *Adapter) Delete(ctx context.Context, channel, ts string) error {
	if _, _, err := a.api.DeleteMessageContext(ctx, channel, ts); err != nil {
		a.metrics.RecordSlackError("delete")
		return classify("failed to delete Slack message", err)
	}
	return nil
}

func classify(message string, err error) error {
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return channels.ErrRateLimit(message, err)
	}
	return channels.ErrConnection(message, err)
}
