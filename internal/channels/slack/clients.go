package slack

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// SlackAPIClient defines the Slack Web API operations used by the adapter.
// This interface allows for mock injection during testing.
type SlackAPIClient interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	DeleteMessageContext(ctx context.Context, channelID, messageTimestamp string) (string, string, error)
}

// SocketModeClient defines the Socket Mode operations used by the adapter.
// This interface allows for mock injection during testing.
type SocketModeClient interface {
	// RunContext connects and blocks until ctx is done or the connection fails.
	RunContext(ctx context.Context) error

	// Ack acknowledges an envelope so Slack does not redeliver it.
	Ack(req socketmode.Request, payload ...interface{})

	// Events returns the channel for receiving events
	Events() <-chan socketmode.Event
}

// Ensure slack.Client implements SlackAPIClient
var _ SlackAPIClient = (*slack.Client)(nil)

// socketClient adapts *socketmode.Client, whose events are a struct field.
type socketClient struct {
	*socketmode.Client
}

func (c socketClient) Events() <-chan socketmode.Event {
	return c.Client.Events
}

// MockSlackClient is a test double for SlackAPIClient.
type MockSlackClient struct {
	AuthTestContextFunc      func(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContextFunc   func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	DeleteMessageContextFunc func(ctx context.Context, channelID, messageTimestamp string) (string, string, error)
}

func (m *MockSlackClient) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if m.AuthTestContextFunc != nil {
		return m.AuthTestContextFunc(ctx)
	}
	return &slack.AuthTestResponse{UserID: "U12345", Team: "TestTeam"}, nil
}

func (m *MockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	return channelID, "1234567890.123456", nil
}

func (m *MockSlackClient) DeleteMessageContext(ctx context.Context, channelID, messageTimestamp string) (string, string, error) {
	if m.DeleteMessageContextFunc != nil {
		return m.DeleteMessageContextFunc(ctx, channelID, messageTimestamp)
	}
	return channelID, messageTimestamp, nil
}

// MockSocketModeClient is a test double for SocketModeClient.
type MockSocketModeClient struct {
	RunContextFunc func(ctx context.Context) error
	EventsChan     chan socketmode.Event

	mu    sync.Mutex
	acked []socketmode.Request
}

func NewMockSocketModeClient() *MockSocketModeClient {
	return &MockSocketModeClient{
		EventsChan: make(chan socketmode.Event, 100),
	}
}

func (m *MockSocketModeClient) RunContext(ctx context.Context) error {
	if m.RunContextFunc != nil {
		return m.RunContextFunc(ctx)
	}
	// Block until shutdown like the real client.
	<-ctx.Done()
	return nil
}

func (m *MockSocketModeClient) Ack(req socketmode.Request, payload ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, req)
}

func (m *MockSocketModeClient) Events() <-chan socketmode.Event {
	return m.EventsChan
}

// Acked returns the envelopes acknowledged so far.
func (m *MockSocketModeClient) Acked() []socketmode.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]socketmode.Request(nil), m.acked...)
}

// Close closes the events channel for cleanup
func (m *MockSocketModeClient) Close() {
	close(m.EventsChan)
}
