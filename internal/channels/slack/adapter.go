// Package slack connects the bridge to Slack over Socket Mode: it turns
// Events API callbacks into models.Event values and posts replies through
// the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/claudebridge/internal/channels"
	"github.com/haasonsaas/claudebridge/internal/observability"
	"github.com/haasonsaas/claudebridge/pkg/models"
)

// Config holds the configuration for the Slack adapter.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode
	Debug    bool

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate checks that both tokens are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return channels.ErrConfig("bot token is required", nil)
	}
	if strings.TrimSpace(c.AppToken) == "" {
		return channels.ErrConfig("app token is required", nil)
	}
	return nil
}

// Handler processes one inbound event. It runs on its own goroutine and may
// block for the length of a turn.
type Handler func(ctx context.Context, ev models.Event)

// Adapter receives events over Socket Mode and sends replies via the Web API.
type Adapter struct {
	api     SlackAPIClient
	socket  SocketModeClient
	logger  *slog.Logger
	metrics *observability.Metrics

	botUserID   string
	botUserIDMu sync.RWMutex

	// inflight tracks dispatched handlers so Run can wait for them.
	inflight sync.WaitGroup
}

// NewAdapter creates a Slack adapter backed by the real API clients.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
		slack.OptionDebug(cfg.Debug),
	)
	socket := socketmode.New(
		client,
		socketmode.OptionDebug(cfg.Debug),
	)
	return NewAdapterWithClients(cfg, client, socketClient{socket}), nil
}

// NewAdapterWithClients creates an adapter with injected clients.
func NewAdapterWithClients(cfg Config, api SlackAPIClient, socket SocketModeClient) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:     api,
		socket:  socket,
		logger:  logger.With("component", "slack"),
		metrics: cfg.Metrics,
	}
}

// BotUserID returns the bot's own user ID, known once Run has authenticated.
func (a *Adapter) BotUserID() string {
	a.botUserIDMu.RLock()
	defer a.botUserIDMu.RUnlock()
	return a.botUserID
}

// Run authenticates, connects and delivers events to handler until ctx is
// done or the connection fails. It returns after every dispatched handler
// has finished. A clean shutdown returns nil.
func (a *Adapter) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return channels.ErrConfig("event handler is required", nil)
	}

	authResp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		a.metrics.RecordSlackError("auth")
		return channels.ErrAuthentication("failed to authenticate with Slack", err)
	}
	a.botUserIDMu.Lock()
	a.botUserID = authResp.UserID
	a.botUserIDMu.Unlock()
	a.logger.Info("slack adapter started", "bot_user_id", authResp.UserID, "team", authResp.Team)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.socket.RunContext(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return channels.ErrConnection("socket mode connection failed", err)
		}
		return nil
	})
	g.Go(func() error {
		a.handleEvents(gctx, ctx, handler)
		return nil
	})

	err = g.Wait()
	a.inflight.Wait()
	a.logger.Info("slack adapter stopped")
	return err
}

// handleEvents processes Socket Mode events until loopCtx is done. Handlers
// receive turnCtx so an event loop failure does not cut turns short.
func (a *Adapter) handleEvents(loopCtx, turnCtx context.Context, handler Handler) {
	for {
		select {
		case <-loopCtx.Done():
			return
		case event, ok := <-a.socket.Events():
			if !ok {
				return
			}
			a.handleEvent(turnCtx, event, handler)
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, event socketmode.Event, handler Handler) {
	switch event.Type {
	case socketmode.EventTypeConnecting:
		a.logger.Info("connecting to socket mode")

	case socketmode.EventTypeConnectionError:
		a.logger.Warn("socket mode connection error", "data", fmt.Sprint(event.Data))

	case socketmode.EventTypeConnected:
		a.logger.Info("connected to socket mode")

	case socketmode.EventTypeEventsAPI:
		a.handleEventsAPI(ctx, event, handler)

	case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
		a.ack(event)
	}
}

// handleEventsAPI acknowledges the envelope first, then converts and
// dispatches the inner event.
func (a *Adapter) handleEventsAPI(ctx context.Context, event socketmode.Event, handler Handler) {
	a.ack(event)

	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		a.logger.Warn("unexpected events api payload", "type", fmt.Sprintf("%T", event.Data))
		return
	}
	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	var ev models.Event
	switch inner := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		ev = mentionEvent(inner)
	case *slackevents.MessageEvent:
		if ev, ok = messageEvent(inner); !ok {
			a.logger.Debug("dropping message", "subtype", inner.SubType, "bot_id", inner.BotID)
			return
		}
	default:
		return
	}

	a.metrics.EventReceived(string(ev.Kind))
	a.dispatch(ctx, ev, handler)
}

func (a *Adapter) ack(event socketmode.Event) {
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}
}

// dispatch runs handler on its own goroutine so a slow turn never stalls
// the event loop. Panics are recovered and counted.
func (a *Adapter) dispatch(ctx context.Context, ev models.Event, handler Handler) {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				a.metrics.RecordPanic()
				a.logger.Error("event handler panicked",
					"panic", fmt.Sprint(r),
					"channel", ev.Channel,
					"ts", ev.TS,
					"stack", string(debug.Stack()),
				)
			}
		}()
		handler(ctx, ev)
	}()
}

// mentionEvent converts an app_mention callback.
func mentionEvent(ev *slackevents.AppMentionEvent) models.Event {
	return models.Event{
		Kind:     models.EventMention,
		Channel:  ev.Channel,
		TS:       ev.TimeStamp,
		ThreadTS: ev.ThreadTimeStamp,
		Text:     ev.Text,
		User:     ev.User,
		BotID:    ev.BotID,
	}
}

// messageEvent converts a message callback. Messages with a subtype (edits,
// deletions, joins) or posted by a bot are dropped.
func messageEvent(ev *slackevents.MessageEvent) (models.Event, bool) {
	if ev.SubType != "" || ev.BotID != "" {
		return models.Event{}, false
	}
	return models.Event{
		Kind:     models.EventMessage,
		Channel:  ev.Channel,
		TS:       ev.TimeStamp,
		ThreadTS: ev.ThreadTimeStamp,
		Text:     ev.Text,
		User:     ev.User,
	}, true
}
