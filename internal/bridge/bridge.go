// Package bridge decides how the bot reacts to each Slack event and drives
// one Claude CLI turn per accepted event.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/claudebridge/internal/channels"
	"github.com/haasonsaas/claudebridge/internal/claude"
	"github.com/haasonsaas/claudebridge/internal/observability"
	"github.com/haasonsaas/claudebridge/internal/sessions"
	"github.com/haasonsaas/claudebridge/pkg/models"
)

// State is where a turn ended up.
type State string

const (
	// StateIgnored means the event was not for the bot. Nothing was posted.
	StateIgnored State = "ignored"
	// StateAwaitingInvocation is the transient state while the CLI runs.
	StateAwaitingInvocation State = "awaiting_invocation"
	// StateResponding means a reply (or the empty-prompt notice) was delivered.
	StateResponding State = "responding"
	// StateFailed means the turn failed and an error notice was posted.
	StateFailed State = "failed"
)

// mentionMarker matches a user mention such as <@U012ABC>.
var mentionMarker = regexp.MustCompile(`<@[A-Z0-9]+>`)

// Invoker runs one CLI turn.
type Invoker interface {
	Invoke(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error)
}

// Responder posts to and deletes from Slack threads.
type Responder interface {
	Post(ctx context.Context, channel, threadTS, text string) (string, error)
	Delete(ctx context.Context, channel, ts string) error
}

// Identity reports the bot's own user ID for self-loop prevention.
type Identity interface {
	BotUserID() string
}

// Deps are the collaborators of an Orchestrator. Invoker, Store and
// Responder are required.
type Deps struct {
	Invoker   Invoker
	Store     sessions.Store
	Responder Responder
	Identity  Identity
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Orchestrator handles inbound events. It is safe for concurrent use; each
// event is expected on its own goroutine.
type Orchestrator struct {
	opts      Options
	invoker   Invoker
	store     sessions.Store
	responder Responder
	identity  Identity
	locker    sessions.Locker
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	newID     func() string
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Invoker == nil || deps.Store == nil || deps.Responder == nil {
		return nil, errors.New("bridge: invoker, store and responder are required")
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		opts:      opts,
		invoker:   deps.Invoker,
		store:     deps.Store,
		responder: deps.Responder,
		identity:  deps.Identity,
		locker:    sessions.NopLocker{},
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		newID:     uuid.NewString,
	}
	if opts.SerializeThreads {
		o.locker = sessions.NewKeyedLocker()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "bridge")
	if o.tracer == nil {
		o.tracer = observability.NewTracerFromProvider(otel.GetTracerProvider(), observability.TraceConfig{})
	}
	return o, nil
}

// turn carries per-event context through the state machine.
type turn struct {
	ev     models.Event
	key    models.ThreadKey
	logger *slog.Logger
}

// Handle processes ev to completion and returns the final state. Failures
// are reported in the thread and never returned.
func (o *Orchestrator) Handle(ctx context.Context, ev models.Event) State {
	turnID := o.newID()
	ctx = observability.AddTurnID(ctx, turnID)
	t := turn{ev: ev, key: ev.Key()}
	t.logger = o.logger.With(
		"turn_id", turnID,
		"event", ev.Kind,
		"channel", ev.Channel,
		"thread_ts", t.key.ThreadTS,
	)

	ctx, span := o.tracer.StartTurn(ctx, string(ev.Kind), ev.Channel, t.key.ThreadTS)
	defer span.End()
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		t.logger = t.logger.With("trace_id", traceID)
	}

	state, outcome := o.route(ctx, t)
	span.SetAttributes(attribute.String("bridge.state", string(state)))
	o.metrics.RecordTurn(string(ev.Kind), outcome)
	o.metrics.SetActiveSessions(o.store.Len())
	return state
}

// HandleEvent adapts Handle to the Slack adapter's handler signature.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev models.Event) {
	o.Handle(ctx, ev)
}

// route picks the mention or thread-message path.
func (o *Orchestrator) route(ctx context.Context, t turn) (State, string) {
	switch t.ev.Kind {
	case models.EventMention:
		prompt := StripMentions(t.ev.Text)
		if prompt == "" {
			if _, err := o.responder.Post(ctx, t.ev.Channel, t.key.ThreadTS, o.opts.EmptyPromptText); err != nil {
				t.logger.Error("failed to post empty prompt notice", "error", err)
				return StateFailed, "failed"
			}
			return StateResponding, "prompted"
		}
		return o.run(ctx, t, prompt)

	case models.EventMessage:
		if reason := o.skipMessage(t); reason != "" {
			t.logger.Debug("ignoring message", "reason", reason)
			return StateIgnored, "ignored"
		}
		return o.run(ctx, t, strings.TrimSpace(t.ev.Text))

	default:
		return StateIgnored, "ignored"
	}
}

// skipMessage returns why a plain message should not start a turn, or ""
// when it should. Messages reach the CLI only as follow-ups in a thread
// that already has a session.
func (o *Orchestrator) skipMessage(t turn) string {
	switch {
	case !t.ev.InThread():
		return "not in a thread"
	case t.ev.BotID != "":
		return "posted by a bot"
	case o.identity != nil && t.ev.User != "" && t.ev.User == o.identity.BotUserID():
		return "posted by this bot"
	case mentionMarker.MatchString(t.ev.Text):
		return "contains a mention"
	case strings.TrimSpace(t.ev.Text) == "":
		return "empty text"
	}
	if _, ok := o.store.Get(t.key); !ok {
		return "no session for thread"
	}
	return ""
}

// run is the AwaitingInvocation state: interim message, invocation, session
// write, then Responding or Failed.
func (o *Orchestrator) run(ctx context.Context, t turn, prompt string) (State, string) {
	t.logger.Info("turn accepted", "state", StateAwaitingInvocation, "prompt_len", len(prompt))

	var interimTS string
	if o.opts.ReplyMode == ReplyCompose {
		ts, err := o.responder.Post(ctx, t.ev.Channel, t.key.ThreadTS, o.opts.ThinkingText)
		if err != nil {
			t.logger.Warn("failed to post interim message", "error", err)
		}
		interimTS = ts
	}
	defer o.cleanup(ctx, t, interimTS)

	result, err := o.invoke(ctx, t, prompt)
	if err != nil {
		return o.fail(ctx, t, err), "failed"
	}

	if o.opts.ReplyMode == ReplyDelegate {
		t.logger.Info("turn delegated to claude", "state", StateResponding)
		return StateResponding, "responded"
	}
	if err := o.reply(ctx, t, result.Text); err != nil {
		t.logger.Error("failed to post reply", "error", err, "retryable", channels.IsRetryable(err))
		return StateFailed, "failed"
	}
	t.logger.Info("turn complete", "state", StateResponding, "structured", result.Structured)
	return StateResponding, "responded"
}

// invoke reads the session, runs the CLI and records a new session. With
// serialization enabled the whole sequence holds the thread's lock.
func (o *Orchestrator) invoke(ctx context.Context, t turn, prompt string) (models.InvocationResult, error) {
	if err := o.locker.Lock(ctx, t.key); err != nil {
		return models.InvocationResult{}, err
	}
	defer o.locker.Unlock(t.key)

	token, _ := o.store.Get(t.key)
	req := models.InvocationRequest{
		Prompt:       prompt,
		SessionToken: token,
		Channel:      t.ev.Channel,
		ThreadTS:     t.key.ThreadTS,
		MessageTS:    t.ev.TS,
	}

	start := time.Now()
	result, err := o.invoker.Invoke(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.RecordInvocation(string(claude.KindOf(err)), elapsed)
		return models.InvocationResult{}, err
	}
	o.metrics.RecordInvocation("success", elapsed)

	if result.SessionToken != "" {
		if o.store.SetIfAbsent(t.key, result.SessionToken) {
			t.logger.Info("new session for thread", "session_id", result.SessionToken)
		} else if result.SessionToken != token {
			t.logger.Debug("keeping existing session", "discarded_session_id", result.SessionToken)
		}
	}
	return result, nil
}

// reply transforms text to mrkdwn and posts it in order, one message per
// chunk.
func (o *Orchestrator) reply(ctx context.Context, t turn, text string) error {
	formatted := FormatReply(text, o.opts)
	for _, part := range SplitReply(formatted, o.opts.ChunkSize) {
		// Slack rejects blank messages; a chunk boundary can leave one.
		if strings.TrimSpace(part) == "" {
			continue
		}
		if _, err := o.responder.Post(ctx, t.ev.Channel, t.key.ThreadTS, part); err != nil {
			return err
		}
	}
	return nil
}

// fail posts the error notice and returns StateFailed.
func (o *Orchestrator) fail(ctx context.Context, t turn, err error) State {
	kind := claude.KindOf(err)
	t.logger.Error("turn failed", "state", StateFailed, "kind", kind, "error", err)
	if _, postErr := o.responder.Post(ctx, t.ev.Channel, t.key.ThreadTS, ErrorMessage(err)); postErr != nil {
		t.logger.Error("failed to post error notice", "error", postErr, "retryable", channels.IsRetryable(postErr))
	}
	return StateFailed
}

// cleanup deletes the interim message. Failures are swallowed.
func (o *Orchestrator) cleanup(ctx context.Context, t turn, interimTS string) {
	if interimTS == "" {
		return
	}
	// The turn may have been canceled; the delete still deserves a chance.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.responder.Delete(ctx, t.ev.Channel, interimTS); err != nil {
		t.logger.Debug("failed to delete interim message", "error", err)
	}
}
