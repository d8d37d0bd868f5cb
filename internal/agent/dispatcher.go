// Package agent implements the message dispatcher: it assembles
// conversation context, drives the chat backend through bounded
// tool-call rounds, and accounts token usage.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tmadden/marvin/internal/config"
	"github.com/tmadden/marvin/internal/llm"
	"github.com/tmadden/marvin/internal/session"
	"github.com/tmadden/marvin/internal/tools"
	"github.com/tmadden/marvin/internal/usage"
)

// Canned replies for paths where the backend never produced an answer.
const (
	// LimitReply is sent when both daily token budgets are exhausted
	// and the limit action is deny. No backend call is made.
	LimitReply = "I've hit my daily usage limit. Please try again tomorrow."

	// DegradedReply is sent when the backend stayed unreachable
	// through every retry, or returned nothing usable.
	DegradedReply = "Sorry, I'm having trouble reaching my language model right now. Please try again in a moment."
)

// LLM is the chat backend the dispatcher talks to.
type LLM interface {
	Chat(ctx context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error)
}

// Dispatcher handles one user message end to end. It is safe for
// concurrent use across chats; per-chat ordering is the bridge's job.
type Dispatcher struct {
	logger   *slog.Logger
	backend  LLM
	registry *tools.Registry
	sessions *session.Store
	ledger   *usage.Ledger

	models       config.ModelsConfig
	retries      config.BackendConfig
	systemPrompt string

	sleep func(ctx context.Context, d time.Duration) error // test override
}

func NewDispatcher(
	logger *slog.Logger,
	backend LLM,
	registry *tools.Registry,
	sessions *session.Store,
	ledger *usage.Ledger,
	models config.ModelsConfig,
	retries config.BackendConfig,
	systemPrompt string,
) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		backend:      backend,
		registry:     registry,
		sessions:     sessions,
		ledger:       ledger,
		models:       models,
		retries:      retries,
		systemPrompt: systemPrompt,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one inbound user message and returns the reply to
// send. It never returns an empty string: failure paths produce a
// canned reply instead.
func (d *Dispatcher) Handle(ctx context.Context, userID, chatID int64, text string) string {
	reqID, _ := uuid.NewV7()
	log := d.logger.With("request_id", reqID.String(), "chat_id", chatID)

	d.sessions.AppendUser(chatID, text)
	d.sessions.TrimToBudget(chatID)

	tier, err := d.ledger.PickModel(ctx)
	if errors.Is(err, usage.ErrDailyLimit) {
		log.Warn("request denied, daily limits exhausted")
		return LimitReply
	}
	if err != nil {
		log.Error("model selection failed", "error", err)
		return DegradedReply
	}

	model := d.models.Premium.Name
	if tier == usage.TierMini {
		model = d.models.Mini.Name
	}
	log.Debug("model selected", "tier", tier, "model", model)

	reply := d.converse(tools.WithCaller(ctx, tools.Caller{UserID: userID, ChatID: chatID}),
		log, tier, model, chatID)
	if reply == "" {
		return DegradedReply
	}
	d.sessions.Append(chatID, "assistant", reply)
	return reply
}

// converse runs the bounded tool-call loop and returns the model's
// final text, or "" when no usable answer was produced.
func (d *Dispatcher) converse(ctx context.Context, log *slog.Logger, tier usage.Tier, model string, chatID int64) string {
	msgs := d.assemble(chatID)
	toolDefs := d.registry.List()

	// One chat call per round. The final iteration withholds the tool
	// definitions so the model has to answer in text.
	maxRounds := d.models.MaxToolRounds
	slowRound := false
	for round := 0; ; round++ {
		defs := toolDefs
		if round >= maxRounds {
			defs = nil
		}

		resp, err := d.chatWithRetry(ctx, log, model, msgs, defs, slowRound)
		if err != nil {
			log.Error("backend exchange failed", "round", round, "error", err)
			return ""
		}
		if err := d.ledger.Record(ctx, tier, resp.Usage.TotalTokens); err != nil {
			log.Error("usage record failed", "error", err)
		}

		tc := resp.ToolCall()
		if tc == nil || round >= maxRounds {
			return resp.Message.Content
		}

		toolMsg := d.runTool(ctx, log, tc, &slowRound)
		msgs = append(msgs, resp.Message, toolMsg)

		// The wire exchange above answers the tool_call_id; the session
		// keeps a system note so later turns still see the outcome.
		d.sessions.Append(chatID, "system",
			"Tool "+tc.Function.Name+" returned: "+toolMsg.Content)
	}
}

// runTool executes one tool call and returns the tool-role message
// answering it. Failures travel back the same way so the model can
// explain them; the exchange itself keeps going.
func (d *Dispatcher) runTool(ctx context.Context, log *slog.Logger, tc *llm.ToolCall, slowRound *bool) llm.Message {
	name := tc.Function.Name
	if t, ok := d.registry.Get(name); ok && t.Slow {
		*slowRound = true
	}

	out, err := d.registry.Execute(ctx, name, tc.Function.Arguments)
	if err != nil {
		log.Warn("tool call failed", "tool", name, "error", err)
		out = "Error: " + err.Error()
	} else {
		log.Debug("tool call succeeded", "tool", name)
	}
	return llm.Message{Role: "tool", ToolCallID: tc.ID, Content: out}
}

// chatWithRetry calls the backend, retrying timeouts with a fixed
// pause. After a slow tool has run in this exchange the longer pause
// applies. Non-timeout errors are not retried.
func (d *Dispatcher) chatWithRetry(ctx context.Context, log *slog.Logger, model string, msgs []llm.Message, defs []map[string]any, slowRound bool) (*llm.ChatResponse, error) {
	delay := d.retries.RetryDelay()
	if slowRound {
		delay = d.retries.SlowRetryDelay()
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("backend timed out, retrying",
				"attempt", attempt,
				"delay", delay,
			)
			if err := d.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		resp, err := d.backend.Chat(ctx, model, msgs, defs)
		if err == nil {
			return resp, nil
		}
		if !llm.IsTimeout(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// assemble builds the outbound message list: system prompt first, then
// the chat's retained history.
func (d *Dispatcher) assemble(chatID int64) []llm.Message {
	history := d.sessions.Get(chatID)
	msgs := make([]llm.Message, 0, len(history)+1)
	if d.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: d.systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
