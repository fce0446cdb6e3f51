package chatbot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"GiftChat/internal/backend"
	"GiftChat/internal/session"
	"GiftChat/internal/tools"
)

// SystemPrompt seeds every new conversation with the sales assistant persona.
const SystemPrompt = `You are a helpful sales assistant for a gift card store.

Help users browse and purchase gift cards. When they want to buy something:
1. Use the create_checkout_session function to generate a payment link
2. The function will return a JSON with "checkout_url"
3. Share that URL with the user in a friendly way

Important: When you receive the checkout URL, present it to the user like this:
"Great! I've created your checkout session. Click here to complete your payment: [URL]"

Always be friendly and helpful!`

// ChatBot coordinates conversations between the session store, the model
// backend, and the tool registry.
type ChatBot struct {
	backend  *backend.Client
	registry *tools.Registry
	store    session.Store
	logger   *slog.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new ChatBot instance.
func New(bk *backend.Client, registry *tools.Registry, store session.Store, logger *slog.Logger, tracer trace.Tracer) *ChatBot {
	return &ChatBot{
		backend:  bk,
		registry: registry,
		store:    store,
		logger:   logger,
		tracer:   tracer,
		locks:    make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex for a single conversation so concurrent
// requests against the same session are serialized.
func (cb *ChatBot) sessionLock(sessionID string) *sync.Mutex {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	lock, ok := cb.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		cb.locks[sessionID] = lock
	}
	return lock
}

// SendMessage runs one conversation turn: it appends the user message to the
// session, asks the model for a reply, executes any requested tool calls, and
// returns the assistant's final text.
func (cb *ChatBot) SendMessage(ctx context.Context, sessionID, userMessage string) (string, error) {
	ctx, span := cb.tracer.Start(ctx, "chat_turn")
	defer span.End()

	lock := cb.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	messages, err := cb.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	messages = cb.repairHistory(ctx, sessionID, messages)

	userMsg := session.Message{
		Role:      session.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	}
	if err := cb.store.Append(ctx, sessionID, userMsg); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	messages = append(messages, userMsg)

	reply, err := cb.backend.Chat(ctx, messages, cb.registry.OpenAITools())
	if err != nil {
		return "", err
	}

	if len(reply.ToolCalls) == 0 {
		assistantMsg := session.Message{
			Role:      session.RoleAssistant,
			Content:   reply.Content,
			Timestamp: time.Now(),
		}
		if err := cb.store.Append(ctx, sessionID, assistantMsg); err != nil {
			return "", fmt.Errorf("failed to append message: %w", err)
		}
		return reply.Content, nil
	}

	return cb.runToolCalls(ctx, sessionID, messages, reply)
}

// runToolCalls executes the model's requested tool calls in request order,
// records each result against its tool call ID, and asks the model for a
// final answer over the extended history.
func (cb *ChatBot) runToolCalls(ctx context.Context, sessionID string, messages []session.Message, reply *backend.Reply) (string, error) {
	cb.logger.Info("handling tool calls", "session_id", sessionID, "count", len(reply.ToolCalls))

	assistantMsg := session.Message{
		Role:      session.RoleAssistant,
		Content:   reply.Content,
		ToolCalls: reply.ToolCalls,
		Timestamp: time.Now(),
	}
	if err := cb.store.Append(ctx, sessionID, assistantMsg); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	messages = append(messages, assistantMsg)

	for _, call := range reply.ToolCalls {
		result, err := cb.registry.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
		if err != nil {
			return "", err
		}
		toolMsg := session.Message{
			Role:       session.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
			Timestamp:  time.Now(),
		}
		if err := cb.store.Append(ctx, sessionID, toolMsg); err != nil {
			return "", fmt.Errorf("failed to append message: %w", err)
		}
		messages = append(messages, toolMsg)
	}

	// The follow-up call carries no tool definitions so the model answers in
	// plain text instead of requesting more calls.
	final, err := cb.backend.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}

	finalMsg := session.Message{
		Role:      session.RoleAssistant,
		Content:   final.Content,
		Timestamp: time.Now(),
	}
	if err := cb.store.Append(ctx, sessionID, finalMsg); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	return final.Content, nil
}

// repairHistory drops an incomplete tool exchange from the end of a stored
// conversation. An interrupted turn can leave an assistant tool call request
// without results, or results without their request. Either shape is rejected
// by the chat completion API, so the broken tail is truncated before the next
// turn. A fully answered exchange that never got its final assistant text is
// valid history and stays.
func (cb *ChatBot) repairHistory(ctx context.Context, sessionID string, messages []session.Message) []session.Message {
	i := len(messages) - 1
	results := make(map[string]bool)
	for i >= 0 && messages[i].Role == session.RoleTool {
		results[messages[i].ToolCallID] = true
		i--
	}

	keep := len(messages)
	switch {
	case i >= 0 && len(messages[i].ToolCalls) > 0 && !callsAnswered(messages[i].ToolCalls, results):
		keep = i
	case len(results) > 0 && (i < 0 || len(messages[i].ToolCalls) == 0):
		keep = i + 1
	}

	if keep == len(messages) {
		return messages
	}

	cb.logger.Warn("dropping incomplete tool exchange",
		"session_id", sessionID, "dropped", len(messages)-keep)
	if err := cb.store.Truncate(ctx, sessionID, keep); err != nil {
		cb.logger.Warn("failed to truncate session", "session_id", sessionID, "error", err)
	}
	return messages[:keep]
}

// callsAnswered reports whether the recorded results answer exactly the
// requested tool calls.
func callsAnswered(calls []session.ToolCall, results map[string]bool) bool {
	if len(calls) != len(results) {
		return false
	}
	for _, call := range calls {
		if !results[call.ID] {
			return false
		}
	}
	return true
}
