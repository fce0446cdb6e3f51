package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"GiftChat/internal/session"
)

// Client calls the OpenAI chat completions API.
type Client struct {
	api    *openai.Client
	model  string
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

// Reply is a single model turn: the assistant's text plus any tool
// calls it requested.
type Reply struct {
	Content   string
	ToolCalls []session.ToolCall
}

// NewClient creates an OpenAI-backed model client. httpClient may be
// nil to use the SDK default transport.
func NewClient(apiKey, model string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
		tracer: tracer,
		meter:  meter,
	}
}

// Chat sends the conversation to the model. When tools is non-empty the
// model may answer with tool calls; pass nil to force a plain text
// reply.
func (c *Client) Chat(ctx context.Context, messages []session.Message, tools []openai.Tool) (*Reply, error) {
	ctx, span := c.tracer.Start(ctx, "openai_chat_completion")
	defer span.End()

	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	duration := time.Since(start)
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	c.recordUsage(ctx, resp.Usage)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, session.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	c.logger.Debug("chat completion",
		"model", c.model,
		"tool_calls", len(reply.ToolCalls),
		"duration_ms", duration.Milliseconds(),
	)

	return reply, nil
}

// recordUsage records OpenTelemetry counters from usage data
func (c *Client) recordUsage(ctx context.Context, usage openai.Usage) {
	counts := map[string]int64{
		"prompt_tokens":     int64(usage.PromptTokens),
		"completion_tokens": int64(usage.CompletionTokens),
		"total_tokens":      int64(usage.TotalTokens),
	}

	for key, value := range counts {
		counter, err := c.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, value)
	}
}

// toChatMessages converts session messages to the provider's wire
// format, preserving tool call attribution.
func toChatMessages(messages []session.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = m
	}
	return out
}
