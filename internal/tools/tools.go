package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"GiftChat/internal/catalog"
	"GiftChat/internal/payment"
)

// PaymentProvider is the payment surface the purchase tools need.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, productID string, product catalog.Product) (*payment.CheckoutSession, error)
	ProcessTestPayment(ctx context.Context, productID string, product catalog.Product) (*payment.PaymentOutcome, error)
}

// Definition describes one tool exposed to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Definition
	Handler     func(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds the fixed set of sales tools.
type Registry struct {
	defs   []Definition
	byName map[string]Definition
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRegistry wires the sales tools against the catalog and the
// payment provider.
func NewRegistry(cat *catalog.Catalog, payments PaymentProvider, logger *slog.Logger, tracer trace.Tracer) *Registry {
	r := &Registry{
		byName: make(map[string]Definition),
		logger: logger,
		tracer: tracer,
	}
	r.register(listProductsTool(cat))
	r.register(checkoutTool(cat, payments))
	r.register(testPaymentTool(cat, payments))
	return r
}

func (r *Registry) register(def Definition) {
	r.defs = append(r.defs, def)
	r.byName[def.Name] = def
}

// OpenAITools renders the registry in the provider's tool format.
func (r *Registry) OpenAITools() []openai.Tool {
	out := make([]openai.Tool, len(r.defs))
	for i, def := range r.defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

// Execute runs the named tool and returns its JSON payload. Tool-level
// failures (unknown product, provider rejection, unknown tool name)
// come back inside the payload so the model can see them and recover;
// an error return means the call itself could not be carried out.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	ctx, span := r.tracer.Start(ctx, "tool_dispatch")
	defer span.End()

	if !json.Valid(args) {
		return "", fmt.Errorf("arguments for %s are not valid JSON", name)
	}

	def, ok := r.byName[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return errorPayload("Unknown function"), nil
	}

	start := time.Now()
	result, err := def.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}

	r.logger.Info("executed tool", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// productArgs is the argument shape shared by the purchase tools.
type productArgs struct {
	ProductID string `json:"product_id"`
}

func productIDParameters() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"product_id": {
				Type:        jsonschema.String,
				Description: "The product ID to purchase",
			},
		},
		Required: []string{"product_id"},
	}
}

// errorPayload renders a tool-level failure the model can read.
func errorPayload(message string) string {
	out, _ := json.Marshal(map[string]string{"error": message})
	return string(out)
}
