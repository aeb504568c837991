package agent

import (
	"context"
	"log/slog"

	"merchantama/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracedTool runs a tool inside its own span and fires the tool hooks
// around it.
type tracedTool struct {
	Tool
	hooks Hooks
}

func withTrace(t Tool, hooks Hooks) Tool {
	return &tracedTool{Tool: t, hooks: hooks}
}

func (t *tracedTool) Execute(ctx context.Context, input string) (string, error) {
	ctx, span := trace.Tracer().Start(ctx, "tool."+t.Name(),
		oteltrace.WithAttributes(
			attribute.String("gen_ai.tool.name", t.Name()),
			attribute.String("gen_ai.tool.input", input),
			attribute.Int64("merchant.id", MerchantIDFromContext(ctx)),
		),
	)
	defer span.End()

	t.hooks.toolStart(ctx, t.Name())

	result, err := t.Tool.Execute(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("tool execution failed", "tool", t.Name(), "run_id", RunIDFromContext(ctx), "error", err)
		t.hooks.toolEnd(ctx, t.Name(), "error: "+err.Error())
		return result, err
	}

	span.SetAttributes(attribute.Int("gen_ai.tool.output_length", len(result)))
	t.hooks.toolEnd(ctx, t.Name(), result)
	return result, nil
}
