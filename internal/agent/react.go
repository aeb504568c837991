package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"merchantama/internal/llm"
	"merchantama/internal/trace"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const defaultMaxTurns = 10

type Option func(*ReactRunner)

func WithInstructions(s string) Option {
	return func(r *ReactRunner) { r.instructions = s }
}

func WithHooks(h Hooks) Option {
	return func(r *ReactRunner) { r.hooks = h }
}

func WithMaxTurns(n int) Option {
	return func(r *ReactRunner) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// WithOutputSchema makes the final answer a JSON object matching schema.
// The decoded object becomes Result.FinalOutput.
func WithOutputSchema(name string, schema map[string]any) Option {
	return func(r *ReactRunner) {
		r.outputName = name
		r.outputSchema = schema
	}
}

// ReactRunner implements a ReAct (Reason + Act) agent loop.
// The agent keeps calling the model and executing the tools it asks for
// until a turn comes back without tool calls, the turn budget runs out, or
// the context is cancelled.
type ReactRunner struct {
	name         string
	provider     llm.Provider
	registry     *Registry
	tools        []responses.ToolUnionParam
	instructions string
	hooks        Hooks
	maxTurns     int
	outputName   string
	outputSchema map[string]any
}

func NewReactRunner(name string, provider llm.Provider, registry *Registry, opts ...Option) (*ReactRunner, error) {
	if name == "" {
		return nil, errors.New("agent name is required")
	}
	if provider == nil {
		return nil, errors.New("agent provider is required")
	}
	if registry == nil {
		registry = NewRegistry()
	}

	r := &ReactRunner{
		name:     name,
		provider: provider,
		registry: registry,
		maxTurns: defaultMaxTurns,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, t := range registry.All() {
		schema, ok := t.InputSchema().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool %s: input schema is %T, want map[string]any", t.Name(), t.InputSchema())
		}
		r.tools = append(r.tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  schema,
				Strict:      openai.Bool(true),
			},
		})
	}

	return r, nil
}

func (r *ReactRunner) Name() string { return r.name }

// Run executes the agent to completion and returns the final result.
func (r *ReactRunner) Run(ctx context.Context, input string) (*Result, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}
	return r.run(ctx, input, func(Chunk) error { return nil })
}

// RunStream starts the agent on its own goroutine and returns the stream of
// its chunks. Chunks are handed over unbuffered, so hooks fired between two
// chunks are observed by the consumer before it receives the later one.
func (r *ReactRunner) RunStream(ctx context.Context, input string) (*Stream, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}

	return StartStream(ctx, func(emit func(Chunk) error) (*Result, error) {
		return r.run(ctx, input, emit)
	}), nil
}

func (r *ReactRunner) run(ctx context.Context, input string, emit func(Chunk) error) (*Result, error) {
	ctx, span := trace.Tracer().Start(ctx, "agent.run",
		oteltrace.WithAttributes(
			attribute.String("agent.name", r.name),
			attribute.String("run.id", RunIDFromContext(ctx)),
			attribute.Int64("merchant.id", MerchantIDFromContext(ctx)),
		),
	)
	defer span.End()

	r.hooks.agentStart(ctx, r.name)

	res, err := r.loop(ctx, input, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r.hooks.agentEnd(ctx, r.name, res.FinalOutput)
	return res, nil
}

// loop is the core ReAct cycle. Each iteration is a single model call. When a
// tool fails, the error goes back into context and the model sees it on the
// next iteration.
func (r *ReactRunner) loop(ctx context.Context, input string, emit func(Chunk) error) (*Result, error) {
	items := []responses.ResponseInputItemUnionParam{
		responses.ResponseInputItemParamOfMessage(input, "user"),
	}
	var usage Usage

	for turn := 0; turn < r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		llmCtx, llmSpan := trace.Tracer().Start(ctx, "llm.turn",
			oteltrace.WithAttributes(attribute.Int("llm.turn", turn)),
		)

		var emitErr error
		resp, err := r.provider.ChatStream(llmCtx, llm.Request{
			Instructions:     r.instructions,
			Input:            items,
			Tools:            r.tools,
			OutputSchema:     r.outputSchema,
			OutputSchemaName: r.outputName,
		}, func(token string) {
			if emitErr == nil {
				emitErr = emit(Chunk{Type: ChunkTextDelta, Data: &ChunkData{Delta: token}})
			}
		})
		if err == nil {
			err = emitErr
		}
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.SetStatus(codes.Error, err.Error())
			llmSpan.End()
			return nil, err
		}

		llmSpan.SetAttributes(
			attribute.String("llm.model", string(resp.Model)),
			attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
		)
		llmSpan.End()
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		slog.Debug("agent turn done", "agent", r.name, "run_id", RunIDFromContext(ctx), "turn", turn, "output_items", len(resp.Output))

		items = append(items, outputToInput(resp.Output)...)
		if err := emit(Chunk{Type: ChunkTurnDone}); err != nil {
			return nil, err
		}

		var calls []responses.ResponseFunctionToolCall
		for _, item := range resp.Output {
			if item.Type == "function_call" {
				calls = append(calls, item.AsFunctionCall())
			}
		}

		if len(calls) == 0 {
			return r.result(resp, turn+1, usage), nil
		}

		results, err := r.act(ctx, calls, emit)
		if err != nil {
			return nil, err
		}
		items = append(items, results...)
	}

	return nil, fmt.Errorf("%w (%d)", ErrMaxTurns, r.maxTurns)
}

// act executes tool calls in parallel and returns their outputs formatted as
// input items for the next turn. Call and output chunks are emitted in call
// order around the parallel section.
func (r *ReactRunner) act(ctx context.Context, calls []responses.ResponseFunctionToolCall, emit func(Chunk) error) ([]responses.ResponseInputItemUnionParam, error) {
	for _, fc := range calls {
		if err := emit(Chunk{Type: ChunkToolCall, Tool: &ToolCall{CallID: fc.CallID, Name: fc.Name, Arguments: fc.Arguments}}); err != nil {
			return nil, err
		}
	}

	var wg sync.WaitGroup
	outputs := make([]string, len(calls))

	for i, fc := range calls {
		wg.Add(1)
		go func(i int, fc responses.ResponseFunctionToolCall) {
			defer wg.Done()

			tool, ok := r.registry.Get(fc.Name)
			if !ok {
				slog.Warn("unknown tool call", "name", fc.Name)
				outputs[i] = "error: unknown tool"
				return
			}

			result, err := withTrace(tool, r.hooks).Execute(ctx, fc.Arguments)
			if err != nil {
				outputs[i] = "error: " + err.Error()
				return
			}
			outputs[i] = result
		}(i, fc)
	}
	wg.Wait()

	results := make([]responses.ResponseInputItemUnionParam, len(calls))
	for i, fc := range calls {
		results[i] = responses.ResponseInputItemParamOfFunctionCallOutput(fc.CallID, outputs[i])
		if err := emit(Chunk{Type: ChunkToolOutput, Tool: &ToolCall{CallID: fc.CallID, Name: fc.Name, Output: outputs[i]}}); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *ReactRunner) result(resp *responses.Response, turns int, usage Usage) *Result {
	text := resp.OutputText()
	res := &Result{
		FinalOutput:    text,
		OutputText:     text,
		LastResponseID: resp.ID,
		Turns:          turns,
		Usage:          usage,
	}

	if r.outputSchema != nil {
		var structured map[string]any
		if err := json.Unmarshal([]byte(text), &structured); err != nil {
			slog.Warn("structured output is not a JSON object", "agent", r.name, "error", err)
		} else {
			res.FinalOutput = structured
		}
	}
	return res
}

// outputToInput converts response output items into input item params for
// the next call.
func outputToInput(output []responses.ResponseOutputItemUnion) []responses.ResponseInputItemUnionParam {
	var items []responses.ResponseInputItemUnionParam
	for _, item := range output {
		switch item.Type {
		case "message":
			v := item.AsMessage().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfOutputMessage: &v})
		case "function_call":
			v := item.AsFunctionCall().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfFunctionCall: &v})
		case "reasoning":
			v := item.AsReasoning().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &v})
		default:
			slog.Debug("skipping unknown output item type", "type", item.Type)
		}
	}
	return items
}
