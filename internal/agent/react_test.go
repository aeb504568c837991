package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"merchantama/internal/llm"

	"github.com/openai/openai-go/v3/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	textResponse = `{"id":"resp_text","object":"response","model":"gpt-4.1","output":[
		{"type":"message","id":"msg_1","role":"assistant","status":"completed",
		 "content":[{"type":"output_text","text":%q,"annotations":[]}]}],
		"usage":{"input_tokens":3,"output_tokens":1}}`
	callResponse = `{"id":"resp_call","object":"response","model":"gpt-4.1","output":[
		{"type":"function_call","id":"fc_1","call_id":"call_1","name":%q,"arguments":"{\"userId\":\"u1\"}","status":"completed"}],
		"usage":{"input_tokens":5,"output_tokens":2}}`
)

func mustResponse(t *testing.T, tmpl, arg string) *responses.Response {
	t.Helper()
	var resp responses.Response
	q, err := json.Marshal(arg)
	require.NoError(t, err)
	raw := strings.Replace(tmpl, "%q", string(q), 1)
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return &resp
}

// scriptedProvider replays canned responses, streaming the text of each one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*responses.Response
	requests  []llm.Request
	err       error
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req llm.Request, onToken func(string)) (*responses.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	resp := p.responses[min(n, len(p.responses))-1]
	if text := resp.OutputText(); text != "" {
		onToken(text)
	}
	return resp, nil
}

type lookupTool struct{}

func (lookupTool) Name() string        { return "lookup" }
func (lookupTool) Description() string { return "Look up a user" }
func (lookupTool) InputSchema() any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (lookupTool) Execute(ctx context.Context, input string) (string, error) {
	return `{"name":"John Doe"}`, nil
}

type hookLog struct {
	mu     sync.Mutex
	events []string
}

func (l *hookLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *hookLog) hooks() Hooks {
	return Hooks{
		OnAgentStart: func(_ context.Context, name string) { l.add("start:" + name) },
		OnAgentEnd:   func(_ context.Context, name string, _ any) { l.add("end:" + name) },
		OnToolStart:  func(_ context.Context, tool string) { l.add("tool_start:" + tool) },
		OnToolEnd:    func(_ context.Context, tool string, _ string) { l.add("tool_end:" + tool) },
	}
}

func newRegistry() *Registry {
	r := NewRegistry()
	r.Register(lookupTool{})
	return r
}

func TestNewReactRunnerValidation(t *testing.T) {
	_, err := NewReactRunner("", &scriptedProvider{}, nil)
	assert.Error(t, err)

	_, err = NewReactRunner("a", nil, nil)
	assert.Error(t, err)

	r, err := NewReactRunner("a", &scriptedProvider{}, newRegistry())
	require.NoError(t, err)
	require.Len(t, r.tools, 1)
	assert.Equal(t, "lookup", r.tools[0].OfFunction.Name)
}

func TestRunPlainAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{mustResponse(t, textResponse, "4")}}
	var log hookLog
	r, err := NewReactRunner("Merchant AmA Agent", p, nil, WithInstructions("be brief"), WithHooks(log.hooks()))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, "4", res.FinalOutput)
	assert.Equal(t, "4", res.OutputText)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, "resp_text", res.LastResponseID)
	assert.Equal(t, int64(3), res.Usage.InputTokens)
	assert.Equal(t, []string{"start:Merchant AmA Agent", "end:Merchant AmA Agent"}, log.events)

	require.Len(t, p.requests, 1)
	assert.Equal(t, "be brief", p.requests[0].Instructions)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	r, err := NewReactRunner("a", &scriptedProvider{}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = r.RunStream(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRunWithToolCall(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{
		mustResponse(t, callResponse, "lookup"),
		mustResponse(t, textResponse, "John Doe"),
	}}
	var log hookLog
	r, err := NewReactRunner("agent", p, newRegistry(), WithHooks(log.hooks()))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "who is u1?")
	require.NoError(t, err)

	assert.Equal(t, "John Doe", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, int64(8), res.Usage.InputTokens)
	assert.Equal(t, []string{"start:agent", "tool_start:lookup", "tool_end:lookup", "end:agent"}, log.events)

	require.Len(t, p.requests, 2)
	assert.Len(t, p.requests[0].Input, 1)
	// user message, function call, function call output
	assert.Len(t, p.requests[1].Input, 3)
}

func TestRunUnknownToolIsReportedToModel(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{
		mustResponse(t, callResponse, "missing"),
		mustResponse(t, textResponse, "sorry"),
	}}
	var log hookLog
	r, err := NewReactRunner("agent", p, newRegistry(), WithHooks(log.hooks()))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "sorry", res.FinalOutput)
	assert.Equal(t, []string{"start:agent", "end:agent"}, log.events)
}

func TestRunMaxTurns(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{mustResponse(t, callResponse, "lookup")}}
	var log hookLog
	r, err := NewReactRunner("agent", p, newRegistry(), WithMaxTurns(2), WithHooks(log.hooks()))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrMaxTurns)
	assert.Len(t, p.requests, 2)
	assert.NotContains(t, log.events, "end:agent")
}

func TestRunProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	r, err := NewReactRunner("agent", &scriptedProvider{err: boom}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
}

func TestRunStructuredOutput(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{
		mustResponse(t, textResponse, `{"response":"Hello","happinessLevel":true}`),
	}}
	schema := map[string]any{"type": "object"}
	r, err := NewReactRunner("agent", p, nil, WithOutputSchema("answer", schema))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"response": "Hello", "happinessLevel": true}, res.FinalOutput)
	assert.Equal(t, "answer", p.requests[0].OutputSchemaName)
}

func TestRunStreamChunks(t *testing.T) {
	p := &scriptedProvider{responses: []*responses.Response{
		mustResponse(t, callResponse, "lookup"),
		mustResponse(t, textResponse, "John Doe"),
	}}
	r, err := NewReactRunner("agent", p, newRegistry())
	require.NoError(t, err)

	stream, err := r.RunStream(context.Background(), "who is u1?")
	require.NoError(t, err)

	var types []ChunkType
	var text strings.Builder
	for {
		c, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		types = append(types, c.Type)
		if d, ok := c.TextDelta(); ok {
			text.WriteString(d)
		}
	}

	assert.Equal(t, []ChunkType{ChunkTurnDone, ChunkToolCall, ChunkToolOutput, ChunkTextDelta, ChunkTurnDone}, types)
	assert.Equal(t, "John Doe", text.String())

	res, err := stream.Result()
	require.NoError(t, err)
	assert.Equal(t, "John Doe", res.FinalOutput)
}

func TestRunStreamError(t *testing.T) {
	boom := errors.New("rate limited")
	r, err := NewReactRunner("agent", &scriptedProvider{err: boom}, nil)
	require.NoError(t, err)

	stream, err := r.RunStream(context.Background(), "hi")
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	<-stream.Done()
	assert.ErrorIs(t, stream.Err(), boom)
}
