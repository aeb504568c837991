package agent

import (
	"context"
	"errors"
)

var (
	ErrMaxTurns   = errors.New("agent exceeded max turns")
	ErrEmptyInput = errors.New("agent input is empty")
	ErrRunning    = errors.New("agent run still in progress")
)

// Runner executes an agent against a transcript.
type Runner interface {
	Run(ctx context.Context, input string) (*Result, error)
	RunStream(ctx context.Context, input string) (*Stream, error)
}

// Hooks are the lifecycle notifications of a run. Nil slots are skipped.
// Tool hooks may fire from concurrent goroutines when a turn requests
// several tools at once.
type Hooks struct {
	OnAgentStart func(ctx context.Context, agentName string)
	OnAgentEnd   func(ctx context.Context, agentName string, output any)
	OnToolStart  func(ctx context.Context, toolName string)
	OnToolEnd    func(ctx context.Context, toolName string, result string)
}

func (h Hooks) agentStart(ctx context.Context, name string) {
	if h.OnAgentStart != nil {
		h.OnAgentStart(ctx, name)
	}
}

func (h Hooks) agentEnd(ctx context.Context, name string, output any) {
	if h.OnAgentEnd != nil {
		h.OnAgentEnd(ctx, name, output)
	}
}

func (h Hooks) toolStart(ctx context.Context, name string) {
	if h.OnToolStart != nil {
		h.OnToolStart(ctx, name)
	}
}

func (h Hooks) toolEnd(ctx context.Context, name, result string) {
	if h.OnToolEnd != nil {
		h.OnToolEnd(ctx, name, result)
	}
}

type ChunkType string

const (
	ChunkTextDelta  ChunkType = "text_delta"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolOutput ChunkType = "tool_output"
	ChunkTurnDone   ChunkType = "turn_done"
)

// Chunk is one item of a streamed run. Only text deltas carry Data.
type Chunk struct {
	Type ChunkType
	Data *ChunkData
	Tool *ToolCall
}

type ChunkData struct {
	Delta string
}

type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
	Output    string
}

// TextDelta reports the chunk's text fragment, if it has one.
func (c Chunk) TextDelta() (string, bool) {
	if c.Type != ChunkTextDelta || c.Data == nil {
		return "", false
	}
	return c.Data.Delta, true
}

// Result is the outcome of a completed run. FinalOutput is a string, or the
// decoded JSON object when the agent declares an output schema.
type Result struct {
	FinalOutput    any    `json:"finalOutput"`
	OutputText     string `json:"outputText,omitempty"`
	LastResponseID string `json:"lastResponseId,omitempty"`
	Turns          int    `json:"turns"`
	Usage          Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}
