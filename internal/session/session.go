package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"merchantama/internal/agent"
	"merchantama/internal/interleave"
)

// RunnerFactory builds the agent for one run with the given lifecycle hooks.
type RunnerFactory func(hooks agent.Hooks) (agent.Runner, error)

type Option func(*Session)

// WithStartTimeout bounds how long a streaming run may take to report its
// start. Zero waits as long as the context allows.
func WithStartTimeout(d time.Duration) Option {
	return func(s *Session) { s.startTimeout = d }
}

func WithExtractors(ex []Extractor) Option {
	return func(s *Session) { s.extractors = ex }
}

// Session runs one merchant's exchanges. The transcript is caller-managed:
// each call takes the prior transcript and returns the updated one.
type Session struct {
	merchantID   int64
	newRunner    RunnerFactory
	runner       agent.Runner
	extractors   []Extractor
	startTimeout time.Duration
	history      string
}

// New builds the session and its agent. A construction failure leaves no
// usable session.
func New(merchantID int64, factory RunnerFactory, opts ...Option) (*Session, error) {
	s := &Session{
		merchantID: merchantID,
		newRunner:  factory,
		extractors: DefaultExtractors,
	}
	for _, opt := range opts {
		opt(s)
	}

	runner, err := factory(agent.Hooks{})
	if err != nil {
		return nil, fmt.Errorf("initializing agent: %w", err)
	}
	s.runner = runner
	return s, nil
}

// Reply is the outcome of a non-streaming exchange.
type Reply struct {
	FinalOutput    string `json:"finalOutput"`
	UpdatedHistory string `json:"updatedHistory"`
}

func (s *Session) HandleMessage(ctx context.Context, message, history string) (*Reply, error) {
	prompt := BuildPrompt(history, message)
	ctx = agent.ContextWithMerchantID(ctx, s.merchantID)

	slog.Debug("session: handle message", "merchant_id", s.merchantID, "run_id", agent.RunIDFromContext(ctx), "prompt_len", len(prompt))

	res, err := s.runner.Run(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("running agent: %w", err)
	}

	text, err := ExtractText(res, s.extractors)
	if err != nil {
		return nil, fmt.Errorf("extracting output: %w", err)
	}

	s.history = AppendTurn(prompt, RoleAssistant, text)
	slog.Debug("session: final output", "merchant_id", s.merchantID, "output_len", len(text))

	return &Reply{FinalOutput: text, UpdatedHistory: s.history}, nil
}

// HandleMessageStream starts a streaming run and returns once the agent has
// reported its start. Status events and text deltas are then read from the
// reply's Fragments. The run holds a goroutine until Fragments has been
// ranged over or Close has been called; callers must do one of the two.
func (s *Session) HandleMessageStream(ctx context.Context, message, history string) (*StreamReply, error) {
	prompt := BuildPrompt(history, message)
	ctx = agent.ContextWithMerchantID(ctx, s.merchantID)

	slog.Debug("session: handle message stream", "merchant_id", s.merchantID, "run_id", agent.RunIDFromContext(ctx), "prompt_len", len(prompt))

	collector := interleave.NewCollector()
	runner, err := s.newRunner(collectorHooks(collector))
	if err != nil {
		return nil, fmt.Errorf("initializing agent: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := runner.RunStream(ctx, prompt)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("running agent: %w", err)
	}

	go func() {
		<-stream.Done()
		collector.Fail(stream.Err())
	}()

	if err := collector.WaitStarted(ctx, s.startTimeout); err != nil {
		cancel()
		return nil, fmt.Errorf("waiting for agent start: %w", err)
	}

	src := interleave.SourceFunc(func(ctx context.Context) (interleave.Content, error) {
		c, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	return &StreamReply{
		session: s,
		prompt:  prompt,
		stream:  stream,
		seq:     interleave.Interleave(ctx, collector, src),
		cancel:  cancel,
	}, nil
}

// History returns the transcript produced by the last completed exchange.
func (s *Session) History() string { return s.history }

// Reset forgets the last transcript.
func (s *Session) Reset() { s.history = "" }

// StreamReply is a streaming exchange in progress.
type StreamReply struct {
	session *Session
	prompt  string
	stream  *agent.Stream
	seq     iter.Seq2[interleave.Fragment, error]
	cancel  context.CancelFunc

	text      strings.Builder
	updated   string
	completed bool
}

// Fragments yields the interleaved output. It may be ranged over once; the
// run is cancelled when iteration ends, early or not.
func (r *StreamReply) Fragments() iter.Seq2[interleave.Fragment, error] {
	return func(yield func(interleave.Fragment, error) bool) {
		defer r.cancel()

		for f, err := range r.seq {
			if err != nil {
				yield(f, err)
				return
			}
			if f.Kind == interleave.KindText {
				r.text.WriteString(f.Text)
			}
			if !yield(f, nil) {
				return
			}
		}

		if err := r.complete(); err != nil {
			yield(interleave.Fragment{}, err)
		}
	}
}

func (r *StreamReply) complete() error {
	answer := r.text.String()
	res, err := r.stream.Result()
	switch {
	case err == nil && res != nil:
		answer, err = ExtractText(res, r.session.extractors)
		if err != nil {
			return fmt.Errorf("extracting output: %w", err)
		}
	case err != nil && !errors.Is(err, agent.ErrRunning):
		return err
	}

	r.updated = AppendTurn(r.prompt, RoleAssistant, answer)
	r.session.history = r.updated
	r.completed = true
	return nil
}

// Close stops the run. It is safe to call after Fragments has finished.
func (r *StreamReply) Close() { r.cancel() }

// Text returns the text deltas received so far.
func (r *StreamReply) Text() string { return r.text.String() }

// UpdatedHistory returns the transcript including the assistant's answer.
// It is empty until Fragments has been consumed to the end.
func (r *StreamReply) UpdatedHistory() string { return r.updated }

func (r *StreamReply) Completed() bool { return r.completed }

func collectorHooks(c *interleave.Collector) agent.Hooks {
	return agent.Hooks{
		OnAgentStart: func(_ context.Context, name string) {
			c.Push(interleave.StatusEvent{Event: interleave.AgentStart, Agent: name})
		},
		OnAgentEnd: func(_ context.Context, name string, output any) {
			c.Push(interleave.StatusEvent{Event: interleave.AgentEnd, Agent: name, Output: output})
		},
		OnToolStart: func(_ context.Context, tool string) {
			c.Push(interleave.StatusEvent{Event: interleave.AgentToolStart, Tool: tool})
		},
		OnToolEnd: func(_ context.Context, tool string, _ string) {
			c.Push(interleave.StatusEvent{Event: interleave.AgentToolEnd, Tool: tool})
		},
	}
}
