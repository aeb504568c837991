package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"merchantama/internal/agent"
	"merchantama/internal/interleave"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner plays a scripted run through the hooks and stream.
type fakeRunner struct {
	hooks      agent.Hooks
	deltas     []string
	tools      []string
	result     *agent.Result
	err        error
	startDelay time.Duration
	noStart    bool

	inputs []string
	merch  int64
}

func (f *fakeRunner) factory(h agent.Hooks) (agent.Runner, error) {
	f.hooks = h
	return f, nil
}

func (f *fakeRunner) Run(ctx context.Context, input string) (*agent.Result, error) {
	f.inputs = append(f.inputs, input)
	f.merch = agent.MerchantIDFromContext(ctx)
	return f.result, f.err
}

func (f *fakeRunner) RunStream(ctx context.Context, input string) (*agent.Stream, error) {
	f.inputs = append(f.inputs, input)
	hooks := f.hooks
	return agent.StartStream(ctx, func(emit func(agent.Chunk) error) (*agent.Result, error) {
		if f.startDelay > 0 {
			time.Sleep(f.startDelay)
		}
		if f.err != nil && f.noStart {
			return nil, f.err
		}
		if !f.noStart {
			hooks.OnAgentStart(ctx, "Merchant AmA Agent")
		}
		for _, tool := range f.tools {
			hooks.OnToolStart(ctx, tool)
			if err := emit(agent.Chunk{Type: agent.ChunkToolCall, Tool: &agent.ToolCall{Name: tool}}); err != nil {
				return nil, err
			}
			hooks.OnToolEnd(ctx, tool, "{}")
		}
		for _, d := range f.deltas {
			if err := emit(agent.Chunk{Type: agent.ChunkTextDelta, Data: &agent.ChunkData{Delta: d}}); err != nil {
				return nil, err
			}
		}
		if f.err != nil {
			return nil, f.err
		}
		hooks.OnAgentEnd(ctx, "Merchant AmA Agent", f.result.FinalOutput)
		return f.result, nil
	}), nil
}

func drain(t *testing.T, r *StreamReply) ([]interleave.Fragment, error) {
	t.Helper()
	var out []interleave.Fragment
	for f, err := range r.Fragments() {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func TestNewFailsOnAgentInitError(t *testing.T) {
	boom := errors.New("missing model")
	_, err := New(1, func(agent.Hooks) (agent.Runner, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestHandleMessage(t *testing.T) {
	fr := &fakeRunner{result: &agent.Result{FinalOutput: "4"}}
	s, err := New(7, fr.factory)
	require.NoError(t, err)

	reply, err := s.HandleMessage(context.Background(), "2+2?", "")
	require.NoError(t, err)

	assert.Equal(t, "4", reply.FinalOutput)
	assert.Equal(t, "User: 2+2?\n\nAssistant: 4", reply.UpdatedHistory)
	assert.Equal(t, reply.UpdatedHistory, s.History())
	assert.Equal(t, int64(7), fr.merch)

	s.Reset()
	assert.Empty(t, s.History())
}

func TestHandleMessageEmptyAnswer(t *testing.T) {
	fr := &fakeRunner{result: &agent.Result{FinalOutput: ""}}
	s, err := New(1, fr.factory)
	require.NoError(t, err)

	reply, err := s.HandleMessage(context.Background(), "hi", "")
	require.NoError(t, err)

	assert.Equal(t, "", reply.FinalOutput)
	assert.Equal(t, "User: hi\n\nAssistant: ", reply.UpdatedHistory)
}

func TestHandleMessageCarriesHistory(t *testing.T) {
	fr := &fakeRunner{result: &agent.Result{FinalOutput: "fine"}}
	s, err := New(1, fr.factory)
	require.NoError(t, err)

	prior := AppendTurn(AppendTurn("", RoleUser, "hi"), RoleAssistant, "hello")
	_, err = s.HandleMessage(context.Background(), "how are you?", prior)
	require.NoError(t, err)

	require.Len(t, fr.inputs, 1)
	assert.True(t, strings.HasPrefix(fr.inputs[0], "User: hi\n\nAssistant: hello"))
	assert.True(t, strings.HasSuffix(fr.inputs[0], "User: how are you?"))
}

func TestHandleMessageRunError(t *testing.T) {
	boom := errors.New("rate limited")
	fr := &fakeRunner{err: boom}
	s, err := New(1, fr.factory)
	require.NoError(t, err)

	_, err = s.HandleMessage(context.Background(), "hi", "")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.History())
}

func TestHandleMessageStream(t *testing.T) {
	fr := &fakeRunner{
		tools:  []string{"user_info"},
		deltas: []string{"John ", "Doe"},
		result: &agent.Result{FinalOutput: "John Doe"},
	}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	reply, err := s.HandleMessageStream(context.Background(), "who is 275?", "")
	require.NoError(t, err)

	frags, err := drain(t, reply)
	require.NoError(t, err)

	var events []interleave.EventType
	for _, f := range frags {
		if f.Kind == interleave.KindStatus {
			events = append(events, f.Status.Event)
		}
	}
	assert.Equal(t, []interleave.EventType{
		interleave.AgentStart, interleave.AgentToolStart, interleave.AgentToolEnd, interleave.AgentEnd,
	}, events)
	assert.Equal(t, interleave.KindStatus, frags[0].Kind)
	assert.Equal(t, interleave.AgentEnd, frags[len(frags)-1].Status.Event)

	assert.Equal(t, "John Doe", reply.Text())
	assert.True(t, reply.Completed())
	assert.Equal(t, "User: who is 275?\n\nAssistant: John Doe", reply.UpdatedHistory())
	assert.Equal(t, reply.UpdatedHistory(), s.History())
}

func TestHandleMessageStreamWaitsForStart(t *testing.T) {
	const delay = 50 * time.Millisecond
	fr := &fakeRunner{
		deltas:     []string{"4"},
		result:     &agent.Result{FinalOutput: "4"},
		startDelay: delay,
	}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	begin := time.Now()
	reply, err := s.HandleMessageStream(context.Background(), "2+2?", "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), delay-5*time.Millisecond)

	frags, err := drain(t, reply)
	require.NoError(t, err)
	require.NotEmpty(t, frags)
	assert.Equal(t, interleave.AgentStart, frags[0].Status.Event)
}

func TestHandleMessageStreamFailsBeforeStart(t *testing.T) {
	boom := errors.New("invalid api key")
	fr := &fakeRunner{err: boom, noStart: true}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	_, err = s.HandleMessageStream(context.Background(), "hi", "")
	assert.ErrorIs(t, err, boom)
}

func TestHandleMessageStreamStartTimeout(t *testing.T) {
	fr := &fakeRunner{noStart: true, deltas: []string{"late"}, result: &agent.Result{}}
	s, err := New(1, fr.factory, WithStartTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = s.HandleMessageStream(context.Background(), "hi", "")
	assert.ErrorIs(t, err, interleave.ErrStartTimeout)
}

func TestHandleMessageStreamRunErrorAfterStart(t *testing.T) {
	boom := errors.New("connection reset")
	fr := &fakeRunner{deltas: []string{"par"}, err: boom}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	reply, err := s.HandleMessageStream(context.Background(), "hi", "")
	require.NoError(t, err)

	frags, err := drain(t, reply)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "par", reply.Text())
	assert.False(t, reply.Completed())
	assert.Empty(t, reply.UpdatedHistory())
	assert.Equal(t, interleave.AgentStart, frags[0].Status.Event)
}

func TestStreamReplyEarlyBreakCancelsRun(t *testing.T) {
	fr := &fakeRunner{deltas: []string{"a", "b", "c"}, result: &agent.Result{FinalOutput: "abc"}}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	reply, err := s.HandleMessageStream(context.Background(), "hi", "")
	require.NoError(t, err)

	for f, err := range reply.Fragments() {
		require.NoError(t, err)
		if f.Kind == interleave.KindText {
			break
		}
	}

	select {
	case <-reply.stream.Done():
	case <-time.After(time.Second):
		t.Fatal("run not cancelled after early break")
	}
	assert.False(t, reply.Completed())
}

func TestStreamReplyCloseWithoutRanging(t *testing.T) {
	fr := &fakeRunner{deltas: []string{"a", "b"}, result: &agent.Result{FinalOutput: "ab"}}
	s, err := New(1, fr.factory, WithStartTimeout(time.Second))
	require.NoError(t, err)

	reply, err := s.HandleMessageStream(context.Background(), "hi", "")
	require.NoError(t, err)

	reply.Close()

	select {
	case <-reply.stream.Done():
	case <-time.After(time.Second):
		t.Fatal("run still running after Close")
	}
	assert.ErrorIs(t, reply.stream.Err(), context.Canceled)
	assert.False(t, reply.Completed())
	reply.Close()
}
