// Package interleave merges lifecycle status events and streamed text deltas
// into a single ordered sequence of output fragments.
package interleave

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStartTimeout is returned by WaitStarted when the run reports neither
// start nor failure within the timeout.
var ErrStartTimeout = errors.New("timed out waiting for agent start")

type EventType string

const (
	AgentStart     EventType = "agent_start"
	AgentEnd       EventType = "agent_end"
	AgentToolStart EventType = "agent_tool_start"
	AgentToolEnd   EventType = "agent_tool_end"
)

// StatusEvent describes run progress, separate from generated content.
type StatusEvent struct {
	Event  EventType `json:"event"`
	Agent  string    `json:"agent,omitempty"`
	Tool   string    `json:"tool,omitempty"`
	Output any       `json:"output,omitempty"`
}

// Collector buffers status events in arrival order until the interleaver
// drains them. Push never blocks; the queue is unbounded.
type Collector struct {
	mu    sync.Mutex
	queue []StatusEvent

	started   chan struct{}
	startOnce sync.Once

	failed   chan struct{}
	failOnce sync.Once
	failErr  error
}

func NewCollector() *Collector {
	return &Collector{
		started: make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

// Push enqueues ev. The first agent_start releases WaitStarted.
func (c *Collector) Push(ev StatusEvent) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	if ev.Event == AgentStart {
		c.startOnce.Do(func() { close(c.started) })
	}
}

// Drain removes and returns every queued event, oldest first.
func (c *Collector) Drain() []StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

// Len reports the number of queued events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Started is closed once an agent_start event has been pushed.
func (c *Collector) Started() <-chan struct{} {
	return c.started
}

// Fail records that the run ended with err. A WaitStarted still pending
// returns err instead of waiting for a start that will never come.
func (c *Collector) Fail(err error) {
	if err == nil {
		return
	}
	c.failOnce.Do(func() {
		c.failErr = err
		close(c.failed)
	})
}

// WaitStarted blocks until the run has started. It returns the run error if
// the run failed first, ErrStartTimeout once timeout elapses (zero waits
// forever), or the context error.
func (c *Collector) WaitStarted(ctx context.Context, timeout time.Duration) error {
	select {
	case <-c.started:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-c.started:
		return nil
	case <-c.failed:
		select {
		case <-c.started:
			return nil
		default:
			return c.failErr
		}
	case <-expired:
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
