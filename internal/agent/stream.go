package agent

import (
	"context"
	"io"
)

// Stream is the live output of RunStream. Next returns io.EOF once the run
// completed; Result is valid after that.
type Stream struct {
	chunks chan Chunk
	done   chan struct{}
	result *Result
	err    error
}

// StartStream runs produce on its own goroutine and streams the chunks it
// emits. emit blocks until the consumer takes the chunk or ctx is done.
func StartStream(ctx context.Context, produce func(emit func(Chunk) error) (*Result, error)) *Stream {
	s := &Stream{
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
	}
	go func() {
		res, err := produce(func(c Chunk) error { return s.send(ctx, c) })
		s.finish(res, err)
	}()
	return s
}

func (s *Stream) send(ctx context.Context, c Chunk) error {
	select {
	case s.chunks <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) finish(res *Result, err error) {
	s.result, s.err = res, err
	close(s.done)
	close(s.chunks)
}

// Next blocks until the next chunk is produced.
func (s *Stream) Next(ctx context.Context) (Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return Chunk{}, s.err
			}
			return Chunk{}, io.EOF
		}
		return c, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// Done is closed when the run has finished, successfully or not.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the run error. Only meaningful after Done is closed.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Result returns the final result once the run completed successfully.
func (s *Stream) Result() (*Result, error) {
	select {
	case <-s.done:
		return s.result, s.err
	default:
		return nil, ErrRunning
	}
}
