package interleave

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"sync/atomic"
)

// ErrConsumed is yielded when a sequence returned by Interleave is ranged
// over a second time.
var ErrConsumed = errors.New("interleaved sequence already consumed")

// Content is one item pulled from a content source.
type Content interface {
	TextDelta() (string, bool)
}

// Source yields content items until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Content, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Content, error)

func (f SourceFunc) Next(ctx context.Context) (Content, error) { return f(ctx) }

// Kind tells a text delta from a status record.
type Kind int

const (
	// KindText fragments carry a model text delta in Text.
	KindText Kind = iota
	// KindStatus fragments carry a lifecycle event in Status.
	KindStatus
)

// Fragment is one piece of merged output: a raw text delta or a status
// record.
type Fragment struct {
	Kind   Kind
	Text   string
	Status StatusEvent
}

type statusLine struct {
	Type string `json:"type"`
	StatusEvent
}

// Bytes renders the fragment for the wire. Text is written verbatim; a
// status is a single-line JSON object tagged "type":"status" and terminated
// by a newline.
func (f Fragment) Bytes() ([]byte, error) {
	if f.Kind == KindText {
		return []byte(f.Text), nil
	}
	b, err := json.Marshal(statusLine{Type: "status", StatusEvent: f.Status})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Interleave merges the collector's status events with the source's text
// deltas. Before every pull it flushes all queued status events in order,
// then emits the pulled item's text delta if it has one. When the source is
// exhausted the queue is flushed one final time. A source error is yielded
// after that final flush and ends the sequence.
//
// The sequence can be ranged over once; breaking out stops further pulls.
func Interleave(ctx context.Context, c *Collector, src Source) iter.Seq2[Fragment, error] {
	var used atomic.Bool

	return func(yield func(Fragment, error) bool) {
		if used.Swap(true) {
			yield(Fragment{}, ErrConsumed)
			return
		}

		flush := func() bool {
			for _, ev := range c.Drain() {
				if !yield(Fragment{Kind: KindStatus, Status: ev}, nil) {
					return false
				}
			}
			return true
		}

		for {
			if !flush() {
				return
			}

			item, err := src.Next(ctx)
			if err != nil {
				if !flush() {
					return
				}
				if !errors.Is(err, io.EOF) {
					yield(Fragment{}, err)
				}
				return
			}

			if text, ok := item.TextDelta(); ok {
				if !yield(Fragment{Kind: KindText, Text: text}, nil) {
					return
				}
			}
		}
	}
}
