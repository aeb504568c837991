package app

import (
	"fmt"
	"io"

	"merchantama/internal/interleave"
	"merchantama/internal/session"
)

// Render copies a streaming reply to the terminal: text fragments go to out
// as they arrive, status events to status one per line.
func Render(out, status io.Writer, reply *session.StreamReply) error {
	for f, err := range reply.Fragments() {
		if err != nil {
			return err
		}
		switch f.Kind {
		case interleave.KindText:
			if _, err := io.WriteString(out, f.Text); err != nil {
				return err
			}
		case interleave.KindStatus:
			fmt.Fprintln(status, describe(f.Status))
		}
	}
	return nil
}

func describe(ev interleave.StatusEvent) string {
	switch ev.Event {
	case interleave.AgentStart, interleave.AgentEnd:
		return fmt.Sprintf("[%s] %s", ev.Event, ev.Agent)
	default:
		return fmt.Sprintf("[%s] %s", ev.Event, ev.Tool)
	}
}
