package control

import (
	"context"
	"fmt"
)

// EventRecorder receives applied control commands for the playback
// journal. Implementations must be safe for concurrent use.
type EventRecorder interface {
	RecordEvent(kind string, value float64, detail string) error
}

// Subscriber is the subset of the mux the dispatcher consumes.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
}

// Apply parses one control line and folds it into the state. Malformed
// lines are dropped without comment so stray input cannot kill playback.
// Applied commands are journaled through rec when one is provided. The
// returned command is zero-valued when the line was dropped.
func Apply(state *State, rec EventRecorder, line string) (Command, bool) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return Command{}, false
	}

	state.Apply(cmd)

	if rec != nil {
		detail := ""
		if cmd.Kind == KindBeat && cmd.HasEpoch {
			detail = fmt.Sprintf("epoch=%.3f", cmd.Epoch)
		}
		// Journal failures must not interrupt the control path.
		_ = rec.RecordEvent(cmd.Kind, cmd.Position, detail)
	}
	return cmd, true
}

// Dispatch subscribes to the mux and applies every line to the state
// until the context is cancelled or the subscription closes. Each
// applied command is acknowledged back over the port so an interactive
// operator sees what took effect.
func Dispatch(ctx context.Context, mux Subscriber, state *State, rec EventRecorder) {
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			cmd, applied := Apply(state, rec, line)
			if !applied {
				continue
			}
			ack := "ok " + cmd.Kind
			if cmd.Kind == KindSeek || cmd.Kind == KindBeat {
				ack = fmt.Sprintf("ok %s %.3f", cmd.Kind, cmd.Position)
			}
			// The ack is feedback only; a write-closed port is fine.
			_ = mux.SendCommand(ack)
		}
	}
}
