package control

import (
	"fmt"
	"strconv"
	"strings"
)

// Command kinds, also used as journal event names.
const (
	KindSeek   = "seek"
	KindPause  = "pause"
	KindResume = "resume"
	KindStop   = "stop"
	KindBeat   = "beat"
)

// Command is one parsed control line.
type Command struct {
	Kind     string
	Position float64 // SEEK target or BEAT position, in seconds
	Epoch    float64 // BEAT reference epoch, unix seconds
	HasEpoch bool
}

// ParseCommand parses one line of the control grammar:
//
//	SEEK <seconds>
//	PAUSE
//	RESUME
//	STOP
//	BEAT <position> [<epoch>]
//
// Verbs are case-insensitive. Extra tokens after a bare verb are
// tolerated; a missing or unparsable number is an error, which callers
// treat as a line to ignore.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	verb := strings.ToUpper(fields[0])
	switch verb {
	case "SEEK":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("SEEK requires a position")
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("bad SEEK position %q: %w", fields[1], err)
		}
		return Command{Kind: KindSeek, Position: pos}, nil

	case "PAUSE":
		return Command{Kind: KindPause}, nil

	case "RESUME":
		return Command{Kind: KindResume}, nil

	case "STOP":
		return Command{Kind: KindStop}, nil

	case "BEAT":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("BEAT requires a position")
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("bad BEAT position %q: %w", fields[1], err)
		}
		cmd := Command{Kind: KindBeat, Position: pos}
		if len(fields) >= 3 {
			epoch, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return Command{}, fmt.Errorf("bad BEAT epoch %q: %w", fields[2], err)
			}
			cmd.Epoch = epoch
			cmd.HasEpoch = true
		}
		return cmd, nil

	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}
