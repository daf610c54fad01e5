package mission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type CommandKind string

const (
	CommandStart              CommandKind = "start"
	CommandStop               CommandKind = "stop"
	CommandReset              CommandKind = "reset"
	CommandSetMissionDuration CommandKind = "set_mission_duration"
	CommandSetOutputFlow      CommandKind = "set_output_flow"
	CommandRestock            CommandKind = "restock"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrOutOfRange     = errors.New("value out of range")
	ErrFlowLocked     = errors.New("output flow is not adjustable on this line")
)

// Command is an operator request applied between two ticks.
type Command struct {
	Kind   CommandKind `json:"command"`
	Value  float64     `json:"value,omitempty"`
	Levels []float64   `json:"levels,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSetMissionDuration, CommandSetOutputFlow:
		return fmt.Sprintf("%s %g", c.Kind, c.Value)
	case CommandRestock:
		return fmt.Sprintf("%s %v", c.Kind, c.Levels)
	default:
		return string(c.Kind)
	}
}

// ParseCommand accepts either a JSON object
// ({"command":"set_output_flow","value":40}) or a plain text line
// ("set_output_flow 40", "restock 2000 2000 2000", "start").
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command

	if json.Valid(payload) {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return Command{}, fmt.Errorf("failed to decode command: %w", err)
		}
	} else {
		fields := strings.Fields(string(payload))
		if len(fields) == 0 {
			return Command{}, fmt.Errorf("%w: empty payload", ErrUnknownCommand)
		}
		cmd.Kind = CommandKind(strings.ToLower(fields[0]))
		args := make([]float64, 0, len(fields)-1)
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return Command{}, fmt.Errorf("invalid argument %q for %s: %w", f, cmd.Kind, err)
			}
			args = append(args, v)
		}
		switch cmd.Kind {
		case CommandRestock:
			cmd.Levels = args
		default:
			if len(args) > 0 {
				cmd.Value = args[0]
			}
		}
	}

	return cmd, cmd.validate()
}

func (c Command) validate() error {
	switch c.Kind {
	case CommandStart, CommandStop, CommandReset:
		return nil
	case CommandSetMissionDuration, CommandSetOutputFlow:
		if c.Value <= 0 {
			return fmt.Errorf("%s requires a positive value", c.Kind)
		}
		return nil
	case CommandRestock:
		if len(c.Levels) != 3 {
			return fmt.Errorf("%s requires 3 quantities, got %d", c.Kind, len(c.Levels))
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
}
