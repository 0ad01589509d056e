package control

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Verb names a control command.
type Verb string

const (
	VerbSend   Verb = "send"
	VerbStatus Verb = "status"
	VerbStats  Verb = "stats"
	VerbHelp   Verb = "help"
	VerbQuit   Verb = "quit"
)

// Command is one parsed control line.
type Command struct {
	Verb    Verb
	Channel string // send only
	Cmd     uint16
	Type    uint8
	Data    []byte
	Seq     uint8
}

const usage = `commands:
  send <fmt|rfs> <cmd> <type> <hexdata|-> <seq>
  status
  stats
  help
  quit`

// ParseCommand parses one control line.  Numbers accept decimal or
// 0x-prefixed hex; "-" stands for an empty payload.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	verb := Verb(strings.ToLower(fields[0]))
	switch verb {
	case VerbStatus, VerbStats, VerbHelp, VerbQuit:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", verb)
		}
		return Command{Verb: verb}, nil
	case VerbSend:
		return parseSend(fields[1:])
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseSend(args []string) (Command, error) {
	if len(args) != 5 {
		return Command{}, fmt.Errorf("send: expected 5 arguments, got %d", len(args))
	}
	c := Command{Verb: VerbSend, Channel: strings.ToLower(args[0])}

	cmd, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return Command{}, fmt.Errorf("send: command %q: %w", args[1], err)
	}
	typ, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		return Command{}, fmt.Errorf("send: type %q: %w", args[2], err)
	}
	if args[3] != "-" {
		if c.Data, err = hex.DecodeString(args[3]); err != nil {
			return Command{}, fmt.Errorf("send: data: %w", err)
		}
	}
	seq, err := strconv.ParseUint(args[4], 0, 8)
	if err != nil {
		return Command{}, fmt.Errorf("send: seq %q: %w", args[4], err)
	}

	c.Cmd, c.Type, c.Seq = uint16(cmd), uint8(typ), uint8(seq)
	return c, nil
}
