package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed command line.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"o":     "open",
	"join":  "open",
	"d":     "dm",
	"msg":   "dm",
	"leave": "close",
	"r":     "rooms",
	"h":     "help",
	"q":     "quit",
	"q!":    "quit",
	"exit":  "quit",
}

// commandArgs reports whether each known command takes an argument.
var commandArgs = map[string]bool{
	"open":  true,
	"dm":    true,
	"close": false,
	"rooms": false,
	"help":  false,
	"quit":  false,
}

// ParseCommand parses a command line without its leading ':' and
// resolves aliases. Unknown commands and missing arguments are errors.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(input, " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if alias, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = alias
	}
	needsArg, ok := commandArgs[cmd.Name]
	switch {
	case cmd.Name == "":
		return Command{}, fmt.Errorf("empty command")
	case !ok:
		return Command{}, fmt.Errorf("unknown command: %s", cmd.Name)
	case needsArg && cmd.Args == "":
		return Command{}, fmt.Errorf("usage: :%s <%s>", cmd.Name, argName(cmd.Name))
	}
	return cmd, nil
}

func argName(cmd string) string {
	if cmd == "dm" {
		return "user"
	}
	return "room"
}
