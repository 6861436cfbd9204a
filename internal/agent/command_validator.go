package agent

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

var (
	dockerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)
	aliasRe      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,62}$`)
)

type argValidator func(string) error

type commandSchema struct {
	flags      map[string]argValidator
	positional []argValidator
}

var commandSchemas = map[string]commandSchema{
	"network connect": {
		flags: map[string]argValidator{
			"--alias": validateAlias,
			"--ip":    validateIP,
			"--ip6":   validateIP,
		},
		positional: []argValidator{
			validateDockerName, // network
			validateDockerName, // container
		},
	},
}

// CommandError is returned when a command is not allowed to run on an agent.
type CommandError struct {
	Command []string
	Reason  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", strings.Join(e.Command, " "), e.Reason)
}

func NewCommandError(command []string, format string, args ...any) *CommandError {
	return &CommandError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

func validateDockerName(v string) error {
	if !dockerNameRe.MatchString(v) {
		return fmt.Errorf("invalid docker identifier: %s", v)
	}
	return nil
}

func validateAlias(v string) error {
	if !aliasRe.MatchString(v) {
		return fmt.Errorf("invalid alias: %s", v)
	}
	return nil
}

func validateIP(v string) error {
	if _, err := netip.ParseAddr(v); err != nil {
		return fmt.Errorf("invalid ip address: %s", v)
	}
	return nil
}

// resolveSchema finds the longest known prefix of the command.
func resolveSchema(command []string) (int, commandSchema, bool) {
	for size := len(command); size > 0; size-- {
		if schema, ok := commandSchemas[strings.Join(command[:size], " ")]; ok {
			return size, schema, true
		}
	}
	return 0, commandSchema{}, false
}

// ValidateCommand accepts only the docker CLI commands the orchestrator is allowed to run
// on an agent. Flags must precede positional arguments and every argument is validated.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return NewCommandError(command, "empty command")
	}
	prefix, schema, ok := resolveSchema(command)
	if !ok {
		return NewCommandError(command, "command not allowed")
	}

	var positional []string
	for i := prefix; i < len(command); {
		part := command[i]
		if !strings.HasPrefix(part, "-") {
			positional = append(positional, part)
			i++
			continue
		}
		if len(positional) > 0 {
			return NewCommandError(command, "flag %s must come before positional args", part)
		}
		validate, known := schema.flags[part]
		if !known {
			return NewCommandError(command, "unknown flag: %s", part)
		}
		if i+1 >= len(command) {
			return NewCommandError(command, "flag %s requires value", part)
		}
		if err := validate(command[i+1]); err != nil {
			return NewCommandError(command, "%v", err)
		}
		i += 2
	}

	if len(positional) != len(schema.positional) {
		return NewCommandError(command, "expected %d positional args, got %d", len(schema.positional), len(positional))
	}
	for i, v := range positional {
		if err := schema.positional[i](v); err != nil {
			return NewCommandError(command, "%v", err)
		}
	}
	return nil
}
