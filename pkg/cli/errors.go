package cli

import (
	"errors"
	"fmt"

	"mercator-hq/custodian/pkg/compliance"
)

// Exit codes returned by the custodian binary.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitUsage             = 2
	ExitNotFound          = 3
	ExitInvalidTransition = 4
	ExitConflict          = 5
)

// ConfigError represents an error in configuration or flags.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps the failure of one subcommand.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError wraps err for command. A nil err stays nil.
func NewCommandError(command string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr), compliance.IsValidation(err):
		return ExitUsage
	case compliance.IsNotFound(err):
		return ExitNotFound
	case compliance.IsInvalidTransition(err):
		return ExitInvalidTransition
	case compliance.IsConflict(err):
		return ExitConflict
	}
	return ExitFailure
}
