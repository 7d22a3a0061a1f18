package plugins

import (
	"errors"
	"fmt"
)

// Sentinel errors for plugin configuration and execution.
var (
	// ErrConfiguration matches every ConfigurationError
	ErrConfiguration = errors.New("plugin configuration error")

	// ErrToolExecution matches every ToolExecutionError
	ErrToolExecution = errors.New("tool execution error")

	// ErrBinaryNotFound indicates none of the candidate executables exist
	ErrBinaryNotFound = errors.New("executable not found")
)

// ConfigurationError reports an unusable plugin configuration: an unknown
// plugin name, an option of the wrong shape or a missing executable.
type ConfigurationError struct {
	Plugin  string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Plugin == "" {
		return msg
	}
	return fmt.Sprintf("plugin %s: %s", e.Plugin, msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ToolExecutionError reports tool output the plugin could not interpret
type ToolExecutionError struct {
	Plugin string
	Output string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Plugin, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrToolExecution
func (e *ToolExecutionError) Is(target error) bool {
	return target == ErrToolExecution
}

func configError(plugin, format string, args ...interface{}) error {
	return &ConfigurationError{Plugin: plugin, Message: fmt.Sprintf(format, args...)}
}
