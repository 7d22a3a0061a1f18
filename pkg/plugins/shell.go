package plugins

import (
	"context"
	"fmt"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
)

// ShellName is the registry name of the shell plugin
const ShellName = "shell"

// Shell runs arbitrary commands in the build path, in order
type Shell struct {
	builder  *Builder
	log      logger.Logger
	commands []string
}

// ShellDescriptor describes the shell plugin. It may run in any stage.
func ShellDescriptor() Descriptor {
	return Descriptor{
		Name: ShellName,
		New:  NewShell,
	}
}

// NewShell creates a shell plugin
func NewShell(b *Builder, _ *build.Record, opts Options) (Plugin, error) {
	commands, err := opts.Strings("commands")
	if err != nil {
		return nil, &ConfigurationError{Plugin: ShellName, Err: err}
	}
	if len(commands) == 0 {
		return nil, configError(ShellName, `the "commands" option is required`)
	}
	return &Shell{
		builder:  b,
		log:      b.Log(ShellName),
		commands: commands,
	}, nil
}

// Execute runs each command and stops at the first failure
func (s *Shell) Execute(ctx context.Context) (bool, error) {
	for _, command := range s.commands {
		result, err := s.builder.Run(ctx, command)
		if err != nil {
			return false, err
		}
		if !result.Success() {
			s.log.Error(fmt.Sprintf("Command failed with exit code %d", result.ExitCode),
				logger.WithField("command", command))
			return false, nil
		}
	}
	return true, nil
}
