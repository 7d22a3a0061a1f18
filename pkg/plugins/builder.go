package plugins

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/types"
)

// Builder is the execution context shared by the plugins of one build
type Builder struct {
	BuildPath string
	Project   types.Project
	Runner    process.CommandRunner
	Logger    logger.Logger
	Notifier  Notifier
	Debug     bool
	Ignore    []string
}

type outputToggler interface {
	LogOutput() bool
	SetLogOutput(enabled bool)
}

// Run executes command in the build path
func (b *Builder) Run(ctx context.Context, command string) (process.Result, error) {
	return b.Runner.Run(ctx, command, b.BuildPath)
}

// RunQuiet executes command without streaming its output into the build
// log, unless the build runs in debug mode
func (b *Builder) RunQuiet(ctx context.Context, command string) (process.Result, error) {
	if t, ok := b.Runner.(outputToggler); ok && !b.Debug {
		previous := t.LogOutput()
		t.SetLogOutput(false)
		defer t.SetLogOutput(previous)
	}
	return b.Run(ctx, command)
}

// FindBinary returns the path of the first candidate found in the build
// path's vendor/bin or bin directory, or on $PATH
func (b *Builder) FindBinary(candidates ...string) (string, error) {
	for _, name := range candidates {
		for _, dir := range []string{"vendor/bin", "bin"} {
			p := filepath.Join(b.BuildPath, dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %v", ErrBinaryNotFound, candidates)
}

// ResolvePath resolves p against the build path unless it is absolute
func (b *Builder) ResolvePath(p string) string {
	if p == "" {
		return b.BuildPath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.BuildPath, p)
}

// Log returns the builder logger scoped to a plugin
func (b *Builder) Log(plugin string) logger.Logger {
	if b.Logger == nil {
		return logger.Nop()
	}
	return b.Logger.WithScope(plugin)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
