// Package plugins defines the plugin contract, the registry of available
// plugins and the built-in analysis, test and notification plugins.
package plugins

import (
	"context"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"
)

// Plugin is one configured unit of work within a stage. Execute reports
// whether the plugin succeeded; an error also counts as a failure.
type Plugin interface {
	Execute(ctx context.Context) (bool, error)
}

// Factory constructs a plugin from its options. Factories validate options
// and resolve executables but perform no side effects.
type Factory func(b *Builder, rec *build.Record, opts Options) (Plugin, error)

// Descriptor describes a registered plugin type
type Descriptor struct {
	Name string
	New  Factory

	// CanExecuteOnStage reports whether the plugin runs in stage.
	// Nil allows every stage.
	CanExecuteOnStage func(stage types.Stage, rec *build.Record) bool

	// ZeroConfig reports whether the plugin can be selected automatically
	// for the checkout at buildPath. Nil means never.
	ZeroConfig func(buildPath string) bool
}

// AllowsStage applies CanExecuteOnStage with its nil default
func (d Descriptor) AllowsStage(stage types.Stage, rec *build.Record) bool {
	if d.CanExecuteOnStage == nil {
		return true
	}
	return d.CanExecuteOnStage(stage, rec)
}

// Notifier delivers user-facing notifications
type Notifier interface {
	Notify(title, message string) error
}

func onlyStage(allowed ...types.Stage) func(types.Stage, *build.Record) bool {
	return func(stage types.Stage, _ *build.Record) bool {
		for _, s := range allowed {
			if s == stage {
				return true
			}
		}
		return false
	}
}
