package engine

import (
	"fmt"

	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/metrics"
	"github.com/censor-ci/censor/pkg/notifier"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/workspace"
)

// DependencyFactory creates the default collaborators from settings so
// constructors never fall back to hidden concrete types.
type DependencyFactory struct {
	settings *config.Settings
	logger   logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(settings *config.Settings, log logger.Logger) *DependencyFactory {
	if log == nil {
		log = logger.Nop()
	}
	return &DependencyFactory{
		settings: settings,
		logger:   log,
	}
}

// CreateDefaults creates every dependency described by the settings. The
// caller owns the returned store and must close it.
func (f *DependencyFactory) CreateDefaults() (Dependencies, error) {
	st, err := f.createStore()
	if err != nil {
		return Dependencies{}, err
	}
	return Dependencies{
		Store:     st,
		Registry:  plugins.DefaultRegistry(),
		Workspace: f.createWorkspace(),
		Notifier:  f.createNotifier(),
		Recorder:  metrics.NoopRecorder{},
		Projects:  f.settings,
	}, nil
}

// CreateWithOverrides creates the defaults and replaces every non-nil
// field of overrides. A store is only opened when none is given.
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) (Dependencies, error) {
	var deps Dependencies
	if overrides.Store != nil {
		deps = Dependencies{
			Store:     overrides.Store,
			Registry:  plugins.DefaultRegistry(),
			Workspace: f.createWorkspace(),
			Notifier:  f.createNotifier(),
			Recorder:  metrics.NoopRecorder{},
			Projects:  f.settings,
		}
	} else {
		var err error
		if deps, err = f.CreateDefaults(); err != nil {
			return Dependencies{}, err
		}
	}

	if overrides.Registry != nil {
		deps.Registry = overrides.Registry
	}
	if overrides.Workspace != nil {
		deps.Workspace = overrides.Workspace
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	if overrides.Recorder != nil {
		deps.Recorder = overrides.Recorder
	}
	if overrides.Projects != nil {
		deps.Projects = overrides.Projects
	}
	return deps, nil
}

// ExecutorOptions derives execution options from the settings
func (f *DependencyFactory) ExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		LogLevel:       f.settings.Log.Level,
		CommandTimeout: f.settings.Command.Timeout,
		KeepWorkspace:  f.settings.Workspace.Keep,
	}
}

func (f *DependencyFactory) createStore() (store.Backend, error) {
	st, err := store.Open(f.settings.Store.Driver, f.settings.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", f.settings.Store.Driver, err)
	}
	return st, nil
}

func (f *DependencyFactory) createWorkspace() *workspace.Manager {
	return workspace.NewManager(f.settings.Workspace.Dir, f.logger, workspace.WithDepth(f.settings.Workspace.Depth))
}

func (f *DependencyFactory) createNotifier() *notifier.BuildNotifier {
	return notifier.New(notifier.Config{
		Enabled: f.settings.Notifications.Enabled,
		Sound:   f.settings.Notifications.Sound,
	}, f.logger)
}
