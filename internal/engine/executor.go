package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/config"
	pcontext "github.com/censor-ci/censor/pkg/context"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/metrics"
	"github.com/censor-ci/censor/pkg/notifier"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/types"
	"github.com/censor-ci/censor/pkg/workspace"
)

// ProjectLookup resolves project ids to projects
type ProjectLookup interface {
	Project(id int64) (types.Project, bool)
}

// Dependencies are the collaborators of an Executor
type Dependencies struct {
	Store     store.Backend
	Registry  *plugins.Registry
	Workspace *workspace.Manager
	Notifier  *notifier.BuildNotifier
	Recorder  metrics.Recorder
	Projects  ProjectLookup
}

// ExecutorOptions tune how builds are executed
type ExecutorOptions struct {
	LogLevel       string
	CommandTimeout time.Duration
	KeepWorkspace  bool
	Debug          bool

	// Output receives a copy of every build log line
	Output io.Writer
}

// Executor runs a stored build end to end: checkout, configuration,
// stages and cleanup
type Executor struct {
	deps         Dependencies
	opts         ExecutorOptions
	orchestrator *Orchestrator
	logger       logger.Logger
	mu           sync.RWMutex
}

// NewExecutor creates an executor. Store, Registry, Workspace and
// Projects are required.
func NewExecutor(deps Dependencies, opts ExecutorOptions, log logger.Logger) *Executor {
	if deps.Store == nil {
		panic("Store dependency is required")
	}
	if deps.Registry == nil {
		panic("Registry dependency is required")
	}
	if deps.Workspace == nil {
		panic("Workspace dependency is required")
	}
	if deps.Projects == nil {
		panic("Projects dependency is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}

	return &Executor{
		deps:         deps,
		opts:         opts,
		orchestrator: NewOrchestrator(deps.Registry, deps.Store, log, WithRecorder(deps.Recorder)),
		logger:       log,
	}
}

// SetProjects swaps the project list, used when settings are reloaded
func (e *Executor) SetProjects(projects ProjectLookup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deps.Projects = projects
}

func (e *Executor) project(id int64) (types.Project, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Projects.Project(id)
}

// Execute runs the build with the given id and returns its final status
func (e *Executor) Execute(ctx context.Context, buildID int64) (types.Status, error) {
	ctx = pcontext.ForBuild(ctx, buildID)

	rec, err := e.deps.Store.Load(ctx, buildID)
	if err != nil {
		return types.StatusPending, fmt.Errorf("failed to load build %d: %w", buildID, err)
	}

	capture := &BuildLog{}
	var out io.Writer = capture
	if e.opts.Output != nil {
		out = io.MultiWriter(capture, e.opts.Output)
	}
	buildLog := logger.CreateLoggerWithOutput("", e.opts.LogLevel, out)
	job := Job{
		Record:  rec,
		Builder: &plugins.Builder{Logger: buildLog, Debug: e.opts.Debug},
		Log:     capture,
	}

	if err := e.orchestrator.Begin(ctx, rec); err != nil {
		return rec.Status(), err
	}

	project, ok := e.project(rec.ProjectID())
	if !ok {
		return e.abort(ctx, job, fmt.Errorf("project %d is not configured", rec.ProjectID()))
	}
	job.Builder.Project = project

	checkoutStart := time.Now()
	path, err := e.deps.Workspace.Checkout(ctx, project, rec)
	e.deps.Recorder.ObserveCheckoutDuration(time.Since(checkoutStart), err == nil)
	if err != nil {
		return e.abort(ctx, job, err)
	}
	if !e.opts.KeepWorkspace {
		defer func() {
			if err := e.deps.Workspace.Remove(path); err != nil {
				e.logger.Warn("Failed to remove workspace", logger.WithField("error", err))
			}
		}()
	}
	buildLog.Info("Checked out project",
		logger.WithField("project", project.Title),
		logger.WithField("commit", rec.CommitID()),
		logger.WithField("path", path))

	cfg, err := config.NewManager().LoadProjectConfig(path)
	if err != nil {
		return e.abort(ctx, job, err)
	}
	plan, err := config.NewResolver(e.deps.Registry).Resolve(cfg, path)
	if err != nil {
		return e.abort(ctx, job, err)
	}

	previous, err := e.deps.Store.Previous(ctx, rec)
	if err != nil {
		return e.abort(ctx, job, fmt.Errorf("failed to load previous build: %w", err))
	}

	settings := plan.Settings()
	timeout := e.opts.CommandTimeout
	if settings.CommandTimeout > 0 {
		timeout = time.Duration(settings.CommandTimeout) * time.Second
	}

	job.Plan = plan
	job.Previous = previous
	job.Builder.BuildPath = path
	job.Builder.Runner = process.NewRunner(buildLog, process.WithTimeout(timeout))
	job.Builder.Ignore = settings.Ignore
	if e.deps.Notifier != nil {
		job.Builder.Notifier = e.deps.Notifier
	}

	status, err := e.orchestrator.Run(ctx, job)
	// a pipeline with desktop_notify hooks sends its own notifications
	if !plan.Uses(plugins.DesktopNotifyName) {
		e.notify(rec, status)
	}
	return status, err
}

func (e *Executor) abort(ctx context.Context, job Job, cause error) (types.Status, error) {
	status, err := e.orchestrator.Abort(ctx, job, cause)
	e.notify(job.Record, status)
	return status, err
}

func (e *Executor) notify(rec *build.Record, status types.Status) {
	n := e.deps.Notifier
	if n == nil || !n.Enabled() || !status.IsTerminal() {
		return
	}

	title := fmt.Sprintf("project %d", rec.ProjectID())
	if p, ok := e.project(rec.ProjectID()); ok && p.Title != "" {
		title = p.Title
	}

	var err error
	if status == types.StatusSuccess {
		err = n.NotifyBuildSuccess(title, rec.ID(), rec.Duration())
	} else {
		err = n.NotifyBuildFailure(title, rec.ID(), rec.ErrorsTotal())
	}
	if err != nil {
		e.logger.Warn("Failed to send build notification", logger.WithField("error", err))
	}
}
