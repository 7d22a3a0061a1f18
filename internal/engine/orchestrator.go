package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/config"
	pcontext "github.com/censor-ci/censor/pkg/context"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/metrics"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/types"
)

// Job is one build handed to the orchestrator
type Job struct {
	Record   *build.Record
	Plan     *config.Plan
	Builder  *plugins.Builder
	Previous *build.Record

	// Log, when set, is stored as the build log once the build finishes
	Log *BuildLog
}

// BuildLog collects the log lines of a single build
type BuildLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer
func (l *BuildLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// String returns everything written so far
func (l *BuildLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Orchestrator runs the stages of a build in canonical order and decides
// its outcome
type Orchestrator struct {
	registry *plugins.Registry
	store    store.Store
	recorder metrics.Recorder
	logger   logger.Logger
	now      func() time.Time
}

// OrchestratorOption customises an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator resolving plugins from registry
// and persisting through st
func NewOrchestrator(registry *plugins.Registry, st store.Store, log logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	o := &Orchestrator{
		registry: registry,
		store:    st,
		recorder: metrics.NoopRecorder{},
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Begin moves a pending build to running and persists it
func (o *Orchestrator) Begin(ctx context.Context, rec *build.Record) error {
	if err := rec.Start(o.now()); err != nil {
		return err
	}
	if err := o.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist build start: %w", err)
	}
	return nil
}

// Run executes every stage of job and persists the final record. A
// pending record is started first. Plugin failures decide the returned
// status and are never returned as errors; persistence failures and
// schema violations are.
func (o *Orchestrator) Run(ctx context.Context, job Job) (types.Status, error) {
	rec := job.Record
	ctx = pcontext.ForBuild(ctx, rec.ID())

	switch rec.Status() {
	case types.StatusPending:
		if err := o.Begin(ctx, rec); err != nil {
			return rec.Status(), err
		}
	case types.StatusSuccess, types.StatusFailed:
		return rec.Status(), fmt.Errorf("%w: build %d already finished", build.ErrInvalidTransition, rec.ID())
	}
	log := logger.WithContext(ctx, o.jobLogger(job))
	log.Info("Build started",
		logger.WithField("project", rec.ProjectID()),
		logger.WithField("branch", rec.Branch()),
		logger.WithField("commit", rec.CommitID()))

	success, fatal := o.runPipeline(ctx, job)
	if fatal == nil {
		fatal = o.runHooks(ctx, job, success)
	}
	if fatal != nil {
		log.Error("Build aborted", logger.WithField("error", fatal))
		success = false
	}

	status, err := o.finish(ctx, job, success)
	if err != nil {
		return status, err
	}
	return status, fatal
}

// Abort fails a build that could not reach its stages, e.g. because the
// checkout or the configuration failed
func (o *Orchestrator) Abort(ctx context.Context, job Job, cause error) (types.Status, error) {
	ctx = pcontext.ForBuild(ctx, job.Record.ID())
	logger.WithContext(ctx, o.jobLogger(job)).Error("Build failed before its stages ran",
		logger.WithField("error", cause))
	return o.finish(ctx, job, false)
}

func (o *Orchestrator) finish(ctx context.Context, job Job, success bool) (types.Status, error) {
	rec := job.Record
	log := logger.WithContext(ctx, o.jobLogger(job))

	outcome := types.StatusFailed
	if success {
		outcome = types.StatusSuccess
	}

	rec.ComputeNewErrors(job.Previous)
	if err := rec.Finish(outcome, o.now()); err != nil {
		return rec.Status(), err
	}

	fields := []logger.Field{
		logger.WithField("errors", rec.ErrorsTotal()),
		logger.WithField("new_errors", rec.ErrorsNew()),
		logger.WithField("duration", rec.Duration().Round(time.Millisecond)),
	}
	if success {
		log.Success("Build succeeded", fields...)
	} else {
		log.Error("Build failed", fields...)
	}

	if job.Log != nil {
		captured := job.Log.String()
		rec.SetLog(&captured)
	}

	o.recorder.ObserveBuildDuration(rec.Duration())
	o.recorder.IncBuildOutcome(outcome.String())

	// The result is stored even when the caller's context was cancelled
	if err := o.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		return outcome, fmt.Errorf("failed to persist build result: %w", err)
	}
	return outcome, nil
}

// runPipeline runs Setup, Test and Deploy. A failed stage stops the
// pipeline, so Deploy only runs after Setup and Test succeeded.
func (o *Orchestrator) runPipeline(ctx context.Context, job Job) (bool, error) {
	for _, stage := range []types.Stage{types.StageSetup, types.StageTest, types.StageDeploy} {
		if err := ctx.Err(); err != nil {
			logger.WithContext(ctx, o.jobLogger(job)).Warn("Build cancelled",
				logger.WithField("stage", stage), logger.WithField("error", err))
			return false, nil
		}
		ok, err := o.runStage(ctx, stage, job)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// runHooks runs the exit-hook stages. Their results never change the outcome.
func (o *Orchestrator) runHooks(ctx context.Context, job Job, success bool) error {
	stages := []types.Stage{types.StageComplete}
	prev := job.Previous
	if success {
		stages = append(stages, types.StageSuccess)
		if prev != nil && prev.Status() == types.StatusFailed {
			stages = append(stages, types.StageFixed)
		}
	} else {
		stages = append(stages, types.StageFailure)
		if prev != nil && prev.IsSuccessful() {
			stages = append(stages, types.StageBroken)
		}
	}

	for _, stage := range stages {
		if _, err := o.runStage(ctx, stage, job); err != nil {
			return err
		}
	}
	return nil
}

// runStage runs the plugins of one stage in declared order. Fatal stages
// stop at the first failure; the others run every plugin.
func (o *Orchestrator) runStage(ctx context.Context, stage types.Stage, job Job) (bool, error) {
	entries := job.Plan.Stage(stage)
	if len(entries) == 0 {
		o.recorder.IncStageResult(string(stage), metrics.ResultSkipped)
		return true, nil
	}

	ctx = pcontext.WithStage(ctx, string(stage))
	log := logger.WithContext(ctx, o.jobLogger(job)).WithScope(string(stage))
	log.Info(fmt.Sprintf("Running %s stage", stage), logger.WithField("plugins", len(entries)))

	start := o.now()
	ok := true
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			log.Warn("Stage cancelled", logger.WithField("error", err))
			ok = false
			break
		}

		passed, err := o.runPlugin(ctx, stage, entry, job)
		if err != nil {
			ok = false
			o.recordStage(stage, start, ok)
			return false, err
		}
		if !passed {
			ok = false
			if stage.IsFatal() {
				log.Error("Stage failed, skipping its remaining plugins", logger.WithField("plugin", entry.Plugin))
				break
			}
		}
	}

	o.recordStage(stage, start, ok)
	if ok {
		log.Success(fmt.Sprintf("%s stage passed", stage))
	} else {
		log.Error(fmt.Sprintf("%s stage failed", stage))
	}
	return ok, nil
}

func (o *Orchestrator) recordStage(stage types.Stage, start time.Time, ok bool) {
	o.recorder.ObserveStageDuration(string(stage), o.now().Sub(start))
	result := metrics.ResultSuccess
	if !ok {
		result = metrics.ResultFailed
	}
	o.recorder.IncStageResult(string(stage), result)
}

// runPlugin constructs and executes one plugin. Construction errors,
// execution errors, a false result and panics all count as a failed
// plugin. Only schema violations on the build record are returned.
func (o *Orchestrator) runPlugin(ctx context.Context, stage types.Stage, entry types.PluginEntry, job Job) (ok bool, fatal error) {
	ctx = pcontext.WithPlugin(ctx, entry.Plugin)
	log := logger.WithContext(ctx, o.jobLogger(job)).WithScope(entry.Plugin)

	desc, err := o.registry.Lookup(entry.Plugin)
	if err != nil {
		log.Error("Plugin lookup failed", logger.WithField("error", err))
		return false, nil
	}
	if !desc.AllowsStage(stage, job.Record) {
		log.Info("Plugin does not run in this stage, skipping")
		return true, nil
	}

	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Plugin panicked",
				logger.WithField("panic", r),
				logger.WithField("stack_trace", string(debug.Stack())))
			ok, fatal = false, nil
		}
		o.recorder.ObservePluginDuration(entry.Plugin, o.now().Sub(start), ok)
	}()

	p, err := desc.New(job.Builder, job.Record, plugins.Options(entry.Options))
	if err != nil {
		log.Error("Plugin could not be configured", logger.WithField("error", err))
		return false, schemaError(err)
	}

	log.Info("Running plugin")
	passed, err := p.Execute(ctx)
	switch {
	case err != nil:
		log.Error("Plugin failed", logger.WithField("error", err))
		return false, schemaError(err)
	case !passed:
		log.Error("Plugin failed")
		return false, nil
	}
	log.Success("Plugin passed")
	return true, nil
}

func (o *Orchestrator) jobLogger(job Job) logger.Logger {
	if job.Builder != nil && job.Builder.Logger != nil {
		return job.Builder.Logger
	}
	return o.logger
}

// schemaError passes through build record schema violations, which are
// programming errors and must not be converted into a failed plugin
func schemaError(err error) error {
	if errors.Is(err, build.ErrInvalidField) {
		return err
	}
	return nil
}
