// Package metrics records build, stage and plugin observations.
//
// Components receive a Recorder through their dependencies; NoopRecorder
// is the default so callers never check for nil. PrometheusRecorder is
// wired in by the worker when a metrics address is configured.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for builds, stages and plugins
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObservePluginDuration(plugin string, d time.Duration, success bool)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string) // outcome: success|failed
	ObserveCheckoutDuration(d time.Duration, success bool)
	SetRunningBuilds(n int)
}

// NoopRecorder is a Recorder that does nothing
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)        {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                {}
func (NoopRecorder) ObservePluginDuration(string, time.Duration, bool) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)                {}
func (NoopRecorder) IncBuildOutcome(string)                            {}
func (NoopRecorder) ObserveCheckoutDuration(time.Duration, bool)       {}
func (NoopRecorder) SetRunningBuilds(int)                              {}
