// Package types provides core types and configurations for censor
package types

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a build. Values are stored as
// small integers and must never change.
type Status int

const (
	StatusPending Status = 0
	StatusRunning Status = 1
	StatusSuccess Status = 2
	StatusFailed  Status = 3
)

// String returns the lowercase status name
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsTerminal reports whether the status ends a build
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is a known status code
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusFailed
}

// Source identifies what triggered a build
type Source int

const (
	SourceUnknown                    Source = 0
	SourceManual                     Source = 1
	SourceManualConsumer             Source = 2
	SourcePeriodical                 Source = 3
	SourceWebhookPush                Source = 4
	SourceWebhookPullRequestCreated  Source = 5
	SourceWebhookPullRequestUpdated  Source = 6
	SourceWebhookPullRequestApproved Source = 7
	SourceWebhookPullRequestMerged   Source = 8
)

var sourceNames = map[Source]string{
	SourceUnknown:                    "unknown",
	SourceManual:                     "manual",
	SourceManualConsumer:             "manual-consumer",
	SourcePeriodical:                 "periodical",
	SourceWebhookPush:                "webhook-push",
	SourceWebhookPullRequestCreated:  "webhook-pull-request-created",
	SourceWebhookPullRequestUpdated:  "webhook-pull-request-updated",
	SourceWebhookPullRequestApproved: "webhook-pull-request-approved",
	SourceWebhookPullRequestMerged:   "webhook-pull-request-merged",
}

// String returns the source name
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Valid reports whether s is a known source code
func (s Source) Valid() bool {
	_, ok := sourceNames[s]
	return ok
}

// ParseSource resolves a source name such as "webhook-push"
func ParseSource(name string) (Source, error) {
	for src, n := range sourceNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return src, nil
		}
	}
	return SourceUnknown, fmt.Errorf("unknown build source: %q", name)
}

// Severity classifies a reported build error
type Severity int

const (
	SeverityCritical Severity = 0
	SeverityHigh     Severity = 1
	SeverityNormal   Severity = 2
	SeverityLow      Severity = 3
)

// String returns the severity name
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityNormal:
		return "normal"
	case SeverityLow:
		return "low"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Stage names a phase of the pipeline
type Stage string

const (
	StageSetup    Stage = "setup"
	StageTest     Stage = "test"
	StageDeploy   Stage = "deploy"
	StageComplete Stage = "complete"
	StageSuccess  Stage = "success"
	StageFailure  Stage = "failure"
	StageFixed    Stage = "fixed"
	StageBroken   Stage = "broken"
)

// Stages lists every stage in canonical order
var Stages = []Stage{
	StageSetup,
	StageTest,
	StageDeploy,
	StageComplete,
	StageSuccess,
	StageFailure,
	StageFixed,
	StageBroken,
}

// ParseStage resolves a stage name, case-insensitively
func ParseStage(name string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Stages {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage: %q", name)
}

// IsFatal reports whether a plugin failure in the stage aborts the build
func (s Stage) IsFatal() bool {
	return s == StageSetup || s == StageDeploy
}

// IsHook reports whether the stage runs after the outcome is decided.
// Failures in hook stages never change the outcome.
func (s Stage) IsHook() bool {
	switch s {
	case StageComplete, StageSuccess, StageFailure, StageFixed, StageBroken:
		return true
	}
	return false
}

// PluginEntry is one configured plugin invocation within a stage
type PluginEntry struct {
	Plugin  string                 `json:"plugin" yaml:"plugin"`
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// BuildSettings holds project-wide options shared by every plugin
type BuildSettings struct {
	Ignore         []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	CloneDepth     int      `json:"clone_depth,omitempty" yaml:"clone_depth,omitempty"`
	CommandTimeout int      `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
}

// ProjectConfig is the per-project pipeline document (.censor.yml)
type ProjectConfig struct {
	ZeroConfig    bool                    `json:"zero_config" yaml:"zero_config"`
	BuildSettings BuildSettings           `json:"build_settings" yaml:"build_settings"`
	Stages        map[Stage][]PluginEntry `json:"stages" yaml:"stages"`
}

// Project describes a repository that can be built
type Project struct {
	ID            int64  `json:"id" yaml:"id" mapstructure:"id"`
	Title         string `json:"title" yaml:"title" mapstructure:"title"`
	Reference     string `json:"reference" yaml:"reference" mapstructure:"reference"`
	DefaultBranch string `json:"default_branch" yaml:"default_branch" mapstructure:"default_branch"`
}

// Branch returns the given branch or the project's default one
func (p Project) Branch(branch string) string {
	if branch != "" {
		return branch
	}
	if p.DefaultBranch != "" {
		return p.DefaultBranch
	}
	return "main"
}

// BuildRequest asks the worker to create and execute a build
type BuildRequest struct {
	ProjectID     int64     `json:"project_id" yaml:"project_id"`
	Branch        string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Tag           string    `json:"tag,omitempty" yaml:"tag,omitempty"`
	CommitID      string    `json:"commit_id,omitempty" yaml:"commit_id,omitempty"`
	Source        string    `json:"source,omitempty" yaml:"source,omitempty"`
	EnvironmentID *int64    `json:"environment_id,omitempty" yaml:"environment_id,omitempty"`
	UserID        *int64    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	RequestedAt   time.Time `json:"requested_at,omitempty" yaml:"requested_at,omitempty"`
}
