package plugins

import (
	"context"
	"fmt"

	"github.com/censor-ci/censor/pkg/build"
	pcontext "github.com/censor-ci/censor/pkg/context"
	"github.com/censor-ci/censor/pkg/types"
)

// DesktopNotifyName is the registry name of the desktop notification plugin
const DesktopNotifyName = "desktop_notify"

// DesktopNotify sends a desktop notification from an exit-hook stage
type DesktopNotify struct {
	builder *Builder
	record  *build.Record
	title   string
	message string
}

// DesktopNotifyDescriptor describes the desktop_notify plugin
func DesktopNotifyDescriptor() Descriptor {
	return Descriptor{
		Name: DesktopNotifyName,
		New:  NewDesktopNotify,
		CanExecuteOnStage: func(stage types.Stage, _ *build.Record) bool {
			return stage.IsHook()
		},
	}
}

// NewDesktopNotify creates a desktop_notify plugin
func NewDesktopNotify(b *Builder, rec *build.Record, opts Options) (Plugin, error) {
	title, err := opts.String("title", "")
	if err != nil {
		return nil, &ConfigurationError{Plugin: DesktopNotifyName, Err: err}
	}
	message, err := opts.String("message", "")
	if err != nil {
		return nil, &ConfigurationError{Plugin: DesktopNotifyName, Err: err}
	}
	if b.Notifier == nil {
		return nil, configError(DesktopNotifyName, "no notifier available")
	}
	return &DesktopNotify{builder: b, record: rec, title: title, message: message}, nil
}

// Execute sends the notification for the current stage
func (d *DesktopNotify) Execute(ctx context.Context) (bool, error) {
	title, message := d.title, d.message
	if title == "" {
		title = d.defaultTitle(types.Stage(pcontext.GetStage(ctx)))
	}
	if message == "" {
		message = fmt.Sprintf("%s #%d on %s: %d error(s)",
			d.builder.Project.Title, d.record.ID(), d.record.Branch(), d.record.ErrorsTotal())
	}

	if err := d.builder.Notifier.Notify(title, message); err != nil {
		return false, err
	}
	return true, nil
}

func (d *DesktopNotify) defaultTitle(stage types.Stage) string {
	switch stage {
	case types.StageSuccess:
		return "✅ Build Succeeded"
	case types.StageFixed:
		return "✅ Build Fixed"
	case types.StageFailure:
		return "❌ Build Failed"
	case types.StageBroken:
		return "❌ Build Broken"
	default:
		return "Build Finished"
	}
}
