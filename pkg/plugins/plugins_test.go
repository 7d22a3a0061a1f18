package plugins_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/build"
	pcontext "github.com/censor-ci/censor/pkg/context"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/mocks"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/types"
)

const pmdThreeWarnings = `<?xml version="1.0" encoding="UTF-8" ?>
<pmd version="2.10.1">
  <file name="%[1]s/src/A.php">
    <violation beginline="3" endline="9" rule="UnusedLocalVariable" priority="3">Avoid unused local variables such as '$x'.</violation>
    <violation beginline="12" endline="12" rule="ShortVariable" priority="3">Avoid variables with short names like $i.</violation>
  </file>
  <file name="%[1]s/src/B.php">
    <violation beginline="5" endline="20" rule="CyclomaticComplexity" priority="3">The method run() has a Cyclomatic Complexity of 12.</violation>
  </file>
</pmd>`

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
}

func newBuilder(t *testing.T, runner process.CommandRunner) *plugins.Builder {
	t.Helper()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "vendor", "bin", "phpmd"))
	touch(t, filepath.Join(dir, "vendor", "bin", "phpunit"))
	touch(t, filepath.Join(dir, "bin", "golangci-lint"))
	return &plugins.Builder{
		BuildPath: dir,
		Project:   types.Project{ID: 1, Title: "demo"},
		Runner:    runner,
		Logger:    logger.Nop(),
	}
}

func newRecord(t *testing.T) *build.Record {
	t.Helper()
	rec, err := build.New(map[string]interface{}{"id": int64(7), "project_id": int64(1), "branch": "main"})
	require.NoError(t, err)
	return rec
}

func TestBuilder_RunQuietRestoresLogOutput(t *testing.T) {
	for _, streaming := range []bool{true, false} {
		runner := process.NewRunner(logger.Nop())
		runner.SetLogOutput(streaming)
		b := newBuilder(t, runner)

		res, err := b.RunQuiet(context.Background(), "echo quiet")
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, streaming, runner.LogOutput(), "streaming was %v before RunQuiet", streaming)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := plugins.DefaultRegistry()
	assert.Equal(t, []string{"desktop_notify", "golangci_lint", "php_mess_detector", "phpunit", "shell"}, r.Names())

	// every call builds a fresh registry
	require.NoError(t, r.Register(plugins.Descriptor{Name: "custom", New: plugins.NewShell}))
	assert.NotContains(t, plugins.DefaultRegistry().Names(), "custom")
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := plugins.NewRegistry()
	require.NoError(t, r.Register(plugins.ShellDescriptor()))

	assert.Error(t, r.Register(plugins.ShellDescriptor()), "duplicate names must be rejected")
	assert.Error(t, r.Register(plugins.Descriptor{Name: "nofactory"}))
	assert.Error(t, r.Register(plugins.Descriptor{New: plugins.NewShell}))

	d, err := r.Lookup("shell")
	require.NoError(t, err)
	assert.Equal(t, "shell", d.Name)

	_, err = r.Lookup("does_not_exist")
	assert.ErrorIs(t, err, plugins.ErrConfiguration)
	var cfgErr *plugins.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "does_not_exist", cfgErr.Plugin)
}

func TestRegistry_ZeroConfigPlugins(t *testing.T) {
	r := plugins.DefaultRegistry()

	empty := t.TempDir()
	assert.Empty(t, r.ZeroConfigPlugins(empty))

	php := t.TempDir()
	touch(t, filepath.Join(php, "composer.json"))
	touch(t, filepath.Join(php, "phpunit.xml.dist"))
	assert.Equal(t, []string{"php_mess_detector", "phpunit"}, r.ZeroConfigPlugins(php))

	golang := t.TempDir()
	touch(t, filepath.Join(golang, "go.mod"))
	assert.Equal(t, []string{"golangci_lint"}, r.ZeroConfigPlugins(golang))

	sources := t.TempDir()
	touch(t, filepath.Join(sources, "src", "index.php"))
	assert.Equal(t, []string{"php_mess_detector"}, r.ZeroConfigPlugins(sources))
}

func TestStagePermissions(t *testing.T) {
	rec := newRecord(t)
	tests := []struct {
		descriptor plugins.Descriptor
		allowed    []types.Stage
	}{
		{plugins.MessDetectorDescriptor(), []types.Stage{types.StageTest}},
		{plugins.GolangciLintDescriptor(), []types.Stage{types.StageTest}},
		{plugins.PHPUnitDescriptor(), []types.Stage{types.StageTest}},
		{plugins.ShellDescriptor(), types.Stages},
		{plugins.DesktopNotifyDescriptor(), []types.Stage{
			types.StageComplete, types.StageSuccess, types.StageFailure, types.StageFixed, types.StageBroken,
		}},
	}

	for _, tt := range tests {
		for _, stage := range types.Stages {
			want := false
			for _, s := range tt.allowed {
				if s == stage {
					want = true
				}
			}
			assert.Equal(t, want, tt.descriptor.AllowsStage(stage, rec), "%s on %s", tt.descriptor.Name, stage)
		}
	}
}

func TestWithinThreshold(t *testing.T) {
	tests := []struct {
		count, allowed int
		want           bool
	}{
		{0, 0, true},
		{1, 0, false},
		{5, 5, true},
		{6, 5, false},
		{1000, plugins.Unlimited, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, plugins.WithinThreshold(tt.count, tt.allowed), "%d/%d", tt.count, tt.allowed)
	}
}

func TestAllowedWarnings(t *testing.T) {
	tests := []struct {
		name string
		opts plugins.Options
		want int
	}{
		{"default", plugins.Options{}, 0},
		{"zero config", plugins.Options{"zero_config": true}, plugins.Unlimited},
		{"explicit", plugins.Options{"allowed_warnings": 3}, 3},
		{"explicit overrides zero config", plugins.Options{"zero_config": true, "allowed_warnings": 2}, 2},
		{"numeric string", plugins.Options{"allowed_warnings": "4"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := plugins.AllowedWarnings("x", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := plugins.AllowedWarnings("x", plugins.Options{"allowed_warnings": []interface{}{1}})
	assert.ErrorIs(t, err, plugins.ErrConfiguration)
}

func TestMessDetector_ThresholdExceeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockCommandRunner(ctrl)
	b := newBuilder(t, runner)
	rec := newRecord(t)

	runner.EXPECT().Run(gomock.Any(), gomock.Any(), b.BuildPath).Return(process.Result{ExitCode: 2}, nil)
	runner.EXPECT().LastOutput().Return(strings.ReplaceAll(pmdThreeWarnings, "%[1]s", b.BuildPath))

	p, err := plugins.NewMessDetector(b, rec, plugins.Options{})
	require.NoError(t, err)

	ok, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "3 warnings with none allowed must fail")
	assert.Equal(t, 3, rec.ErrorsTotal())
	assert.Equal(t, 3, rec.Extra("php_mess_detector-warnings"))

	errs := rec.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, "src/A.php", errs[0].File)
	assert.Equal(t, "src/B.php", errs[2].File)
}

func TestMessDetector_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		opts plugins.Options
		want bool
	}{
		{"zero config is unlimited", plugins.Options{"zero_config": true}, true},
		{"allowed covers count", plugins.Options{"allowed_warnings": 3}, true},
		{"allowed below count", plugins.Options{"allowed_warnings": 2}, false},
		{"explicit unlimited", plugins.Options{"allowed_warnings": -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			runner := mocks.NewMockCommandRunner(ctrl)
			b := newBuilder(t, runner)
			rec := newRecord(t)

			runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(process.Result{}, nil)
			runner.EXPECT().LastOutput().Return(strings.ReplaceAll(pmdThreeWarnings, "%[1]s", b.BuildPath))

			p, err := plugins.NewMessDetector(b, rec, tt.opts)
			require.NoError(t, err)
			ok, err := p.Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMessDetector_Command(t *testing.T) {
	b := newBuilder(t, nil)
	b.Ignore = []string{"vendor", "tests"}

	p, err := plugins.NewMessDetector(b, newRecord(t), plugins.Options{
		"rules":     []interface{}{"codesize", "rulesets/custom.xml"},
		"suffixes":  []interface{}{"php", "inc"},
		"directory": "src",
	})
	require.NoError(t, err)

	md := p.(*plugins.MessDetector)
	assert.Equal(t, []string{"codesize", filepath.Join(b.BuildPath, "rulesets/custom.xml")}, md.Rules())

	cmd := md.Command()
	assert.Contains(t, cmd, process.Quote(filepath.Join(b.BuildPath, "vendor", "bin", "phpmd")))
	assert.Contains(t, cmd, process.Quote(filepath.Join(b.BuildPath, "src"))+" xml ")
	assert.Contains(t, cmd, "--exclude 'vendor,tests'")
	assert.Contains(t, cmd, "--suffixes 'php,inc'")
}

func TestMessDetector_RulesMustBeList(t *testing.T) {
	_, err := plugins.NewMessDetector(newBuilder(t, nil), newRecord(t), plugins.Options{"rules": "codesize"})
	require.ErrorIs(t, err, plugins.ErrConfiguration)
	assert.Contains(t, err.Error(), `The "rules" option must be an array.`)
}

func TestMessDetector_MissingBinary(t *testing.T) {
	t.Setenv("PATH", "")
	b := &plugins.Builder{BuildPath: t.TempDir(), Logger: logger.Nop()}

	_, err := plugins.NewMessDetector(b, newRecord(t), plugins.Options{})
	require.ErrorIs(t, err, plugins.ErrConfiguration)
	assert.ErrorIs(t, err, plugins.ErrBinaryNotFound)
}

func TestMessDetector_MalformedReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockCommandRunner(ctrl)
	b := newBuilder(t, runner)
	rec := newRecord(t)

	runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(process.Result{ExitCode: 255}, nil)
	runner.EXPECT().LastOutput().Return("PHP Fatal error: something broke")

	p, err := plugins.NewMessDetector(b, rec, plugins.Options{})
	require.NoError(t, err)

	ok, err := p.Execute(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, plugins.ErrToolExecution)
	assert.Equal(t, 0, rec.ErrorsTotal())
	assert.Nil(t, rec.Extra("php_mess_detector-warnings"))
}

func TestGolangciLint(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockCommandRunner(ctrl)
	b := newBuilder(t, runner)
	rec := newRecord(t)

	out := `<?xml version="1.0" encoding="UTF-8"?>
<checkstyle version="5.0">
  <file name="main.go">
    <error column="2" line="10" message="Error return value is not checked" severity="error" source="errcheck"></error>
  </file>
</checkstyle>`

	runner.EXPECT().Run(gomock.Any(), gomock.Any(), b.BuildPath).
		DoAndReturn(func(_ context.Context, cmd, _ string, _ ...interface{}) (process.Result, error) {
			assert.Contains(t, cmd, "run --out-format checkstyle")
			assert.Contains(t, cmd, "'./...'")
			return process.Result{}, nil
		})
	runner.EXPECT().LastOutput().Return(out)

	p, err := plugins.NewGolangciLint(b, rec, plugins.Options{"allowed_warnings": 1})
	require.NoError(t, err)

	ok, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rec.Extra("golangci_lint-warnings"))
	assert.Equal(t, "main.go", rec.Errors()[0].File)
}

func TestShell(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockCommandRunner(ctrl)
	b := newBuilder(t, runner)

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), "composer install", b.BuildPath).Return(process.Result{}, nil),
		runner.EXPECT().Run(gomock.Any(), "false", b.BuildPath).Return(process.Result{ExitCode: 1}, nil),
	)

	p, err := plugins.NewShell(b, newRecord(t), plugins.Options{
		"commands": []interface{}{"composer install", "false", "never runs"},
	})
	require.NoError(t, err)

	ok, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShell_SingleCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockCommandRunner(ctrl)
	b := newBuilder(t, runner)

	runner.EXPECT().Run(gomock.Any(), "make test", b.BuildPath).Return(process.Result{}, nil)

	p, err := plugins.NewShell(b, newRecord(t), plugins.Options{"commands": "make test"})
	require.NoError(t, err)
	ok, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShell_RequiresCommands(t *testing.T) {
	_, err := plugins.NewShell(newBuilder(t, nil), newRecord(t), plugins.Options{})
	assert.ErrorIs(t, err, plugins.ErrConfiguration)
}

type fakeNotifier struct {
	titles   []string
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(title, message string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return f.err
}

func TestDesktopNotify(t *testing.T) {
	n := &fakeNotifier{}
	b := newBuilder(t, nil)
	b.Notifier = n

	p, err := plugins.NewDesktopNotify(b, newRecord(t), plugins.Options{})
	require.NoError(t, err)

	ctx := pcontext.WithStage(context.Background(), string(types.StageBroken))
	ok, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, n.titles, 1)
	assert.Equal(t, "❌ Build Broken", n.titles[0])
	assert.Equal(t, "demo #7 on main: 0 error(s)", n.messages[0])
}

func TestDesktopNotify_SendFailure(t *testing.T) {
	b := newBuilder(t, nil)
	b.Notifier = &fakeNotifier{err: errors.New("no display")}

	p, err := plugins.NewDesktopNotify(b, newRecord(t), plugins.Options{"title": "t", "message": "m"})
	require.NoError(t, err)

	ok, err := p.Execute(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDesktopNotify_RequiresNotifier(t *testing.T) {
	_, err := plugins.NewDesktopNotify(newBuilder(t, nil), newRecord(t), plugins.Options{})
	assert.ErrorIs(t, err, plugins.ErrConfiguration)
}
