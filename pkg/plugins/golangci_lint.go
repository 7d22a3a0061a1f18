package plugins

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/reporter"
	"github.com/censor-ci/censor/pkg/types"
)

// GolangciLintName is the registry name of the golangci-lint plugin
const GolangciLintName = "golangci_lint"

// GolangciLint runs golangci-lint with Checkstyle output
type GolangciLint struct {
	builder    *Builder
	record     *build.Record
	reporter   *reporter.Reporter
	log        logger.Logger
	executable string
	packages   []string
	config     string
	allowed    int
}

// GolangciLintDescriptor describes the golangci_lint plugin
func GolangciLintDescriptor() Descriptor {
	return Descriptor{
		Name:              GolangciLintName,
		New:               NewGolangciLint,
		CanExecuteOnStage: onlyStage(types.StageTest),
		ZeroConfig: func(buildPath string) bool {
			return fileExists(filepath.Join(buildPath, "go.mod"))
		},
	}
}

// NewGolangciLint creates a golangci_lint plugin
func NewGolangciLint(b *Builder, rec *build.Record, opts Options) (Plugin, error) {
	p := &GolangciLint{
		builder:  b,
		record:   rec,
		reporter: reporter.New(b.BuildPath),
		log:      b.Log(GolangciLintName),
		packages: []string{"./..."},
	}

	var err error
	if p.allowed, err = AllowedWarnings(GolangciLintName, opts); err != nil {
		return nil, err
	}

	packages, err := opts.Strings("packages")
	if err != nil {
		return nil, &ConfigurationError{Plugin: GolangciLintName, Err: err}
	}
	if len(packages) > 0 {
		p.packages = packages
	}

	config, err := opts.String("config", "")
	if err != nil {
		return nil, &ConfigurationError{Plugin: GolangciLintName, Err: err}
	}
	if config != "" {
		p.config = b.ResolvePath(config)
	}

	if p.executable, err = b.FindBinary("golangci-lint"); err != nil {
		return nil, &ConfigurationError{Plugin: GolangciLintName, Err: err}
	}
	return p, nil
}

// Command returns the golangci-lint invocation
func (p *GolangciLint) Command() string {
	cmd := process.Quote(p.executable) + " run --out-format checkstyle --issues-exit-code 0"
	if p.config != "" {
		cmd += " --config " + process.Quote(p.config)
	}
	for _, dir := range p.builder.Ignore {
		cmd += " --skip-dirs " + process.Quote(dir)
	}
	return cmd + " " + process.QuoteAll(p.packages)
}

// Execute runs golangci-lint and applies the warning threshold
func (p *GolangciLint) Execute(ctx context.Context) (bool, error) {
	result, err := p.builder.RunQuiet(ctx, p.Command())
	if err != nil {
		return false, err
	}
	if result.TimedOut {
		return false, &ToolExecutionError{Plugin: GolangciLintName, Err: fmt.Errorf("golangci-lint did not finish")}
	}

	output := p.builder.Runner.LastOutput()
	violations, err := reporter.ParseCheckstyle(output)
	if err != nil {
		p.log.Error(output)
		return false, &ToolExecutionError{Plugin: GolangciLintName, Output: output, Err: err}
	}

	count := p.reporter.Report(p.record, GolangciLintName, violations)
	if err := p.reporter.StoreCount(p.record, GolangciLintName, "warnings", count); err != nil {
		return false, err
	}

	p.log.Info(fmt.Sprintf("%d warning(s), %s allowed", count, thresholdText(p.allowed)))
	return WithinThreshold(count, p.allowed), nil
}
