package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/reporter"
	"github.com/censor-ci/censor/pkg/types"
)

// PHPUnitName is the registry name of the PHPUnit plugin
const PHPUnitName = "phpunit"

var phpunitConfigFiles = []string{"phpunit.xml", "phpunit.xml.dist", "tests/phpunit.xml", "tests/phpunit.xml.dist"}

// PHPUnit runs PHPUnit once per configuration file and once per test
// directory, reporting failed tests as build errors
type PHPUnit struct {
	builder          *Builder
	record           *build.Record
	reporter         *reporter.Reporter
	log              logger.Logger
	executable       string
	configs          []string
	directories      []string
	coverage         bool
	requiredCoverage float64
}

// PHPUnitRun is one phpunit invocation; exactly one field is set
type PHPUnitRun struct {
	Directory string
	Config    string
}

// PHPUnitDescriptor describes the phpunit plugin
func PHPUnitDescriptor() Descriptor {
	return Descriptor{
		Name:              PHPUnitName,
		New:               NewPHPUnit,
		CanExecuteOnStage: onlyStage(types.StageTest),
		ZeroConfig: func(buildPath string) bool {
			return findPHPUnitConfig(buildPath) != ""
		},
	}
}

// NewPHPUnit creates a phpunit plugin
func NewPHPUnit(b *Builder, rec *build.Record, opts Options) (Plugin, error) {
	p := &PHPUnit{
		builder:  b,
		record:   rec,
		reporter: reporter.New(b.BuildPath),
		log:      b.Log(PHPUnitName),
	}

	configs, err := opts.Strings("config")
	if err != nil {
		return nil, &ConfigurationError{Plugin: PHPUnitName, Err: err}
	}
	for _, c := range configs {
		p.configs = append(p.configs, b.ResolvePath(c))
	}

	dirs, err := opts.Strings("directories")
	if err != nil {
		return nil, &ConfigurationError{Plugin: PHPUnitName, Err: err}
	}
	for _, d := range dirs {
		p.directories = append(p.directories, b.ResolvePath(d))
	}

	if len(p.configs) == 0 && len(p.directories) == 0 {
		found := findPHPUnitConfig(b.BuildPath)
		if found == "" {
			return nil, configError(PHPUnitName, "no config or directories given and no phpunit.xml found")
		}
		p.configs = []string{found}
	}

	if p.coverage, err = opts.Bool("coverage", false); err != nil {
		return nil, &ConfigurationError{Plugin: PHPUnitName, Err: err}
	}
	if p.requiredCoverage, err = opts.Float("required_lines_coverage", 0); err != nil {
		return nil, &ConfigurationError{Plugin: PHPUnitName, Err: err}
	}
	if p.requiredCoverage > 0 {
		p.coverage = true
	}

	if p.executable, err = b.FindBinary("phpunit", "phpunit.phar"); err != nil {
		return nil, &ConfigurationError{Plugin: PHPUnitName, Err: err}
	}
	return p, nil
}

// Runs lists the invocations in execution order: configs first, then
// directories
func (p *PHPUnit) Runs() []PHPUnitRun {
	runs := make([]PHPUnitRun, 0, len(p.configs)+len(p.directories))
	for _, c := range p.configs {
		runs = append(runs, PHPUnitRun{Config: c})
	}
	for _, d := range p.directories {
		runs = append(runs, PHPUnitRun{Directory: d})
	}
	return runs
}

// JUnitPath returns where run number i writes its JUnit log
func (p *PHPUnit) JUnitPath(i int) string {
	return filepath.Join(p.builder.BuildPath, ".censor", fmt.Sprintf("phpunit-%d.xml", i))
}

// Command returns the phpunit invocation for run number i
func (p *PHPUnit) Command(i int, run PHPUnitRun) string {
	cmd := process.Quote(p.executable) + " --log-junit " + process.Quote(p.JUnitPath(i))
	if p.coverage {
		cmd += " --coverage-text --colors=never"
	}
	if run.Config != "" {
		cmd += " --configuration " + process.Quote(run.Config)
	}
	if run.Directory != "" {
		cmd += " " + process.Quote(run.Directory)
	}
	return cmd
}

// Execute runs every configured invocation and succeeds only when all of
// them pass and line coverage meets the requirement
func (p *PHPUnit) Execute(ctx context.Context) (bool, error) {
	if err := os.MkdirAll(filepath.Join(p.builder.BuildPath, ".censor"), 0755); err != nil {
		return false, fmt.Errorf("failed to create report directory: %w", err)
	}

	success := true
	failures := 0
	coverage := -1.0

	for i, run := range p.Runs() {
		junitPath := p.JUnitPath(i)
		_ = os.Remove(junitPath)

		result, err := p.builder.Run(ctx, p.Command(i, run))
		if err != nil {
			return false, err
		}
		if result.TimedOut {
			return false, &ToolExecutionError{Plugin: PHPUnitName, Err: fmt.Errorf("phpunit did not finish")}
		}

		report, err := os.ReadFile(junitPath)
		if err != nil {
			p.log.Error(result.Output)
			return false, &ToolExecutionError{Plugin: PHPUnitName, Output: result.Output, Err: fmt.Errorf("%w: %v", reporter.ErrMalformedReport, err)}
		}
		violations, err := reporter.ParseJUnit(string(report))
		if err != nil {
			p.log.Error(string(report))
			return false, &ToolExecutionError{Plugin: PHPUnitName, Output: string(report), Err: err}
		}

		failures += p.reporter.Report(p.record, PHPUnitName, violations)
		if !result.Success() || len(violations) > 0 {
			success = false
		}

		if p.coverage {
			if pct, ok := reporter.ParseCoverageText(result.Output); ok && (coverage < 0 || pct < coverage) {
				coverage = pct
			}
		}
	}

	if err := p.reporter.StoreCount(p.record, PHPUnitName, "errors", failures); err != nil {
		return false, err
	}

	if p.coverage && coverage >= 0 {
		if err := p.record.StoreMeta(reporter.MetaKey(PHPUnitName, "coverage"), map[string]interface{}{"lines": coverage}); err != nil {
			return false, err
		}
		if p.requiredCoverage > 0 && coverage < p.requiredCoverage {
			p.log.Warn(fmt.Sprintf("Line coverage %.2f%% is below the required %.2f%%", coverage, p.requiredCoverage))
			success = false
		}
	} else if p.requiredCoverage > 0 {
		p.log.Warn("Line coverage was required but not reported")
		success = false
	}

	return success, nil
}

func findPHPUnitConfig(buildPath string) string {
	for _, name := range phpunitConfigFiles {
		p := filepath.Join(buildPath, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}
