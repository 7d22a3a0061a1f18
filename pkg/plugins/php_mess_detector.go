package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/process"
	"github.com/censor-ci/censor/pkg/reporter"
	"github.com/censor-ci/censor/pkg/types"
)

// MessDetectorName is the registry name of the PHPMD plugin
const MessDetectorName = "php_mess_detector"

var (
	defaultMessDetectorRules    = []string{"codesize", "unusedcode", "naming"}
	defaultMessDetectorSuffixes = []string{"php"}
)

// MessDetector runs PHP Mess Detector and reports each violation
type MessDetector struct {
	builder    *Builder
	record     *build.Record
	reporter   *reporter.Reporter
	log        logger.Logger
	executable string
	directory  string
	rules      []string
	suffixes   []string
	ignore     []string
	allowed    int
}

// MessDetectorDescriptor describes the php_mess_detector plugin
func MessDetectorDescriptor() Descriptor {
	return Descriptor{
		Name:              MessDetectorName,
		New:               NewMessDetector,
		CanExecuteOnStage: onlyStage(types.StageTest),
		ZeroConfig:        hasPHPSources,
	}
}

// NewMessDetector creates a php_mess_detector plugin
func NewMessDetector(b *Builder, rec *build.Record, opts Options) (Plugin, error) {
	p := &MessDetector{
		builder:  b,
		record:   rec,
		reporter: reporter.New(b.BuildPath),
		log:      b.Log(MessDetectorName),
		rules:    defaultMessDetectorRules,
		suffixes: defaultMessDetectorSuffixes,
	}

	var err error
	if p.allowed, err = AllowedWarnings(MessDetectorName, opts); err != nil {
		return nil, err
	}

	if opts.Has("rules") {
		rules, err := opts.StringList("rules")
		if err != nil {
			return nil, configError(MessDetectorName, `The "rules" option must be an array.`)
		}
		if len(rules) > 0 {
			p.rules = rules
		}
	}
	if opts.Has("suffixes") {
		suffixes, err := opts.StringList("suffixes")
		if err != nil {
			return nil, configError(MessDetectorName, `The "suffixes" option must be an array.`)
		}
		if len(suffixes) > 0 {
			p.suffixes = suffixes
		}
	}

	dir, err := opts.String("directory", "")
	if err != nil {
		return nil, &ConfigurationError{Plugin: MessDetectorName, Err: err}
	}
	p.directory = b.ResolvePath(dir)

	extra, err := opts.Strings("ignore")
	if err != nil {
		return nil, &ConfigurationError{Plugin: MessDetectorName, Err: err}
	}
	p.ignore = append(append([]string(nil), b.Ignore...), extra...)

	if p.executable, err = b.FindBinary("phpmd", "phpmd.phar"); err != nil {
		return nil, &ConfigurationError{Plugin: MessDetectorName, Err: err}
	}
	return p, nil
}

// Rules returns the rule sets passed to phpmd, file rules made absolute
func (p *MessDetector) Rules() []string {
	rules := make([]string, len(p.rules))
	for i, rule := range p.rules {
		if strings.Contains(rule, "/") {
			rule = p.builder.ResolvePath(rule)
		}
		rules[i] = rule
	}
	return rules
}

// Command returns the phpmd invocation
func (p *MessDetector) Command() string {
	cmd := fmt.Sprintf("%s %s xml %s",
		process.Quote(p.executable),
		process.Quote(p.directory),
		process.Quote(strings.Join(p.Rules(), ",")),
	)
	if len(p.ignore) > 0 {
		cmd += " --exclude " + process.Quote(strings.Join(p.ignore, ","))
	}
	if len(p.suffixes) > 0 {
		cmd += " --suffixes " + process.Quote(strings.Join(p.suffixes, ","))
	}
	return cmd
}

// Execute runs phpmd and applies the warning threshold
func (p *MessDetector) Execute(ctx context.Context) (bool, error) {
	result, err := p.builder.RunQuiet(ctx, p.Command())
	if err != nil {
		return false, err
	}
	if result.TimedOut {
		return false, &ToolExecutionError{Plugin: MessDetectorName, Err: fmt.Errorf("phpmd did not finish")}
	}

	output := p.builder.Runner.LastOutput()
	violations, err := reporter.ParsePMD(output)
	if err != nil {
		p.log.Error(output)
		return false, &ToolExecutionError{Plugin: MessDetectorName, Output: output, Err: err}
	}

	count := p.reporter.Report(p.record, MessDetectorName, violations)
	if err := p.reporter.StoreCount(p.record, MessDetectorName, "warnings", count); err != nil {
		return false, err
	}

	p.log.Info(fmt.Sprintf("%d warning(s), %s allowed", count, thresholdText(p.allowed)))
	return WithinThreshold(count, p.allowed), nil
}

func thresholdText(allowed int) string {
	if allowed == Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", allowed)
}

// hasPHPSources detects a PHP project: composer.json or any .php file
// near the checkout root
func hasPHPSources(buildPath string) bool {
	if fileExists(filepath.Join(buildPath, "composer.json")) {
		return true
	}
	for _, dir := range []string{"", "src", "app", "lib"} {
		matches, _ := filepath.Glob(filepath.Join(buildPath, dir, "*.php"))
		if len(matches) > 0 {
			return true
		}
	}
	return false
}

