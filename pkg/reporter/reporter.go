// Package reporter turns analysis tool reports into build errors and
// counters on a build record.
package reporter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"
)

// Violation is a single problem found by an analysis tool
type Violation struct {
	File      string
	BeginLine int
	EndLine   int
	Message   string
	Severity  types.Severity
}

// Reporter writes violations into a build record, relative to a checkout
type Reporter struct {
	buildPath string
}

// New creates a reporter for the checkout rooted at buildPath
func New(buildPath string) *Reporter {
	return &Reporter{buildPath: buildPath}
}

// Report appends every violation to the record and returns how many were
// reported. File paths under the checkout are made relative to it.
func (r *Reporter) Report(rec *build.Record, plugin string, violations []Violation) int {
	for _, v := range violations {
		end := v.EndLine
		if end == 0 {
			end = v.BeginLine
		}
		rec.ReportError(plugin, v.Message, v.Severity, r.RelativePath(v.File), v.BeginLine, end)
	}
	return len(violations)
}

// StoreCount stores a counter under "<plugin>-<suffix>" in the record's extra
func (r *Reporter) StoreCount(rec *build.Record, plugin, suffix string, n int) error {
	return rec.StoreMeta(MetaKey(plugin, suffix), n)
}

// MetaKey builds the extra key a plugin stores a value under
func MetaKey(plugin, suffix string) string {
	return fmt.Sprintf("%s-%s", plugin, suffix)
}

// RelativePath strips the checkout root and any leading separator
func (r *Reporter) RelativePath(file string) string {
	if file == "" || r.buildPath == "" {
		return file
	}
	root := filepath.ToSlash(filepath.Clean(r.buildPath))
	p := filepath.ToSlash(file)
	if p == root {
		return ""
	}
	if strings.HasPrefix(p, root+"/") {
		p = strings.TrimPrefix(p, root)
	}
	return strings.TrimLeft(p, "/")
}
