package build

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/censor-ci/censor/pkg/types"
)

// Error is one normalised problem reported by a plugin. Values are copied
// in and out of the record so they cannot change after creation.
type Error struct {
	Plugin     string         `json:"plugin"`
	Message    string         `json:"message"`
	Severity   types.Severity `json:"severity"`
	File       string         `json:"file,omitempty"`
	BeginLine  int            `json:"begin_line,omitempty"`
	EndLine    int            `json:"end_line,omitempty"`
	CreateDate time.Time      `json:"create_date"`
}

// Hash identifies the error across builds independent of when it was seen
func (e Error) Hash() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d|%d|%s", e.Plugin, e.File, e.BeginLine, e.EndLine, e.Message)))
	return hex.EncodeToString(sum[:])
}

// String renders the error as "plugin: file:begin-end message"
func (e Error) String() string {
	loc := e.File
	if e.BeginLine > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.BeginLine)
		if e.EndLine > e.BeginLine {
			loc = fmt.Sprintf("%s-%d", loc, e.EndLine)
		}
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Plugin, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s %s", e.Severity, e.Plugin, loc, e.Message)
}

// ReportError appends a new error to the record and bumps errors_total
func (r *Record) ReportError(plugin, message string, severity types.Severity, file string, beginLine, endLine int) Error {
	e := Error{
		Plugin:     plugin,
		Message:    message,
		Severity:   severity,
		File:       file,
		BeginLine:  beginLine,
		EndLine:    endLine,
		CreateDate: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, e)
	total := deref(r.errorsTotal) + 1
	r.errorsTotal = &total
	return e
}

// Errors returns a copy of the reported errors in report order
func (r *Record) Errors() []Error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Error(nil), r.errors...)
}

// ErrorsFor returns the errors reported by a single plugin
func (r *Record) ErrorsFor(plugin string) []Error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Error
	for _, e := range r.errors {
		if e.Plugin == plugin {
			out = append(out, e)
		}
	}
	return out
}

// RestoreErrors replaces the error list, used by stores when loading
func (r *Record) RestoreErrors(errs []Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append([]Error(nil), errs...)
}

// ComputeNewErrors compares the record against the previous build of the
// same project and branch. It sets errors_total_previous and errors_new;
// without a previous build every error counts as new.
func (r *Record) ComputeNewErrors(previous *Record) {
	seen := make(map[string]int)
	prevTotal := 0
	if previous != nil {
		for _, e := range previous.Errors() {
			seen[e.Hash()]++
		}
		prevTotal = previous.ErrorsTotal()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := 0
	for _, e := range r.errors {
		h := e.Hash()
		if seen[h] > 0 {
			seen[h]--
			continue
		}
		fresh++
	}
	total := len(r.errors)
	r.errorsTotal = &total
	r.errorsNew = &fresh
	if previous != nil {
		r.errorsTotalPrevious = &prevTotal
	}
}
