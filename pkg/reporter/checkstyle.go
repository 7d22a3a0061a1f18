package reporter

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/censor-ci/censor/pkg/types"
)

type checkstyleReport struct {
	XMLName xml.Name         `xml:"checkstyle"`
	Files   []checkstyleFile `xml:"file"`
}

type checkstyleFile struct {
	Name   string            `xml:"name,attr"`
	Errors []checkstyleError `xml:"error"`
}

type checkstyleError struct {
	Line     int    `xml:"line,attr"`
	Column   int    `xml:"column,attr"`
	Severity string `xml:"severity,attr"`
	Message  string `xml:"message,attr"`
	Source   string `xml:"source,attr"`
}

// ParseCheckstyle parses a Checkstyle XML report
func ParseCheckstyle(output string) ([]Violation, error) {
	var report checkstyleReport
	if err := decode(output, &report); err != nil {
		return nil, err
	}

	var violations []Violation
	for _, f := range report.Files {
		for _, e := range f.Errors {
			msg := strings.TrimSpace(e.Message)
			if e.Source != "" {
				msg = fmt.Sprintf("%s (%s)", msg, e.Source)
			}
			violations = append(violations, Violation{
				File:      f.Name,
				BeginLine: e.Line,
				EndLine:   e.Line,
				Message:   msg,
				Severity:  checkstyleSeverity(e.Severity),
			})
		}
	}
	return violations, nil
}

func checkstyleSeverity(s string) types.Severity {
	switch strings.ToLower(s) {
	case "warning":
		return types.SeverityNormal
	case "info", "ignore":
		return types.SeverityLow
	default:
		return types.SeverityHigh
	}
}
