package reporter

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/censor-ci/censor/pkg/types"
)

type junitSuite struct {
	Name   string       `xml:"name,attr"`
	File   string       `xml:"file,attr"`
	Suites []junitSuite `xml:"testsuite"`
	Cases  []junitCase  `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Class     string        `xml:"class,attr"`
	ClassName string        `xml:"classname,attr"`
	File      string        `xml:"file,attr"`
	Line      int           `xml:"line,attr"`
	Failures  []junitResult `xml:"failure"`
	Errors    []junitResult `xml:"error"`
}

type junitResult struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// ParseJUnit parses a JUnit XML log with a <testsuites> or <testsuite> root.
// Each failed or errored test case becomes one violation.
func ParseJUnit(output string) ([]Violation, error) {
	var root struct {
		XMLName xml.Name
		junitSuite
	}
	if err := decode(output, &root); err != nil {
		return nil, err
	}
	if name := root.XMLName.Local; name != "testsuites" && name != "testsuite" {
		return nil, fmt.Errorf("%w: unexpected root element <%s>", ErrMalformedReport, name)
	}

	var violations []Violation
	collectJUnit(root.junitSuite, &violations)
	return violations, nil
}

func collectJUnit(s junitSuite, out *[]Violation) {
	for _, c := range s.Cases {
		file := c.File
		if file == "" {
			file = s.File
		}
		for _, f := range c.Failures {
			*out = append(*out, junitViolation(c, file, f, types.SeverityHigh))
		}
		for _, e := range c.Errors {
			*out = append(*out, junitViolation(c, file, e, types.SeverityCritical))
		}
	}
	for _, child := range s.Suites {
		collectJUnit(child, out)
	}
}

func junitViolation(c junitCase, file string, r junitResult, severity types.Severity) Violation {
	class := c.Class
	if class == "" {
		class = c.ClassName
	}
	name := c.Name
	if class != "" {
		name = class + "::" + c.Name
	}
	detail := strings.TrimSpace(r.Message)
	if detail == "" {
		detail = strings.TrimSpace(r.Text)
	}
	msg := name
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", name, detail)
	}
	return Violation{
		File:      file,
		BeginLine: c.Line,
		EndLine:   c.Line,
		Message:   msg,
		Severity:  severity,
	}
}

var coverageLines = regexp.MustCompile(`(?m)^\s*Lines:\s+([0-9]+(?:\.[0-9]+)?)%`)

// ParseCoverageText extracts the line coverage percentage from a PHPUnit
// --coverage-text summary. The second result is false when none is found.
func ParseCoverageText(output string) (float64, bool) {
	m := coverageLines.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}
