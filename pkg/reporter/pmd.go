package reporter

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/censor-ci/censor/pkg/types"
)

type pmdReport struct {
	XMLName xml.Name  `xml:"pmd"`
	Files   []pmdFile `xml:"file"`
}

type pmdFile struct {
	Name       string         `xml:"name,attr"`
	Violations []pmdViolation `xml:"violation"`
}

type pmdViolation struct {
	BeginLine int    `xml:"beginline,attr"`
	EndLine   int    `xml:"endline,attr"`
	Rule      string `xml:"rule,attr"`
	Priority  int    `xml:"priority,attr"`
	Message   string `xml:",chardata"`
}

// ParsePMD parses a PHPMD XML report
func ParsePMD(output string) ([]Violation, error) {
	var report pmdReport
	if err := decode(output, &report); err != nil {
		return nil, err
	}

	var violations []Violation
	for _, f := range report.Files {
		for _, v := range f.Violations {
			violations = append(violations, Violation{
				File:      f.Name,
				BeginLine: v.BeginLine,
				EndLine:   v.EndLine,
				Message:   strings.TrimSpace(v.Message),
				Severity:  pmdSeverity(v.Priority),
			})
		}
	}
	return violations, nil
}

// pmdSeverity maps a PHPMD rule priority (1 highest, 5 lowest) onto a
// severity instead of reporting every violation as High. A violation
// without a priority attribute is still reported as High.
func pmdSeverity(priority int) types.Severity {
	switch priority {
	case 1:
		return types.SeverityCritical
	case 3:
		return types.SeverityNormal
	case 4, 5:
		return types.SeverityLow
	default:
		return types.SeverityHigh
	}
}

// decode unmarshals an XML report, trimming anything printed before the
// XML declaration or root element
func decode(output string, v interface{}) error {
	body := strings.TrimSpace(output)
	if body == "" {
		return fmt.Errorf("%w: empty output", ErrMalformedReport)
	}
	if i := strings.Index(body, "<"); i > 0 {
		body = body[i:]
	} else if i < 0 {
		return fmt.Errorf("%w: no XML found", ErrMalformedReport)
	}
	if err := xml.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	return nil
}
