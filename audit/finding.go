// Package audit carries structured findings (convergence warnings,
// structural zeros, population drift) from the core to a review sink.
//
// The core only emits findings; formatting them is the sink's business.
package audit

import (
	"fmt"
	"math"
)

// Severity grades a finding.
type Severity uint8

const (
	// SeverityInfo is informational.
	SeverityInfo Severity = iota
	// SeverityWarning needs human review.
	SeverityWarning
	// SeverityError marks a result that should not be used unreviewed.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("audit: unknown severity %q", b)
	}
	return nil
}

// Well-known finding names.
const (
	NameNotConverged     = "rake_not_converged"
	NameStructuralZero   = "structural_zero"
	NamePopulationDrift  = "population_drift"
	NameUnmatchedFactor  = "unmatched_factor_segments"
	NameDefaultedFactor  = "defaulted_factor"
	NameExpectationDrift = "expectation_drift"
	NameFallback         = "hierarchical_fallback"
)

// Finding is one named, numeric observation for downstream review.
type Finding struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	// Subject names what the finding is about (a control, chunk or factor).
	Subject  string  `json:"subject"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Delta    float64 `json:"delta"`
	RelDelta float64 `json:"rel_delta"`
	Detail   string  `json:"detail,omitempty"`
}

// NewFinding fills Delta and RelDelta from expected and actual.
func NewFinding(name string, sev Severity, subject string, expected, actual float64) Finding {
	return Finding{
		Name:     name,
		Severity: sev,
		Subject:  subject,
		Expected: expected,
		Actual:   actual,
		Delta:    actual - expected,
		RelDelta: RelDelta(expected, actual),
	}
}

// RelDelta returns |actual-expected| / |expected|. Against a zero
// expectation it returns the absolute delta.
func RelDelta(expected, actual float64) float64 {
	d := math.Abs(actual - expected)
	if expected == 0 {
		return d
	}
	return d / math.Abs(expected)
}

// Expect checks a sanity-check constant ("should be about N"). It returns a
// warning finding when actual is further than tol (relative) from expected.
// Such checks are soft audits, never errors.
func Expect(name string, expected, actual, tol float64) (Finding, bool) {
	f := NewFinding(NameExpectationDrift, SeverityInfo, name, expected, actual)
	if f.RelDelta > tol {
		f.Severity = SeverityWarning
		f.Detail = fmt.Sprintf("%s: expected about %.6g, got %.6g", name, expected, actual)
		return f, false
	}
	return f, true
}

func (f Finding) String() string {
	s := fmt.Sprintf("[%s] %s %s: expected=%.6g actual=%.6g rel_delta=%.3g",
		f.Severity, f.Name, f.Subject, f.Expected, f.Actual, f.RelDelta)
	if f.Detail != "" {
		s += " (" + f.Detail + ")"
	}
	return s
}
