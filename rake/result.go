package rake

import (
	"fmt"
	"strings"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/fact"
)

// Result is the outcome of a Fit.
type Result struct {
	// Table has the seed's dimensions and one row per cell of the working
	// cross product, sorted.
	Table *fact.Table
	// Iterations counts sweeps over all rounds.
	Iterations int
	Converged  bool
	// MaxDeviation is the largest relative deviation of any control group
	// that is not a structural zero.
	MaxDeviation float64
	// Warning is set when the fit stopped at the iteration cap.
	Warning         *ConvergenceWarning
	StructuralZeros []StructuralZero
}

// ConvergenceWarning reports the worst control of a fit that did not
// reach the tolerance.
type ConvergenceWarning struct {
	Control    string
	Deviation  float64
	Iterations int
}

func (w *ConvergenceWarning) String() string {
	return fmt.Sprintf("rake: control %q still %.3g off after %d iterations", w.Control, w.Deviation, w.Iterations)
}

// StructuralZero is a control group whose seed cells sum to zero while its
// target does not. Raking cannot give it mass; its cells stay zero.
type StructuralZero struct {
	Control string
	Geo     string
	Values  []string
	Target  float64
}

func (z StructuralZero) String() string {
	s := z.Control + "@" + z.Geo
	if len(z.Values) > 0 {
		s += "[" + strings.Join(z.Values, ",") + "]"
	}
	return s
}

// Findings converts the warning and structural zeros into audit findings
// about subject (typically the chunk).
func (r *Result) Findings(subject string) []audit.Finding {
	var out []audit.Finding
	if r.Warning != nil {
		f := audit.NewFinding(audit.NameNotConverged, audit.SeverityWarning, subject, 0, r.Warning.Deviation)
		f.Detail = r.Warning.String()
		out = append(out, f)
	}
	for _, z := range r.StructuralZeros {
		f := audit.NewFinding(audit.NameStructuralZero, audit.SeverityWarning, subject, z.Target, 0)
		f.Detail = z.String()
		out = append(out, f)
	}
	return out
}
