package ingest

import "fmt"

// Outcome is the final state of one record.
type Outcome struct {
	Index int
	Key   string
	ID    string
	State State
	Err   error
}

// Summary reports a finished run. Attempted counts records that were
// processed; it is below Total only when the run was cut short.
type Summary struct {
	RunID     string
	Mode      string
	Total     int
	Attempted int
	Succeeded int
	Failed    int
	// Dims is the dimensionality of the first vector the run produced.
	Dims     int
	Outcomes []Outcome
}

// String renders the run's headline, e.g. "success=9/10".
func (s Summary) String() string {
	return fmt.Sprintf("success=%d/%d", s.Succeeded, s.Attempted)
}

// FailedOutcomes returns the outcomes that did not reach WRITTEN.
func (s Summary) FailedOutcomes() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.State != StateWritten {
			out = append(out, o)
		}
	}
	return out
}
