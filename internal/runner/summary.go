package runner

import (
	"time"

	"github.com/snapp-incubator/conformer/internal/failure"
)

// Outcome is the result of one case.
type Outcome struct {
	Index    int
	Case     string
	Method   string
	Endpoint string

	Kind     failure.Kind
	Err      error
	Duration time.Duration

	Skipped    bool
	SkipReason string // "config", "fail_fast", "rate_limit" or "cancelled"
}

// Passed reports whether both upstreams answered with the same shape.
func (o Outcome) Passed() bool { return !o.Skipped && o.Err == nil }

// Failed reports whether the case ran and diverged or errored.
func (o Outcome) Failed() bool { return !o.Skipped && o.Err != nil }

// Summary aggregates the outcomes of a run. Outcomes keep the order of the
// configured cases.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Outcomes []Outcome
}

// OK reports whether no case failed.
func (s *Summary) OK() bool { return s.Failed == 0 }

// Failures returns the failed outcomes in case order.
func (s *Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

func summarize(outcomes []Outcome) *Summary {
	s := &Summary{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case o.Err != nil:
			s.Failed++
		default:
			s.Passed++
		}
	}
	return s
}
