package replay

import (
	"errors"
	"fmt"
)

// maxReported bounds how many violations are listed in the returned error.
const maxReported = 5

func summarize(stats *Stats, results []Result) {
	for _, r := range results {
		if r.Attempts == 0 {
			continue
		}
		stats.Sent++
		switch r.Outcome {
		case OutcomeOK:
			stats.OK++
		case OutcomeRetried:
			stats.Retried++
		case OutcomeViolation:
			stats.Violations++
		case OutcomeFailed:
			stats.Failed++
		}
	}
}

// verify fails when any reply broke the contract. Deliveries that kept
// hitting backpressure or a transport error are not violations.
func verify(results []Result) error {
	var problems []error
	total := 0
	for _, r := range results {
		if r.Outcome != OutcomeViolation {
			continue
		}
		total++
		if len(problems) < maxReported {
			problems = append(problems, fmt.Errorf("%s %s: %s", r.Delivery.Label, r.Delivery.EventID, r.Detail))
		}
	}
	if total == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d deliveries: %w", ErrContractViolated, total, errors.Join(problems...))
}
