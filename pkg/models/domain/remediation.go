package domain

import "time"

type Outcome string

const (
	OutcomeSucceeded     Outcome = "SUCCEEDED"
	OutcomeFailed        Outcome = "FAILED"
	OutcomeSkipped       Outcome = "SKIPPED"
	OutcomeNotApplicable Outcome = "NOT_APPLICABLE"
)

// RemediationResult is produced exactly once per dispatch attempt and never
// mutated; a retry yields a new result.
type RemediationResult struct {
	FindingID string
	Handler   ServiceClass
	Outcome   Outcome
	Detail    string
	Timestamp time.Time
}
