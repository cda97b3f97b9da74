package domain

import "time"

// Event is the fire-and-forget notification emitted once per processed
// finding.
type Event struct {
	FindingID          string    `json:"finding_id"`
	AccountID          string    `json:"account_id"`
	Severity           string    `json:"severity"`
	RemediationOutcome Outcome   `json:"remediation_outcome"`
	TicketID           string    `json:"ticket_id"`
	TicketBackend      string    `json:"ticket_backend"`
	Timestamp          time.Time `json:"timestamp"`
}
