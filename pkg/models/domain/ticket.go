package domain

import "time"

type TicketStatus string

const (
	TicketCreated   TicketStatus = "CREATED"
	TicketSucceeded TicketStatus = "SUCCEEDED"
	TicketFailed    TicketStatus = "FAILED"
)

// Ticket is the durable record of a finding's lifecycle. IDs carry the
// backend prefix (GH-, JIRA-, TICKET-) so provenance stays unambiguous.
type Ticket struct {
	TicketID  string
	FindingID string
	Status    TicketStatus
	Backend   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
