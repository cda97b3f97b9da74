package store

import "time"

// TicketRecord is the backend-facing shape of a ticket. Backends render it
// into their own format (issue body, table row).
type TicketRecord struct {
	FindingID   string
	FindingKey  string
	AccountID   string
	Title       string
	Description string
	Severity    string
	Service     string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IndexEntry maps a finding key to the ticket that already tracks it.
type IndexEntry struct {
	FindingKey string
	TicketID   string
	Backend    string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
