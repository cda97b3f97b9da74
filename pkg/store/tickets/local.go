package tickets

import (
	"context"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/models/store"
	duckdbtickets "github.com/ops-tools/remedia/pkg/store/duckdb/tickets"
)

// localBackend writes tickets to the DuckDB store. It is the backend of last
// resort: a failure here is a FatalConfigurationError, surfaced by the chain.
type localBackend struct {
	store duckdbtickets.Store
}

func NewLocalBackend(store duckdbtickets.Store) *localBackend {
	return &localBackend{store: store}
}

func (l *localBackend) Kind() string { return "local" }

func (l *localBackend) Create(ctx context.Context, rec store.TicketRecord) (string, error) {
	ticketID, err := l.store.CreateTicket(ctx, rec)
	if err != nil {
		return "", &UnavailableError{Backend: l.Kind(), Cause: err}
	}
	return ticketID, nil
}

func (l *localBackend) Update(ctx context.Context, ticketID string, status domain.TicketStatus, comment string) error {
	if err := l.store.UpdateTicket(ctx, ticketID, string(status), comment); err != nil {
		return &UnavailableError{Backend: l.Kind(), Cause: err}
	}
	return nil
}
