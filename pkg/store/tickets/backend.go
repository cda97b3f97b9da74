// Package tickets implements the ordered ticket backend chain: an issue
// tracker first, then a secondary tracker, then the durable local store as
// the backend of last resort.
package tickets

import (
	"context"
	"fmt"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/models/store"
)

// Backend is one configured ticket destination. Create either fully succeeds
// and returns the prefixed ticket id, or fully fails leaving nothing behind.
type Backend interface {
	Kind() string
	Create(ctx context.Context, rec store.TicketRecord) (string, error)
	Update(ctx context.Context, ticketID string, status domain.TicketStatus, comment string) error
}

// UnavailableError makes the chain advance to the next backend.
type UnavailableError struct {
	Backend string
	Cause   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ticket backend %s unavailable: %v", e.Backend, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// FatalConfigurationError means the backend of last resort itself failed.
// The whole batch aborts; this is a deployment problem, not a runtime
// condition to tolerate.
type FatalConfigurationError struct {
	Cause error
}

func (e *FatalConfigurationError) Error() string {
	return fmt.Sprintf("ticket store chain exhausted, last-resort backend failed: %v", e.Cause)
}

func (e *FatalConfigurationError) Unwrap() error { return e.Cause }
