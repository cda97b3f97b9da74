package tickets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ops-tools/remedia/pkg/models/store"
	"github.com/ops-tools/remedia/pkg/store/duckdb"
)

// Store is the durable local ticket table plus the finding dedup index. It
// backs the last-resort ticket backend and the idempotency check for every
// other backend.
type Store interface {
	CreateTicket(ctx context.Context, rec store.TicketRecord) (string, error)
	UpdateTicket(ctx context.Context, ticketID string, status string, comment string) error
	GetTicket(ctx context.Context, ticketID string) (*store.TicketRecord, error)

	Lookup(ctx context.Context, findingKey string) (*store.IndexEntry, error)
	Bind(ctx context.Context, entry store.IndexEntry) error
	SetStatus(ctx context.Context, findingKey string, status string) error
}

type defaultStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{db: db, now: time.Now}, nil
}

func (s *defaultStore) CreateTicket(ctx context.Context, rec store.TicketRecord) (string, error) {
	now := s.now().UTC()
	ticketID := fmt.Sprintf("TICKET-%s-%s",
		now.Format("20060102150405"),
		strings.Split(uuid.NewString(), "-")[0],
	)

	query := `
		INSERT INTO tickets (
			ticket_id, finding_id, finding_key, account_id, service,
			severity, title, description, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := duckdb.Exec(ctx, s.db).ExecContext(ctx, query,
		ticketID,
		rec.FindingID,
		rec.FindingKey,
		rec.AccountID,
		rec.Service,
		rec.Severity,
		rec.Title,
		rec.Description,
		rec.Status,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("insert ticket: %w", err)
	}
	return ticketID, nil
}

func (s *defaultStore) UpdateTicket(ctx context.Context, ticketID string, status string, comment string) error {
	now := s.now().UTC()
	exec := duckdb.Exec(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE ticket_id = ?`,
		status, now, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", ticketID, err)
	}

	if comment != "" {
		_, err = exec.ExecContext(ctx,
			`INSERT INTO ticket_comments (ticket_id, body, created_at) VALUES (?, ?, ?)`,
			ticketID, comment, now,
		)
		if err != nil {
			return fmt.Errorf("append comment to %s: %w", ticketID, err)
		}
	}
	return nil
}

func (s *defaultStore) GetTicket(ctx context.Context, ticketID string) (*store.TicketRecord, error) {
	query := `
		SELECT finding_id, finding_key, account_id, service, severity,
			title, description, status, created_at, updated_at
		FROM tickets WHERE ticket_id = ?`

	var rec store.TicketRecord
	err := duckdb.Exec(ctx, s.db).QueryRowContext(ctx, query, ticketID).Scan(
		&rec.FindingID,
		&rec.FindingKey,
		&rec.AccountID,
		&rec.Service,
		&rec.Severity,
		&rec.Title,
		&rec.Description,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	return &rec, nil
}

func (s *defaultStore) Lookup(ctx context.Context, findingKey string) (*store.IndexEntry, error) {
	query := `
		SELECT finding_key, ticket_id, backend, status, created_at, updated_at
		FROM finding_index WHERE finding_key = ?`

	var entry store.IndexEntry
	err := duckdb.Exec(ctx, s.db).QueryRowContext(ctx, query, findingKey).Scan(
		&entry.FindingKey,
		&entry.TicketID,
		&entry.Backend,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup finding %s: %w", findingKey, err)
	}
	return &entry, nil
}

func (s *defaultStore) Bind(ctx context.Context, entry store.IndexEntry) error {
	now := s.now().UTC()
	_, err := duckdb.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO finding_index (finding_key, ticket_id, backend, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.FindingKey, entry.TicketID, entry.Backend, entry.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("bind finding %s to ticket %s: %w", entry.FindingKey, entry.TicketID, err)
	}
	return nil
}

func (s *defaultStore) SetStatus(ctx context.Context, findingKey string, status string) error {
	_, err := duckdb.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE finding_index SET status = ?, updated_at = ? WHERE finding_key = ?`,
		status, s.now().UTC(), findingKey,
	)
	if err != nil {
		return fmt.Errorf("set status for finding %s: %w", findingKey, err)
	}
	return nil
}
