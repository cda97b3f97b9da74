package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const TicketsSchema = `
	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id VARCHAR NOT NULL,
		finding_id VARCHAR NOT NULL,
		finding_key VARCHAR NOT NULL,
		account_id VARCHAR NOT NULL,
		service VARCHAR,
		severity VARCHAR,
		title VARCHAR,
		description VARCHAR,
		status VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (ticket_id)
	);
`

const TicketCommentsSchema = `
	CREATE TABLE IF NOT EXISTS ticket_comments (
		ticket_id VARCHAR NOT NULL,
		body VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
`

// finding_index is the durable dedup index: it maps a finding key to the
// ticket already tracking it, across backends and across process restarts.
const FindingIndexSchema = `
	CREATE TABLE IF NOT EXISTS finding_index (
		finding_key VARCHAR NOT NULL,
		ticket_id VARCHAR NOT NULL,
		backend VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (finding_key)
	);
`

var bootQueries = []string{
	TicketsSchema,
	TicketCommentsSchema,
	FindingIndexSchema,
}

type Settings struct {
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", settings.DbPath), func(exec driver.ExecerContext) error {
		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	return db, nil
}
