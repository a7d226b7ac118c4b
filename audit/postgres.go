package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, evt *Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO publish_events (id, request_id, event_type, event_date, message)
		 VALUES ($1, $2, $3, $4, $5)`,
		evt.ID, evt.RequestID, evt.Type, evt.Timestamp, evt.Message,
	)
	return err
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, event_type, event_date, message
		 FROM publish_events WHERE request_id = $1 ORDER BY event_date ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.RequestID, &evt.Type, &evt.Timestamp, &evt.Message); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
