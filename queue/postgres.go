package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue implements visibility-timeout semantics over the
// publish_queue table: receiving a message hides it for the timeout window
// instead of removing it, so an unacknowledged delivery comes back.
type PostgresQueue struct {
	pool       *pgxpool.Pool
	visibility time.Duration
}

func NewPostgresQueue(pool *pgxpool.Pool, visibility time.Duration) *PostgresQueue {
	if visibility <= 0 {
		visibility = 60 * time.Second
	}
	return &PostgresQueue{pool: pool, visibility: visibility}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	id := uuid.New().String()
	_, err := q.pool.Exec(ctx,
		`INSERT INTO publish_queue (id, body) VALUES ($1, $2)`,
		id, string(body),
	)
	return id, err
}

func (q *PostgresQueue) Receive(ctx context.Context) (*Message, error) {
	var msg Message
	var body string
	err := q.pool.QueryRow(ctx,
		`UPDATE publish_queue
		 SET visible_at = now() + $1, received_count = received_count + 1
		 WHERE id = (
			SELECT id FROM publish_queue
			WHERE visible_at <= now()
			ORDER BY created
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, body`,
		q.visibility,
	).Scan(&msg.Receipt, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.Body = []byte(body)
	return &msg, nil
}

func (q *PostgresQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM publish_queue WHERE id = $1`, receipt)
	return err
}
