package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homegamesio/homedome/model"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS publish_requests (
			request_id       TEXT PRIMARY KEY,
			game_id          TEXT NOT NULL,
			asset_id         TEXT NOT NULL DEFAULT '',
			source_info_hash TEXT NOT NULL DEFAULT '',
			repo_owner       TEXT NOT NULL,
			repo_name        TEXT NOT NULL,
			commit_hash      TEXT NOT NULL DEFAULT '',
			requester        TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'SUBMITTED',
			created          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_requests_game_source ON publish_requests(game_id, source_info_hash);

		CREATE TABLE IF NOT EXISTS publish_events (
			id         TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_date TIMESTAMPTZ NOT NULL DEFAULT now(),
			message    TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_request ON publish_events(request_id, event_date);

		CREATE TABLE IF NOT EXISTS game_versions (
			version_id      TEXT PRIMARY KEY,
			game_id         TEXT NOT NULL,
			squish_version  TEXT NOT NULL,
			request_id      TEXT NOT NULL UNIQUE,
			published_at    TIMESTAMPTZ,
			published_by    TEXT NOT NULL DEFAULT '',
			source_asset_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_versions_game ON game_versions(game_id);

		CREATE TABLE IF NOT EXISTS verification_codes (
			publish_request_id TEXT PRIMARY KEY,
			code               TEXT NOT NULL,
			created            TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS publish_queue (
			id             TEXT PRIMARY KEY,
			body           TEXT NOT NULL,
			visible_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			received_count INT NOT NULL DEFAULT 0,
			created        TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_queue_visible ON publish_queue(visible_at, created);
	`)
	return err
}

var ErrNotFound = errors.New("not found")

// ErrStatusConflict means the request was not in the expected status when a
// guarded transition ran. Under at-least-once delivery this is how redundant
// work is detected.
var ErrStatusConflict = errors.New("request status conflict")

func (db *DB) InsertRequest(ctx context.Context, r *model.PublishRequest) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO publish_requests (request_id, game_id, asset_id, source_info_hash, repo_owner, repo_name, commit_hash, requester, status, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.RequestID, r.GameID, r.AssetID, r.SourceInfoHash, r.RepoOwner, r.RepoName, r.CommitHash, r.Requester, r.Status, r.Created,
	)
	return err
}

func (db *DB) GetRequest(ctx context.Context, requestID string) (*model.PublishRequest, error) {
	var r model.PublishRequest
	err := db.Pool.QueryRow(ctx,
		`SELECT request_id, game_id, asset_id, source_info_hash, repo_owner, repo_name, commit_hash, requester, status, created
		 FROM publish_requests WHERE request_id = $1`, requestID,
	).Scan(&r.RequestID, &r.GameID, &r.AssetID, &r.SourceInfoHash, &r.RepoOwner, &r.RepoName, &r.CommitHash, &r.Requester, &r.Status, &r.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateStatus advances a request's status, enforcing both the legal
// transition graph and that the row is still in the expected status.
func (db *DB) UpdateStatus(ctx context.Context, requestID string, from, to model.Status) error {
	if !model.ValidTransition(from, to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE publish_requests SET status = $1 WHERE request_id = $2 AND status = $3`,
		to, requestID, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s not in %s", ErrStatusConflict, requestID, from)
	}
	return nil
}

func (db *DB) InsertGameVersion(ctx context.Context, v *model.GameVersion) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO game_versions (version_id, game_id, squish_version, request_id, published_at, published_by, source_asset_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.VersionID, v.GameID, v.SquishVersion, v.RequestID, v.PublishedAt, v.PublishedBy, v.SourceAssetID,
	)
	return err
}

func (db *DB) GetGameVersionByRequest(ctx context.Context, requestID string) (*model.GameVersion, error) {
	var v model.GameVersion
	err := db.Pool.QueryRow(ctx,
		`SELECT version_id, game_id, squish_version, request_id, published_at, published_by, source_asset_id
		 FROM game_versions WHERE request_id = $1`, requestID,
	).Scan(&v.VersionID, &v.GameID, &v.SquishVersion, &v.RequestID, &v.PublishedAt, &v.PublishedBy, &v.SourceAssetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (db *DB) CreateVerificationCode(ctx context.Context, requestID, code string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO verification_codes (publish_request_id, code)
		 VALUES ($1, $2)
		 ON CONFLICT (publish_request_id) DO UPDATE SET code = $2, created = now()`,
		requestID, code,
	)
	return err
}

// ConfirmPublish consumes the verification code and publishes the request in
// a single transaction. The code is single-use: it is only spent when every
// step commits. Returns false when the code does not match; a failed
// transition rolls everything back, code included.
func (db *DB) ConfirmPublish(ctx context.Context, requestID, code string, at time.Time) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM verification_codes WHERE publish_request_id = $1 AND code = $2`,
		requestID, code,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	for _, step := range []struct{ from, to model.Status }{
		{model.StatusPendingConfirmation, model.StatusApproved},
		{model.StatusApproved, model.StatusPublished},
	} {
		tag, err = tx.Exec(ctx,
			`UPDATE publish_requests SET status = $1 WHERE request_id = $2 AND status = $3`,
			step.to, requestID, step.from,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() != 1 {
			return false, fmt.Errorf("%w: %s not in %s", ErrStatusConflict, requestID, step.from)
		}
	}

	tag, err = tx.Exec(ctx,
		`UPDATE game_versions SET published_at = $1 WHERE request_id = $2 AND published_at IS NULL`,
		at, requestID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, fmt.Errorf("no unpublished version for request %s", requestID)
	}

	return true, tx.Commit(ctx)
}

// Healthy checks the database connection.
func (db *DB) Healthy(ctx context.Context) error {
	var n int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}
