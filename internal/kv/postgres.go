package kv

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresBackend struct {
	db *sql.DB
}

func NewPostgres(dsn string) (Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/bleflow?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	b := &postgresBackend{db: db}
	if err := b.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *postgresBackend) init(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT PRIMARY KEY,
			event_time DOUBLE PRECISION NOT NULL,
			payload TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Upsert resolves the conflict inside a single statement, so it is
// atomic without an explicit transaction. Ties go to the incoming row.
func (b *postgresBackend) Upsert(ctx context.Context, key string, payload []byte, eventTime float64) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO kv_state (key, event_time, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET event_time = excluded.event_time, payload = excluded.payload, updated_at = now()
		WHERE excluded.event_time >= kv_state.event_time`,
		key, eventTime, string(payload),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *postgresBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM kv_state WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (b *postgresBackend) Close() error {
	return b.db.Close()
}
