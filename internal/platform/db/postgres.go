package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open initializes a pgx connection pool and pings it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Bootstrap creates the bot's tables when they do not exist yet. The schema is
// small enough that a migration tool would be overkill here.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id   BIGINT PRIMARY KEY,
			username      TEXT NOT NULL DEFAULT '',
			balance       BIGINT NOT NULL DEFAULT 0,
			status        TEXT NOT NULL DEFAULT '',
			strike_count  INT NOT NULL DEFAULT 0,
			lockout_until TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS check_log (
			id            BIGSERIAL PRIMARY KEY,
			ts            TIMESTAMPTZ NOT NULL DEFAULT now(),
			telegram_id   BIGINT NOT NULL,
			username      TEXT NOT NULL DEFAULT '',
			masked_value  TEXT NOT NULL,
			balance_after BIGINT NOT NULL,
			note          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS check_log_user_ts ON check_log (telegram_id, ts)`,
		`CREATE TABLE IF NOT EXISTS spam_log (
			id           BIGSERIAL PRIMARY KEY,
			ts           TIMESTAMPTZ NOT NULL DEFAULT now(),
			telegram_id  BIGINT NOT NULL,
			username     TEXT NOT NULL DEFAULT '',
			count_minute INT NOT NULL,
			strike       INT NOT NULL,
			band         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS qr_log (
			id          BIGSERIAL PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL DEFAULT now(),
			telegram_id BIGINT NOT NULL,
			session_id  TEXT NOT NULL,
			event       TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
	}
	return nil
}
