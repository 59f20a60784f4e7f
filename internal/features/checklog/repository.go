package checklog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the append-only logs.
type Repository interface {
	AppendChecks(ctx context.Context, entries []CheckEntry) error
	AppendSpam(ctx context.Context, entry SpamEntry) error
	AppendQR(ctx context.Context, entry QREntry) error
	// CountChecksToday counts a user's check rows for the given calendar day.
	CountChecksToday(ctx context.Context, telegramID int64, day time.Time) (int, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) AppendChecks(ctx context.Context, entries []CheckEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO check_log (ts, telegram_id, username, masked_value, balance_after, note)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.Time, e.TelegramID, e.Username, e.MaskedValue, e.BalanceAfter, e.Note)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to append check log: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) AppendSpam(ctx context.Context, entry SpamEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO spam_log (ts, telegram_id, username, count_minute, strike, band)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.Time, entry.TelegramID, entry.Username, entry.CountMinute, entry.Strike, entry.Band)
	if err != nil {
		return fmt.Errorf("failed to append spam log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendQR(ctx context.Context, entry QREntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO qr_log (ts, telegram_id, session_id, event)
		VALUES ($1, $2, $3, $4)
	`, entry.Time, entry.TelegramID, entry.SessionID, entry.Event)
	if err != nil {
		return fmt.Errorf("failed to append qr log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountChecksToday(ctx context.Context, telegramID int64, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM check_log
		WHERE telegram_id = $1 AND ts >= $2 AND ts < $3
	`, telegramID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's checks: %w", err)
	}
	return count, nil
}
