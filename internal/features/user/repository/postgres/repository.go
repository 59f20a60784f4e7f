package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordercheck-bot-backend/internal/features/user/models"
	"ordercheck-bot-backend/internal/features/user/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT telegram_id, username, balance, status, strike_count, lockout_until
		FROM users WHERE telegram_id = $1
	`, telegramID).Scan(&u.TelegramID, &u.Username, &u.Balance, &u.Status, &u.StrikeCount, &u.LockoutUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &u, nil
}

func (r *Repository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT telegram_id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) SetPunishment(ctx context.Context, telegramID int64, strikeCount int, lockoutUntil time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET strike_count = $2, lockout_until = $3, updated_at = now()
		WHERE telegram_id = $1
	`, telegramID, strikeCount, lockoutUntil)
	if err != nil {
		return fmt.Errorf("failed to set punishment for %d: %w", telegramID, err)
	}
	return nil
}

func (r *Repository) ClearPunishment(ctx context.Context, telegramID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET strike_count = 0, lockout_until = NULL, updated_at = now()
		WHERE telegram_id = $1
	`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to clear punishment for %d: %w", telegramID, err)
	}
	return nil
}

func (r *Repository) AdjustBalance(ctx context.Context, telegramID int64, delta int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET balance = balance + $2, updated_at = now()
		WHERE telegram_id = $1
		RETURNING balance
	`, telegramID, delta).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance for %d: %w", telegramID, err)
	}
	return balance, nil
}
