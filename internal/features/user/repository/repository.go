package repository

import (
	"context"
	"time"

	"ordercheck-bot-backend/internal/features/user/models"
)

// UserRepository reads the roster and persists punishment state.
type UserRepository interface {
	// GetByTelegramID returns (nil, nil) when the user is not registered.
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	ListTelegramIDs(ctx context.Context) ([]int64, error)
	// SetPunishment writes both punishment fields atomically.
	SetPunishment(ctx context.Context, telegramID int64, strikeCount int, lockoutUntil time.Time) error
	// ClearPunishment resets strike count and lockout together, so a lockout
	// that has run its course also amnesties the strikes.
	ClearPunishment(ctx context.Context, telegramID int64) error
	AdjustBalance(ctx context.Context, telegramID int64, delta int64) (int64, error)
}
