package repository

import (
	"context"

	"telegram-relay-bot/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

// UserStore persists the whole user collection at once. Load on a store that
// was never written returns an empty slice and no error.
type UserStore interface {
	Load(ctx context.Context) ([]model.UserProfile, error)
	Store(ctx context.Context, users []model.UserProfile) error
}
