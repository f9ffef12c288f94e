package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/repository"
)

var _ repository.UserStore = (*UserStore)(nil)

// UserStore keeps the user collection as one JSON document under a single
// key, the same layout as the users database file.
type UserStore struct {
	client RedisClient
	key    string
}

func NewUserStore(client RedisClient, key string) *UserStore {
	return &UserStore{client: client, key: key}
}

func (s *UserStore) Load(ctx context.Context) ([]model.UserProfile, error) {
	raw, err := s.client.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []model.UserProfile{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	if strings.TrimSpace(raw) == "" {
		return []model.UserProfile{}, nil
	}
	var users []model.UserProfile
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return users, nil
}

func (s *UserStore) Store(ctx context.Context, users []model.UserProfile) error {
	if users == nil {
		users = []model.UserProfile{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := s.client.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
