package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/repository"
	"telegram-relay-bot/internal/infra/metrics"
)

var _ repository.UserStore = (*UserStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS relay_users (
  seq            BIGSERIAL,
  id             BIGINT PRIMARY KEY,
  username       TEXT    NOT NULL DEFAULT '',
  full_name      TEXT    NOT NULL DEFAULT '',
  is_admin       BOOLEAN NOT NULL DEFAULT FALSE,
  is_banned      BOOLEAN NOT NULL DEFAULT FALSE,
  messages_total BIGINT  NOT NULL DEFAULT 0
);`

const upsertUser = `
INSERT INTO relay_users (id, username, full_name, is_admin, is_banned, messages_total)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  username=EXCLUDED.username, full_name=EXCLUDED.full_name,
  is_admin=EXCLUDED.is_admin, is_banned=EXCLUDED.is_banned,
  messages_total=EXCLUDED.messages_total;`

// UserStore maps the user collection onto the relay_users table. Store
// upserts every profile in one transaction; rows are never deleted.
type UserStore struct {
	pool *pgxpool.Pool
	tm   *TxManager
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool, tm: NewTxManager(pool)}
}

// EnsureSchema creates the relay_users table when missing.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create relay_users: %w", err)
	}
	return nil
}

func (s *UserStore) Load(ctx context.Context) ([]model.UserProfile, error) {
	const q = `
SELECT id, username, full_name, is_admin, is_banned, messages_total
  FROM relay_users ORDER BY seq;`
	defer s.reportPool()
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserProfile, 0)
	for rows.Next() {
		var u model.UserProfile
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.IsAdmin, &u.IsBanned, &u.MessagesSentTotal); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *UserStore) Store(ctx context.Context, users []model.UserProfile) error {
	if len(users) == 0 {
		return nil
	}
	defer s.reportPool()
	return s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range users {
			batch.Queue(upsertUser, u.ID, u.Username, u.FullName, u.IsAdmin, u.IsBanned, u.MessagesSentTotal)
		}
		br := tx.SendBatch(ctx, batch)
		for range users {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert user: %w", err)
			}
		}
		return br.Close()
	})
}

func (s *UserStore) reportPool() {
	st := s.pool.Stat()
	metrics.SetUserStorePool(metrics.PoolSnapshot{
		Max:           st.MaxConns(),
		Open:          st.TotalConns(),
		Idle:          st.IdleConns(),
		Acquired:      st.AcquiredConns(),
		EmptyAcquires: st.EmptyAcquireCount(),
	})
}
