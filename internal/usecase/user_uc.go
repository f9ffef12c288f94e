package usecase

import (
	"context"
	"fmt"
	"sync"

	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/repository"
	"telegram-relay-bot/internal/infra/logging"
	"telegram-relay-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase owns the lifecycle of user profiles. Every mutation is a full
// read-modify-write of the stored collection.
type UserUseCase interface {
	ListAll(ctx context.Context) ([]model.UserProfile, error)
	GetOrCreate(ctx context.Context, id int64) (model.UserProfile, error)
	Save(ctx context.Context, profile model.UserProfile) error
	Update(ctx context.Context, id int64, mutate func(*model.UserProfile)) (model.UserProfile, error)
}

type userUC struct {
	store repository.UserStore
	log   *zerolog.Logger

	// mu serializes writers; readers share it so a listing never observes a
	// half-applied mutation.
	mu sync.RWMutex
}

func NewUserUseCase(store repository.UserStore, logger *zerolog.Logger) *userUC {
	return &userUC{
		store: store,
		log:   logger,
	}
}

func (u *userUC) ListAll(ctx context.Context) ([]model.UserProfile, error) {
	defer logging.TraceDuration(u.log, "UserUC.ListAll")()

	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.load(ctx)
}

func (u *userUC) GetOrCreate(ctx context.Context, id int64) (model.UserProfile, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetOrCreate")()

	u.mu.RLock()
	users, err := u.load(ctx)
	u.mu.RUnlock()
	if err != nil {
		return model.NewUserProfile(id), err
	}
	if i := indexOf(users, id); i >= 0 {
		return users[i], nil
	}

	// Not found: re-check under the writer lock, another handler may have
	// created it in between.
	u.mu.Lock()
	defer u.mu.Unlock()
	users, err = u.load(ctx)
	if err != nil {
		return model.NewUserProfile(id), err
	}
	if i := indexOf(users, id); i >= 0 {
		return users[i], nil
	}
	profile := model.NewUserProfile(id)
	if err := u.persist(ctx, append(users, profile)); err != nil {
		return profile, err
	}
	metrics.IncUserCreated()
	u.log.Info().Int64("tg_id", id).Msg("user profile created")
	return profile, nil
}

func (u *userUC) Save(ctx context.Context, profile model.UserProfile) error {
	defer logging.TraceDuration(u.log, "UserUC.Save")()

	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.load(ctx)
	if err != nil {
		return err
	}
	if i := indexOf(users, profile.ID); i >= 0 {
		users[i] = profile
	} else {
		users = append(users, profile)
	}
	return u.persist(ctx, users)
}

// Update applies mutate to the profile with the given id, creating the default
// profile first when it does not exist, and persists the result.
func (u *userUC) Update(ctx context.Context, id int64, mutate func(*model.UserProfile)) (model.UserProfile, error) {
	defer logging.TraceDuration(u.log, "UserUC.Update")()

	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.load(ctx)
	if err != nil {
		return model.UserProfile{}, err
	}
	i := indexOf(users, id)
	created := i < 0
	if created {
		users = append(users, model.NewUserProfile(id))
		i = len(users) - 1
	}
	mutate(&users[i])
	users[i].ID = id

	if err := u.persist(ctx, users); err != nil {
		return model.UserProfile{}, err
	}
	if created {
		metrics.IncUserCreated()
	}
	return users[i], nil
}

func (u *userUC) load(ctx context.Context) ([]model.UserProfile, error) {
	users, err := u.store.Load(ctx)
	if err != nil {
		metrics.IncStoreError("load")
		return nil, fmt.Errorf("load users: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (u *userUC) persist(ctx context.Context, users []model.UserProfile) error {
	if err := u.store.Store(ctx, users); err != nil {
		metrics.IncStoreError("store")
		return fmt.Errorf("store users: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func indexOf(users []model.UserProfile, id int64) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}
