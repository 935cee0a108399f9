package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tableserve/tableserve-auth/internal/model"
)

// MemoryUserRepository keeps users in process memory. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*model.User
	ordered []*model.User
	now     func() time.Time
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byEmail: make(map[string]*model.User),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email := NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicateEmail
	}

	stored := cloneUser(user)
	stored.ID = uuid.NewString()
	stored.Email = email
	stored.CreatedAt = r.now().UTC()

	r.byEmail[email] = stored
	r.ordered = append(r.ordered, stored)

	user.ID = stored.ID
	user.Email = stored.Email
	user.CreatedAt = stored.CreatedAt
	return nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByUsername returns the earliest registered user with the given username.
func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.ordered {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

// CountByUsername returns how many users share the given username.
func (r *MemoryUserRepository) CountByUsername(ctx context.Context, username string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.ordered {
		if u.Username == username {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored users.
func (r *MemoryUserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.Roles != nil {
		c.Roles = append([]string(nil), u.Roles...)
	}
	return &c
}
