package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is the in-process backend used with the memory event store.
type MemoryRepository struct {
	Now func() time.Time

	mu     sync.Mutex
	users  map[string]User
	tokens map[string]RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		Now:    func() time.Time { return time.Now().UTC() },
		users:  map[string]User{},
		tokens: map[string]RefreshToken{},
	}
}

func (r *MemoryRepository) EnsureSchema(ctx context.Context) error { return nil }

func (r *MemoryRepository) CreateUser(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, userID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.TokenID] = token
	return nil
}

func (r *MemoryRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && t.RevokedAt == nil && t.ExpiresAt.After(now) {
			return t, nil
		}
	}
	return RefreshToken{}, ErrNotFound
}

func (r *MemoryRepository) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil
	}
	now := r.Now()
	t.RevokedAt = &now
	r.tokens[tokenID] = t
	return nil
}
