package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/ports"
)

// AccessTokenRepository is an in-memory ports.AccessTokenRepository.
type AccessTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]domainauth.AccessToken
}

// NewAccessTokenRepository constructs an empty AccessTokenRepository.
func NewAccessTokenRepository() *AccessTokenRepository {
	return &AccessTokenRepository{tokens: make(map[string]domainauth.AccessToken)}
}

func cloneToken(t domainauth.AccessToken) *domainauth.AccessToken {
	t.Scopes = slices.Clone(t.Scopes)
	t.Collections = slices.Clone(t.Collections)
	return &t
}

func (r *AccessTokenRepository) Create(_ context.Context, t *domainauth.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tokens {
		if existing.TokenHash == t.TokenHash {
			return apperrors.Conflict("token hash already exists")
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.tokens[t.ID] = *cloneToken(*t)
	return nil
}

func (r *AccessTokenRepository) GetByHash(_ context.Context, hash string) (*domainauth.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			return cloneToken(t), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (r *AccessTokenRepository) GetByID(_ context.Context, id string) (*domainauth.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneToken(t), nil
}

func (r *AccessTokenRepository) List(_ context.Context) ([]*domainauth.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainauth.AccessToken, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, cloneToken(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *AccessTokenRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return false, nil
	}
	delete(r.tokens, id)
	return true, nil
}

func (r *AccessTokenRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt != nil && t.ExpiresAt.Before(cutoff) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *AccessTokenRepository) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return ports.ErrNotFound
	}
	t.LastUsedAt = &at
	r.tokens[id] = t
	return nil
}
