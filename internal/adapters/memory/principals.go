package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

type principalKey struct {
	kind       domainauth.PrincipalKind
	provider   string
	externalID string
}

// PrincipalStore is an in-memory ports.PrincipalStore.
type PrincipalStore struct {
	mu    sync.Mutex
	byKey map[principalKey]string
	byID  map[string]*domainauth.Principal
}

// NewPrincipalStore constructs an empty PrincipalStore.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		byKey: make(map[principalKey]string),
		byID:  make(map[string]*domainauth.Principal),
	}
}

func (s *PrincipalStore) GetOrCreate(_ context.Context, p domainauth.ExternalPrincipal) (string, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return "", errors.New("external id is required")
	}
	key := principalKey{kind: p.Kind, provider: p.Provider, externalID: p.ExternalID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		if p.DisplayName != "" {
			s.byID[id].DisplayName = p.DisplayName
		}
		return id, nil
	}
	id := uuid.NewString()
	s.byKey[key] = id
	s.byID[id] = &domainauth.Principal{
		ID:          id,
		Kind:        p.Kind,
		ExternalID:  p.ExternalID,
		Provider:    p.Provider,
		DisplayName: p.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}
	return id, nil
}

func (s *PrincipalStore) Lookup(_ context.Context, id string) (*domainauth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PrincipalStore) List(_ context.Context, kind domainauth.PrincipalKind) ([]*domainauth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domainauth.Principal, 0, len(s.byID))
	for _, p := range s.byID {
		if kind == "" || p.Kind == kind {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *PrincipalStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	delete(s.byID, id)
	delete(s.byKey, principalKey{kind: p.Kind, provider: p.Provider, externalID: p.ExternalID})
	return true, nil
}
