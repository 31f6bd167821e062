package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a concurrency-safe in-process Directory. It is meant for tests,
// examples and load testing.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]*UserRecord
	byIdent map[string]string
	now     func() time.Time
}

// NewMemory returns an empty Memory directory.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*UserRecord),
		byIdent: make(map[string]string),
		now:     time.Now,
	}
}

func (m *Memory) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byIdent[identifier]
	if !ok || identifier == "" {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// FindByID returns the user with the given id.
func (m *Memory) FindByID(_ context.Context, id string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) CreateUser(_ context.Context, in CreateInput) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &UserRecord{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Username:     in.Username,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: in.PasswordHash,
		Provider:     in.Provider,
		Active:       in.Active,
	}
	if rec.Provider == "" {
		rec.Provider = ProviderLocal
	}
	for _, ident := range rec.Identifiers() {
		if _, taken := m.byIdent[ident]; taken {
			return nil, ErrDuplicate
		}
	}

	now := m.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.users[rec.ID] = rec
	for _, ident := range rec.Identifiers() {
		m.byIdent[ident] = rec.ID
	}

	out := *rec
	return &out, nil
}

func (m *Memory) UpdateUserByID(_ context.Context, id string, patch Patch) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.PasswordHash != nil {
		rec.PasswordHash = *patch.PasswordHash
	}
	if patch.EmailVerified != nil {
		rec.EmailVerified = *patch.EmailVerified
	}
	if patch.Active != nil {
		rec.Active = *patch.Active
	}
	if !patch.Empty() {
		rec.UpdatedAt = m.now()
	}

	out := *rec
	return &out, nil
}

// Delete removes a user and its identifiers.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[id]
	if !ok {
		return
	}
	for _, ident := range rec.Identifiers() {
		delete(m.byIdent, ident)
	}
	delete(m.users, id)
}

// Len returns the number of stored users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
