package auth

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

// memStore is an in-memory Store. WithinTx snapshots the user map and
// restores it when fn fails, so tests can observe rollback.
type memStore struct {
	mu    sync.Mutex
	users map[string]User

	// failRecordLogin makes RecordLogin fail, for best-effort paths.
	failRecordLogin error

	txCount int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]User)}
}

func (m *memStore) Users() UserRepository {
	return &memRepo{store: m}
}

func (m *memStore) WithinTx(_ context.Context, fn func(repo UserRepository) error) error {
	m.mu.Lock()
	m.txCount++
	snapshot := maps.Clone(m.users)
	m.mu.Unlock()

	if err := fn(&memRepo{store: m}); err != nil {
		m.mu.Lock()
		m.users = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// put seeds a user directly.
func (m *memStore) put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// get returns the stored copy of a user by id.
func (m *memStore) get(id string) (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type memRepo struct {
	store *memStore
}

func (r *memRepo) find(match func(u *User) bool) (*User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if match(&u) {
			found := u
			return &found, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

func (r *memRepo) update(id string, fn func(u *User)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return apperror.NewNotFound("user not found")
	}
	fn(&u)
	r.store.users[id] = u
	return nil
}

func (r *memRepo) Create(_ context.Context, user *User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if u.Email == user.Email {
			return ErrDuplicateUser
		}
		if user.OAuthSubjectID != nil && u.OAuthSubjectID != nil && *u.OAuthSubjectID == *user.OAuthSubjectID {
			return ErrDuplicateUser
		}
	}
	r.store.users[user.ID] = *user
	return nil
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return u.Email == email })
}

func (r *memRepo) FindByOAuthSubject(_ context.Context, subjectID string) (*User, error) {
	return r.find(func(u *User) bool { return u.OAuthSubjectID != nil && *u.OAuthSubjectID == subjectID })
}

func (r *memRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *memRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	if r.store.failRecordLogin != nil {
		return r.store.failRecordLogin
	}
	return r.update(id, func(u *User) {
		u.LastLoginAt = &at
		u.LoginCount++
	})
}

func (r *memRepo) LinkOAuthSubject(ctx context.Context, id, subjectID string, verified bool) error {
	if other, err := r.FindByOAuthSubject(ctx, subjectID); err == nil && other.ID != id {
		return ErrDuplicateUser
	}
	return r.update(id, func(u *User) {
		u.OAuthSubjectID = &subjectID
		u.IsVerified = u.IsVerified || verified
	})
}

func (r *memRepo) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(u *User) {
		u.VerificationTokenHash = &tokenHash
		u.VerificationTokenExpiresAt = &expiresAt
	})
}

func (r *memRepo) FindByVerificationToken(_ context.Context, tokenHash string) (*User, error) {
	return r.find(func(u *User) bool {
		return u.VerificationTokenHash != nil && *u.VerificationTokenHash == tokenHash
	})
}

func (r *memRepo) MarkVerified(_ context.Context, id string) error {
	return r.update(id, func(u *User) {
		u.IsVerified = true
		u.VerificationTokenHash = nil
		u.VerificationTokenExpiresAt = nil
	})
}

func (r *memRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(u *User) {
		u.ResetTokenHash = &tokenHash
		u.ResetTokenExpiresAt = &expiresAt
	})
}

func (r *memRepo) FindByResetToken(_ context.Context, tokenHash string) (*User, error) {
	return r.find(func(u *User) bool {
		return u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash
	})
}

func (r *memRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(u *User) {
		u.PasswordHash = &passwordHash
		u.ResetTokenHash = nil
		u.ResetTokenExpiresAt = nil
	})
}
