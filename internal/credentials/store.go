// Package credentials stores API secrets keyed by purpose and project.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Purpose names what a secret is used for.
type Purpose string

const (
	Subscription Purpose = "subscription"
	TextGen      Purpose = "textgen"
	Attribution  Purpose = "attribution"
)

// Scope identifies one secret. An empty ProjectID is the global secret of
// that purpose.
type Scope struct {
	Purpose   Purpose
	ProjectID string
}

// Global returns the project-independent scope for p.
func Global(p Purpose) Scope {
	return Scope{Purpose: p}
}

// ForProject returns the scope of p for one project.
func ForProject(p Purpose, projectID string) Scope {
	return Scope{Purpose: p, ProjectID: projectID}
}

// Key resolves the storage key under prefix.
func (s Scope) Key(prefix string) string {
	if s.ProjectID == "" {
		return fmt.Sprintf("%s.%s.global", prefix, s.Purpose)
	}
	return fmt.Sprintf("%s.%s.project.%s", prefix, s.Purpose, s.ProjectID)
}

func (s Scope) String() string {
	return s.Key("")[1:]
}

// Store is a key/value secret store. Get returns "" for a missing secret.
type Store interface {
	Get(ctx context.Context, scope Scope) (string, error)
	Save(ctx context.Context, scope Scope, secret string) error
	Delete(ctx context.Context, scope Scope) error
}

// Lookup returns the project secret for purpose, falling back to the
// global one when the project has none.
func Lookup(ctx context.Context, store Store, purpose Purpose, projectID string) (string, error) {
	if projectID != "" {
		secret, err := store.Get(ctx, ForProject(purpose, projectID))
		if err != nil {
			return "", err
		}
		if secret != "" {
			return secret, nil
		}
	}
	return store.Get(ctx, Global(purpose))
}

// MemoryStore keeps secrets in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	prefix  string
	secrets map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{prefix: prefix, secrets: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, scope Scope) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secrets[scope.Key(m.prefix)], nil
}

func (m *MemoryStore) Save(_ context.Context, scope Scope, secret string) error {
	secret = strings.TrimSpace(secret)
	m.mu.Lock()
	defer m.mu.Unlock()
	if secret == "" {
		delete(m.secrets, scope.Key(m.prefix))
		return nil
	}
	m.secrets[scope.Key(m.prefix)] = secret
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, scope Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, scope.Key(m.prefix))
	return nil
}
