// Package registry keeps the list of tracked projects.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/domain"
)

var (
	// ErrNotFound is returned for an unknown project id.
	ErrNotFound = errors.New("project not found")
	// ErrInvalid wraps validation failures from Save.
	ErrInvalid = errors.New("invalid project")
)

// Registry stores projects in display order.
type Registry interface {
	List(ctx context.Context) ([]domain.Project, error)
	Get(ctx context.Context, id string) (domain.Project, error)
	// Save creates the project when its ID is empty or unknown, and
	// updates it otherwise. It returns the stored project.
	Save(ctx context.Context, p domain.Project) (domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// FromConfig converts configured projects. Entries without an id get a
// stable id derived from their subscription project id.
func FromConfig(projects []config.ProjectConfig) []domain.Project {
	out := make([]domain.Project, 0, len(projects))
	for _, pc := range projects {
		id := pc.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pulse:"+pc.SubscriptionProjectID)).String()
		}
		out = append(out, domain.Project{
			ID:                    id,
			Name:                  pc.Name,
			SubscriptionProjectID: pc.SubscriptionProjectID,
			Color:                 pc.Color,
			AttributionAppIDs:     cleanAppIDs(pc.AttributionAppIDs),
		})
	}
	return out
}

func prepare(p domain.Project) (domain.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.SubscriptionProjectID = strings.TrimSpace(p.SubscriptionProjectID)
	p.AttributionAppIDs = cleanAppIDs(p.AttributionAppIDs)
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return p, nil
}

func cleanAppIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// MemoryRegistry is an in-process registry, usually seeded from config.
type MemoryRegistry struct {
	mu       sync.RWMutex
	projects []domain.Project
}

// NewMemoryRegistry creates a registry holding seed in order.
func NewMemoryRegistry(seed []domain.Project) *MemoryRegistry {
	return &MemoryRegistry{projects: append([]domain.Project(nil), seed...)}
}

func (m *MemoryRegistry) List(context.Context) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Project(nil), m.projects...), nil
}

func (m *MemoryRegistry) Get(_ context.Context, id string) (domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *MemoryRegistry) Save(_ context.Context, p domain.Project) (domain.Project, error) {
	p, err := prepare(p)
	if err != nil {
		return p, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == p.ID {
			m.projects[i] = p
			return p, nil
		}
	}
	m.projects = append(m.projects, p)
	return p, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.projects {
		if p.ID == id {
			m.projects = append(m.projects[:i], m.projects[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
