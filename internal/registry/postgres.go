package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/pulse/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS pulse_projects (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	subscription_project_id TEXT NOT NULL,
	color                   TEXT NOT NULL DEFAULT '',
	attribution_app_ids     TEXT[] NOT NULL DEFAULT '{}',
	position                INTEGER NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresRegistry stores projects in the pulse_projects table.
type PostgresRegistry struct{ db *sql.DB }

// NewPostgresRegistry creates a Postgres-backed registry.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry { return &PostgresRegistry{db: db} }

// EnsureSchema creates the projects table if it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create pulse_projects: %w", err)
	}
	return nil
}

// Seed inserts projects that are not stored yet. Existing rows are left alone.
func (r *PostgresRegistry) Seed(ctx context.Context, projects []domain.Project) error {
	for _, p := range projects {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO pulse_projects (id, name, subscription_project_id, color, attribution_app_ids, position)
			VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(position) + 1, 0) FROM pulse_projects))
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Name, p.SubscriptionProjectID, p.Color, pq.Array(p.AttributionAppIDs))
		if err != nil {
			return fmt.Errorf("seed project %s: %w", p.ID, err)
		}
	}
	return nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subscription_project_id, color, attribution_app_ids
		FROM pulse_projects
		ORDER BY position, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.SubscriptionProjectID, &p.Color, pq.Array(&p.AttributionAppIDs)); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, subscription_project_id, color, attribution_app_ids
		FROM pulse_projects
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SubscriptionProjectID, &p.Color, pq.Array(&p.AttributionAppIDs))
	if err == sql.ErrNoRows {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *PostgresRegistry) Save(ctx context.Context, p domain.Project) (domain.Project, error) {
	p, err := prepare(p)
	if err != nil {
		return p, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pulse_projects (id, name, subscription_project_id, color, attribution_app_ids, position)
		VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(position) + 1, 0) FROM pulse_projects))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			subscription_project_id = EXCLUDED.subscription_project_id,
			color = EXCLUDED.color,
			attribution_app_ids = EXCLUDED.attribution_app_ids,
			updated_at = NOW()
	`, p.ID, p.Name, p.SubscriptionProjectID, p.Color, pq.Array(p.AttributionAppIDs))
	if err != nil {
		return p, fmt.Errorf("save project: %w", err)
	}
	return p, nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pulse_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
