package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const projectCols = `id, name, api_key_hash, current_api_key, is_active, key_activated, created_at`

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.APIKeyHash, &p.CurrentAPIKey, &p.IsActive, &p.KeyActivated, &p.CreatedAt)
	return p, err
}

// CreateProject inserts a new tenant with its initial key hash. The
// plaintext key is stored in current_api_key until first use.
func (s *Store) CreateProject(ctx context.Context, name, apiKeyHash, apiKey string) (model.Project, error) {
	p := model.Project{
		ID:            uuid.New(),
		Name:          name,
		APIKeyHash:    apiKeyHash,
		CurrentAPIKey: &apiKey,
		IsActive:      true,
		KeyActivated:  false,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO projects (id, name, api_key_hash, current_api_key, is_active, key_activated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.APIKeyHash, p.CurrentAPIKey, p.IsActive, p.KeyActivated, p.CreatedAt,
	)
	if err != nil {
		return model.Project{}, conflictOr(fmt.Errorf("storage: create project: %w", err))
	}
	return p, nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	p, err := scanProject(s.q.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// GetProjectByKeyHash retrieves a project by the hex SHA-256 of its api key.
func (s *Store) GetProjectByKeyHash(ctx context.Context, hash string) (model.Project, error) {
	p, err := scanProject(s.q.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE api_key_hash = $1`, hash,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("storage: get project by key hash: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects with per-tenant usage counters,
// newest first.
func (s *Store) ListProjects(ctx context.Context) ([]model.ProjectListItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT p.id, p.name, p.is_active, p.key_activated, p.created_at,
		       (SELECT COUNT(*) FROM traces t WHERE t.project_id = p.id),
		       (SELECT COUNT(*) FROM cases c WHERE c.project_id = p.id AND c.status = 'open')
		FROM projects p
		ORDER BY p.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	items := []model.ProjectListItem{}
	for rows.Next() {
		var it model.ProjectListItem
		if err := rows.Scan(&it.ID, &it.Name, &it.IsActive, &it.KeyActivated, &it.CreatedAt,
			&it.TraceCount, &it.OpenCaseCount); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetProjectActive toggles the soft-delete flag. Deactivated projects keep
// their data but fail auth resolution.
func (s *Store) SetProjectActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE projects SET is_active = $1 WHERE id = $2`, active, id,
	)
	if err != nil {
		return fmt.Errorf("storage: set project active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateProjectKey replaces the key hash, stores the new plaintext for
// admin retrieval, and resets key_activated so first use re-arms it.
func (s *Store) RotateProjectKey(ctx context.Context, id uuid.UUID, apiKeyHash, apiKey string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE projects SET api_key_hash = $1, current_api_key = $2, key_activated = FALSE
		 WHERE id = $3`,
		apiKeyHash, apiKey, id,
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: rotate project key: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkKeyActivated flips key_activated on the first authenticated ingest
// use of a fresh key. Idempotent; the stored plaintext stays available for
// admin retrieval.
func (s *Store) MarkKeyActivated(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.Exec(ctx,
		`UPDATE projects SET key_activated = TRUE
		 WHERE id = $1 AND key_activated = FALSE`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: mark key activated: %w", err)
	}
	return nil
}
