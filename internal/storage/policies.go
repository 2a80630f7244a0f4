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

const policyVersionCols = `id, policy_id, version, effective_from, active, definition, created_at`

func scanPolicyVersion(row pgx.Row) (model.PolicyVersion, error) {
	var v model.PolicyVersion
	err := row.Scan(&v.ID, &v.PolicyID, &v.Version, &v.EffectiveFrom, &v.Active, &v.Definition, &v.CreatedAt)
	return v, err
}

// CreatePolicy inserts a policy together with version 1 of its definition.
func (s *Store) CreatePolicy(ctx context.Context, projectID uuid.UUID, req model.PolicyCreateRequest) (model.Policy, model.PolicyVersion, error) {
	now := time.Now().UTC()
	p := model.Policy{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
	}
	v := model.PolicyVersion{
		ID:            uuid.New(),
		PolicyID:      p.ID,
		Version:       1,
		EffectiveFrom: req.EffectiveFrom.UTC(),
		Active:        req.Active,
		Definition:    req.Definition,
		CreatedAt:     now,
	}

	if _, err := s.q.Exec(ctx,
		`INSERT INTO policies (id, project_id, name, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.ProjectID, p.Name, p.Description, p.CreatedAt,
	); err != nil {
		return model.Policy{}, model.PolicyVersion{}, conflictOr(fmt.Errorf("storage: create policy: %w", err))
	}
	if _, err := s.q.Exec(ctx,
		`INSERT INTO policy_versions (id, policy_id, version, effective_from, active, definition, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.PolicyID, v.Version, v.EffectiveFrom, v.Active, v.Definition, v.CreatedAt,
	); err != nil {
		return model.Policy{}, model.PolicyVersion{}, conflictOr(fmt.Errorf("storage: create policy version: %w", err))
	}
	return p, v, nil
}

// GetPolicy retrieves a policy by ID, scoped to the given project.
func (s *Store) GetPolicy(ctx context.Context, projectID, id uuid.UUID) (model.Policy, error) {
	var p model.Policy
	err := s.q.QueryRow(ctx,
		`SELECT id, project_id, name, description, created_at
		 FROM policies WHERE id = $1 AND project_id = $2`, id, projectID,
	).Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Policy{}, ErrNotFound
		}
		return model.Policy{}, fmt.Errorf("storage: get policy: %w", err)
	}
	return p, nil
}

// ListPolicies returns all policies of a project, newest first.
func (s *Store) ListPolicies(ctx context.Context, projectID uuid.UUID) ([]model.Policy, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, project_id, name, description, created_at
		 FROM policies WHERE project_id = $1
		 ORDER BY created_at DESC`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list policies: %w", err)
	}
	defer rows.Close()

	policies := []model.Policy{}
	for rows.Next() {
		var p model.Policy
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// ListPolicyVersions returns every version of a policy, newest version first.
func (s *Store) ListPolicyVersions(ctx context.Context, policyID uuid.UUID) ([]model.PolicyVersion, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+policyVersionCols+` FROM policy_versions
		 WHERE policy_id = $1 ORDER BY version DESC`, policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list policy versions: %w", err)
	}
	defer rows.Close()

	versions := []model.PolicyVersion{}
	for rows.Next() {
		v, err := scanPolicyVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan policy version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ActivatePolicyVersion makes version N of the policy the single active
// version, deactivating the rest.
func (s *Store) ActivatePolicyVersion(ctx context.Context, policyID uuid.UUID, version int) (model.PolicyVersion, error) {
	if _, err := s.q.Exec(ctx,
		`UPDATE policy_versions SET active = FALSE WHERE policy_id = $1 AND version <> $2`,
		policyID, version,
	); err != nil {
		return model.PolicyVersion{}, fmt.Errorf("storage: deactivate policy versions: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE policy_versions SET active = TRUE WHERE policy_id = $1 AND version = $2`,
		policyID, version,
	)
	if err != nil {
		return model.PolicyVersion{}, fmt.Errorf("storage: activate policy version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.PolicyVersion{}, ErrNotFound
	}
	return s.GetPolicyVersion(ctx, policyID, version)
}

// GetPolicyVersion retrieves one exact version of a policy.
func (s *Store) GetPolicyVersion(ctx context.Context, policyID uuid.UUID, version int) (model.PolicyVersion, error) {
	v, err := scanPolicyVersion(s.q.QueryRow(ctx,
		`SELECT `+policyVersionCols+` FROM policy_versions
		 WHERE policy_id = $1 AND version = $2`, policyID, version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PolicyVersion{}, ErrNotFound
		}
		return model.PolicyVersion{}, fmt.Errorf("storage: get policy version: %w", err)
	}
	return v, nil
}

// GetActivePolicyVersion retrieves the active version of one policy.
func (s *Store) GetActivePolicyVersion(ctx context.Context, policyID uuid.UUID) (model.PolicyVersion, error) {
	v, err := scanPolicyVersion(s.q.QueryRow(ctx,
		`SELECT `+policyVersionCols+` FROM policy_versions
		 WHERE policy_id = $1 AND active = TRUE
		 ORDER BY version DESC LIMIT 1`, policyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PolicyVersion{}, ErrNotFound
		}
		return model.PolicyVersion{}, fmt.Errorf("storage: get active policy version: %w", err)
	}
	return v, nil
}

// ResolveActivePolicyVersion finds the governing version across all of the
// project's policies: active, effective no later than now, preferring the
// latest effective_from and then the highest version.
func (s *Store) ResolveActivePolicyVersion(ctx context.Context, projectID uuid.UUID, now time.Time) (model.PolicyVersion, error) {
	v, err := scanPolicyVersion(s.q.QueryRow(ctx,
		`SELECT v.id, v.policy_id, v.version, v.effective_from, v.active, v.definition, v.created_at
		 FROM policy_versions v
		 JOIN policies p ON p.id = v.policy_id
		 WHERE p.project_id = $1 AND v.active = TRUE AND v.effective_from <= $2
		 ORDER BY v.effective_from DESC, v.version DESC
		 LIMIT 1`, projectID, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PolicyVersion{}, ErrNotFound
		}
		return model.PolicyVersion{}, fmt.Errorf("storage: resolve active policy version: %w", err)
	}
	return v, nil
}
