// Package auth resolves api keys to projects.
//
// Keys are opaque "proj_"-prefixed strings; only the hex SHA-256 of a key
// participates in lookup. The admin seed (or the literal "dev-key" in a
// dev environment) may act on behalf of any project named by the
// x-project-id header.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// Sentinel errors mapped to HTTP statuses by the server package.
var (
	// ErrUnauthorized indicates a missing or unknown api key (401).
	ErrUnauthorized = errors.New("auth: invalid api key")

	// ErrForbidden indicates an inactive project, a scope mismatch, or a
	// non-admin caller on an admin endpoint (403).
	ErrForbidden = errors.New("auth: forbidden")

	// ErrKeyNotProvisioned indicates an ingest call against a project
	// whose key has never been used (403).
	ErrKeyNotProvisioned = errors.New("auth: key not provisioned")
)

// KeyPrefix marks every generated project api key.
const KeyPrefix = "proj_"

// GenerateKey returns a fresh plaintext api key and its hex SHA-256 hash.
func GenerateKey() (key, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("auth: generate key: %w", err)
	}
	key = KeyPrefix + hex.EncodeToString(raw)
	return key, HashKey(key), nil
}

// HashKey returns the hex SHA-256 digest used for key lookup.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Resolver authenticates requests against the projects table.
type Resolver struct {
	db        *storage.DB
	adminSeed string
	dev       bool
	logger    *slog.Logger
}

// NewResolver builds a Resolver. dev enables the "dev-key" admin shortcut.
func NewResolver(db *storage.DB, adminSeed string, dev bool, logger *slog.Logger) *Resolver {
	return &Resolver{db: db, adminSeed: adminSeed, dev: dev, logger: logger}
}

// IsAdmin reports whether apiKey is the admin seed (or the dev shortcut).
func (r *Resolver) IsAdmin(apiKey string) bool {
	if apiKey == "" {
		return false
	}
	if apiKey == r.adminSeed {
		return true
	}
	return r.dev && apiKey == "dev-key"
}

// Resolve authenticates a request and returns the project it is scoped to.
// projectIDHeader is the raw x-project-id header value, empty when absent.
func (r *Resolver) Resolve(ctx context.Context, apiKey, projectIDHeader string) (model.Project, error) {
	if apiKey == "" {
		return model.Project{}, ErrUnauthorized
	}

	if r.IsAdmin(apiKey) && projectIDHeader != "" {
		return r.resolveAdmin(ctx, projectIDHeader)
	}

	p, err := r.resolveByKey(ctx, apiKey)
	if err != nil {
		return model.Project{}, err
	}
	if projectIDHeader != "" && projectIDHeader != p.ID.String() {
		return model.Project{}, ErrForbidden
	}
	return p, nil
}

// ResolveIngest is the ingest-path variant: the first successful use of a
// project key activates it; an admin acting on behalf of a project whose
// key was never used is refused.
func (r *Resolver) ResolveIngest(ctx context.Context, apiKey, projectIDHeader string) (model.Project, error) {
	if apiKey == "" {
		return model.Project{}, ErrUnauthorized
	}

	if r.IsAdmin(apiKey) && projectIDHeader != "" {
		p, err := r.resolveAdmin(ctx, projectIDHeader)
		if err != nil {
			return model.Project{}, err
		}
		if !p.KeyActivated {
			return model.Project{}, ErrKeyNotProvisioned
		}
		return p, nil
	}

	p, err := r.resolveByKey(ctx, apiKey)
	if err != nil {
		return model.Project{}, err
	}
	if projectIDHeader != "" && projectIDHeader != p.ID.String() {
		return model.Project{}, ErrForbidden
	}
	if !p.KeyActivated {
		if err := r.db.Store().MarkKeyActivated(ctx, p.ID); err != nil {
			return model.Project{}, err
		}
		p.KeyActivated = true
		r.logger.Info("project key activated", "project_id", p.ID)
	}
	return p, nil
}

// RequireAdmin authenticates an admin-only endpoint and returns the target
// project when a project-id header is supplied.
func (r *Resolver) RequireAdmin(ctx context.Context, apiKey, projectIDHeader string) (*model.Project, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}
	if !r.IsAdmin(apiKey) {
		return nil, ErrForbidden
	}
	if projectIDHeader == "" {
		return nil, nil
	}
	p, err := r.resolveAdmin(ctx, projectIDHeader)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Resolver) resolveAdmin(ctx context.Context, projectIDHeader string) (model.Project, error) {
	id, err := uuid.Parse(projectIDHeader)
	if err != nil {
		return model.Project{}, storage.ErrNotFound
	}
	p, err := r.db.Store().GetProject(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if !p.IsActive {
		return model.Project{}, ErrForbidden
	}
	return p, nil
}

func (r *Resolver) resolveByKey(ctx context.Context, apiKey string) (model.Project, error) {
	p, err := r.db.Store().GetProjectByKeyHash(ctx, HashKey(apiKey))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Project{}, ErrUnauthorized
		}
		return model.Project{}, err
	}
	if !p.IsActive {
		return model.Project{}, ErrUnauthorized
	}
	return p, nil
}
