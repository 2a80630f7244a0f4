package model

import (
	"time"

	"github.com/google/uuid"
)

// Project is a tenant. Every other entity is scoped to exactly one project.
// APIKeyHash is the hex SHA-256 of the current api key; CurrentAPIKey holds
// the plaintext only so an admin can retrieve a freshly rotated key.
type Project struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	APIKeyHash    string    `json:"-"`
	CurrentAPIKey *string   `json:"-"`
	IsActive      bool      `json:"is_active"`
	KeyActivated  bool      `json:"key_activated"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProjectListItem is a project row enriched with tenant usage counters.
type ProjectListItem struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	IsActive      bool      `json:"is_active"`
	KeyActivated  bool      `json:"key_activated"`
	CreatedAt     time.Time `json:"created_at"`
	TraceCount    int       `json:"trace_count"`
	OpenCaseCount int       `json:"open_case_count"`
}
