package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Policy is a named collection of versioned rule sets.
type Policy struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicyVersion is one immutable revision of a policy's rule definition.
// At most one version per policy is active, enforced at write time.
type PolicyVersion struct {
	ID            uuid.UUID `json:"id"`
	PolicyID      uuid.UUID `json:"policy_id"`
	Version       int       `json:"version"`
	EffectiveFrom time.Time `json:"effective_from"`
	Active        bool      `json:"active"`
	Definition    JSONMap   `json:"definition"`
	CreatedAt     time.Time `json:"created_at"`
}

// VersionKey returns the opaque "policy_id:vN" key recorded on decisions
// and used to partition the judge cache.
func (v PolicyVersion) VersionKey() string {
	return v.PolicyID.String() + ":v" + strconv.Itoa(v.Version)
}
