package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/auth"
	"github.com/tracehub-ai/tracehub/internal/cases"
	"github.com/tracehub-ai/tracehub/internal/decision"
	"github.com/tracehub-ai/tracehub/internal/ingest"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

const (
	headerAPIKey    = "x-api-key"
	headerProjectID = "x-project-id"

	defaultPageSize = 50
	maxPageSize     = 100
)

// HandlersDeps bundles the dependencies of the HTTP handlers.
type HandlersDeps struct {
	DB       *storage.DB
	Resolver *auth.Resolver
	Ingest   *ingest.Service
	Decision *decision.Service
	Cases    *cases.Service
	Logger   *slog.Logger
}

// Handlers implements the HTTP API endpoints.
type Handlers struct {
	db       *storage.DB
	resolver *auth.Resolver
	ingest   *ingest.Service
	decision *decision.Service
	cases    *cases.Service
	logger   *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:       deps.DB,
		resolver: deps.Resolver,
		ingest:   deps.Ingest,
		decision: deps.Decision,
		cases:    deps.Cases,
		logger:   deps.Logger,
	}
}

// project authenticates a tenant-scoped request.
func (h *Handlers) project(r *http.Request) (model.Project, error) {
	return h.resolver.Resolve(r.Context(), r.Header.Get(headerAPIKey), r.Header.Get(headerProjectID))
}

// ingestProject authenticates an ingest-path request, activating the project
// key on its first successful use.
func (h *Handlers) ingestProject(r *http.Request) (model.Project, error) {
	return h.resolver.ResolveIngest(r.Context(), r.Header.Get(headerAPIKey), r.Header.Get(headerProjectID))
}

// admin authenticates an admin-only request. The returned project is nil
// when no x-project-id header was supplied.
func (h *Handlers) admin(r *http.Request) (*model.Project, error) {
	return h.resolver.RequireAdmin(r.Context(), r.Header.Get(headerAPIKey), r.Header.Get(headerProjectID))
}

// pathUUID parses the {id} path segment.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, model.Validationf("%s must be a UUID", name)
	}
	return id, nil
}

// pagination parses page and page_size query parameters.
func pagination(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = 1, defaultPageSize
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, model.Validationf("page must be a positive integer")
		}
	}
	if v := q.Get("page_size"); v != "" {
		pageSize, err = strconv.Atoi(v)
		if err != nil || pageSize < 1 || pageSize > maxPageSize {
			return 0, 0, model.Validationf("page_size must be between 1 and %d", maxPageSize)
		}
	}
	return page, pageSize, nil
}

// queryStr returns a pointer to a non-empty query parameter.
func queryStr(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, model.Validationf("%s must be RFC 3339", name)
	}
	return &t, nil
}

// HandleHealth reports liveness and database reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check database ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]string{"status": status})
}

// HandleHealthz is the bare liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
