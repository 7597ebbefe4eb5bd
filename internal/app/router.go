package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/assignment"
	"github.com/gatekit/gatekit/internal/cache"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/observability"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/relation"
	"github.com/gatekit/gatekit/internal/resolve"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	EntityHandler     *entity.Handler
	RelationHandler   *relation.Handler
	AssignmentHandler *assignment.Handler
	ResolveHandler    *resolve.Handler
	Guard             resolve.Guard
	Cache             *cache.Versioned
	Metrics           *observability.Metrics
}

// NewRouter builds the HTTP router.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config}) {
		r.Use(mw)
	}
	if p.Metrics != nil {
		r.Use(p.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/entities", p.EntityHandler.MountRoutes)
		r.Route("/relations", p.RelationHandler.MountRoutes)
		r.Route("/subjects", func(r chi.Router) {
			r.Route("/{subjectType}/{subjectID}", func(r chi.Router) {
				p.AssignmentHandler.MountRoutes(r)
				p.ResolveHandler.MountRoutes(r)
			})
		})
		r.Group(func(r chi.Router) {
			if p.Config != nil && p.Config.AdminPermission != "" {
				r.Use(p.Guard.RequireAny(p.Config.AdminPermission))
			}
			r.Delete("/admin/cache", func(w http.ResponseWriter, req *http.Request) {
				if err := p.Cache.Clear(req.Context()); err != nil {
					httpx.RespondError(w, err)
					return
				}
				httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
			})
		})
	})

	return r
}
