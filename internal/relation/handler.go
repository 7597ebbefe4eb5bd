package relation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/platform/httpx"
)

// EntityFinder resolves entity names before linking them.
type EntityFinder interface {
	FindByName(ctx context.Context, kind entity.Kind, name string) (entity.Entity, error)
}

// Handler manages entity-to-entity link endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	finder  EntityFinder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, finder EntityFinder) *Handler {
	return &Handler{logger: logger, service: service, finder: finder}
}

// MountRoutes registers link routes, e.g. POST /roles/editor/permissions/edit-posts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{parentKind}/{parentName}/{childKind}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/", h.replace)
		r.Post("/{childName}", h.attach)
		r.Delete("/{childName}", h.detach)
	})
}

func (h *Handler) parents(w http.ResponseWriter, r *http.Request) (entity.Entity, entity.Kind, bool) {
	parentKind, err := entity.ParseKind(singular(chi.URLParam(r, "parentKind")))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Kind", err.Error())
		return entity.Entity{}, "", false
	}
	childKind, err := entity.ParseKind(singular(chi.URLParam(r, "childKind")))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Kind", err.Error())
		return entity.Entity{}, "", false
	}
	parent, err := h.finder.FindByName(r.Context(), parentKind, chi.URLParam(r, "parentName"))
	if err != nil {
		httpx.RespondError(w, err)
		return entity.Entity{}, "", false
	}
	return parent, childKind, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	parent, childKind, ok := h.parents(w, r)
	if !ok {
		return
	}
	children, err := h.service.Children(r.Context(), parent, childKind)
	if err != nil {
		h.logger.Error("list children", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if children == nil {
		children = []entity.Entity{}
	}
	httpx.JSON(w, http.StatusOK, children)
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	parent, childKind, ok := h.parents(w, r)
	if !ok {
		return
	}
	child, err := h.finder.FindByName(r.Context(), childKind, chi.URLParam(r, "childName"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Attach(r.Context(), parent, child); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) detach(w http.ResponseWriter, r *http.Request) {
	parent, childKind, ok := h.parents(w, r)
	if !ok {
		return
	}
	child, err := h.finder.FindByName(r.Context(), childKind, chi.URLParam(r, "childName"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.Detach(r.Context(), parent, child)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type replaceRequest struct {
	Names []string `json:"names"`
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	parent, childKind, ok := h.parents(w, r)
	if !ok {
		return
	}
	var req replaceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	wanted := make([]entity.Entity, 0, len(req.Names))
	for _, name := range req.Names {
		child, err := h.finder.FindByName(r.Context(), childKind, name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		wanted = append(wanted, child)
	}
	if err := h.service.ReplaceChildren(r.Context(), parent, childKind, wanted); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// singular maps the plural URL segments to kind names.
func singular(s string) string {
	switch s {
	case "permissions":
		return "permission"
	case "roles":
		return "role"
	case "teams":
		return "team"
	case "features":
		return "feature"
	}
	return s
}
