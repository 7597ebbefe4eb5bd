package entity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
)

// UsageChecker reports whether any subject still holds an entity; destructive
// operations are gated on it.
type UsageChecker interface {
	ExistsForEntity(ctx context.Context, ent Entity) (bool, error)
}

// Handler manages entity management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	usage    UsageChecker
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, usage UsageChecker) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		usage:    usage,
		validate: validator.New(),
	}
}

// MountRoutes registers entity routes under a kind-parameterised tree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Get("/", h.page)
		r.Post("/", h.create)
		r.Get("/{name}", h.show)
		r.Patch("/{name}", h.rename)
		r.Delete("/{name}", h.remove)
		r.Post("/{name}/deactivate", h.deactivate)
		r.Post("/{name}/reactivate", h.reactivate)
		r.Post("/{name}/default-grant", h.grantByDefault)
		r.Delete("/{name}/default-grant", h.revokeDefaultGrant)
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (Kind, bool) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Kind", err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	req := pageRequestFromQuery(r)
	page, err := h.service.Page(r.Context(), kind, req)
	if err != nil {
		h.logger.Error("page entities", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), kind, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	found, err := h.service.FindByName(r.Context(), kind, chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	renamed, err := h.service.Rename(r.Context(), kind, chi.URLParam(r, "name"), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, renamed)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if h.usage != nil {
		found, err := h.service.FindByName(r.Context(), kind, name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		inUse, err := h.usage.ExistsForEntity(r.Context(), found)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if inUse {
			httpx.Problem(w, http.StatusConflict, "Entity In Use", "entity is still assigned to at least one subject")
			return
		}
	}
	deleted, err := h.service.Delete(r.Context(), kind, name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Deactivate)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reactivate)
}

func (h *Handler) grantByDefault(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.GrantByDefault)
}

func (h *Handler) revokeDefaultGrant(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.RevokeDefaultGrant)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, Kind, string) (Entity, error)) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	updated, err := op(r.Context(), kind, chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func pageRequestFromQuery(r *http.Request) shared.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return shared.PageRequest{
		Page:    page,
		PerPage: perPage,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
}
