package assignment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// EntityFinder resolves an entity name before linking it.
type EntityFinder interface {
	FindByName(ctx context.Context, kind entity.Kind, name string) (entity.Entity, error)
}

// Handler manages subject assignment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	finder  EntityFinder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, finder EntityFinder) *Handler {
	return &Handler{logger: logger, service: service, finder: finder}
}

// MountRoutes registers assignment routes relative to a subject subtree
// that already captures {subjectType} and {subjectID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{kind}/{name}", h.assign)
	r.Delete("/{kind}/{name}", h.revoke)
	r.Post("/{kind}/{name}/deny", h.deny)
	r.Delete("/{kind}/{name}/deny", h.undeny)
	r.Get("/{kind}/assigned", h.assigned)
	r.Get("/{kind}/unassigned", h.unassigned)
	r.Get("/{kind}/denied", h.denied)
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (subject.Ref, entity.Kind, bool) {
	kind, err := entity.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Kind", err.Error())
		return subject.Ref{}, "", false
	}
	ref := subject.Ref{Type: chi.URLParam(r, "subjectType"), ID: chi.URLParam(r, "subjectID")}
	return ref, kind, true
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Assign)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Revoke)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Deny)
}

func (h *Handler) undeny(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Undeny)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, subject.Ref, entity.Entity) (bool, error)) {
	ref, kind, ok := h.parse(w, r)
	if !ok {
		return
	}
	ent, err := h.finder.FindByName(r.Context(), kind, chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	changed, err := op(r.Context(), ref, ent)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": changed})
}

func (h *Handler) assigned(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, h.service.SearchAssigned)
}

func (h *Handler) unassigned(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, h.service.SearchUnassigned)
}

func (h *Handler) denied(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, h.service.SearchDenied)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, op func(context.Context, subject.Ref, entity.Kind, shared.PageRequest) (shared.Page[entity.Entity], error)) {
	ref, kind, ok := h.parse(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	req := shared.PageRequest{
		Page:    page,
		PerPage: perPage,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	result, err := op(r.Context(), ref, kind, req)
	if err != nil {
		h.logger.Error("assignment search", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
