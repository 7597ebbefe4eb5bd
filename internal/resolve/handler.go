package resolve

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/subject"
)

// ResolutionObserver counts served resolutions per kind.
type ResolutionObserver interface {
	ObserveResolution(kind string)
}

// Handler exposes effective-access queries.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	observer ResolutionObserver
}

// NewHandler builds Handler instance. observer may be nil.
func NewHandler(logger *slog.Logger, engine *Engine, observer ResolutionObserver) *Handler {
	return &Handler{logger: logger, engine: engine, observer: observer}
}

// MountRoutes registers resolution routes relative to a subject subtree
// that already captures {subjectType} and {subjectID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/effective/{kind}", h.effective)
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	kind, err := entity.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Kind", err.Error())
		return
	}
	ref := subject.Ref{Type: chi.URLParam(r, "subjectType"), ID: chi.URLParam(r, "subjectID")}
	if h.observer != nil {
		h.observer.ObserveResolution(kind.String())
	}
	if r.URL.Query().Get("verbose") == "1" {
		accesses, err := h.engine.Resolve(r.Context(), ref, kind)
		if err != nil {
			h.logger.Error("resolve verbose", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, accesses)
		return
	}
	records, err := h.engine.Effective(r.Context(), ref, kind)
	if err != nil {
		h.logger.Error("resolve effective", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, records)
}
