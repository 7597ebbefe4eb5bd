package entity

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

type staticUsage struct {
	inUse bool
}

func (u staticUsage) ExistsForEntity(context.Context, Entity) (bool, error) {
	return u.inUse, nil
}

func newTestRouter(t *testing.T, usage UsageChecker) (chi.Router, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	handler := NewHandler(slog.New(slog.DiscardHandler), svc, usage)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := subject.ContextWithActor(req.Context(), subject.Ref{Type: "user", ID: "admin"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	return r, svc
}

func TestHandlerCreateAndShow(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/permission", strings.NewReader(`{"name":"edit-posts"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "edit-posts", created.Name)
	require.True(t, created.IsActive)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permission/edit-posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/permission", strings.NewReader(`{"name":""}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/permission", strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUnknownKindIs404(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widget/anything", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDuplicateIsConflict(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/role", strings.NewReader(`{"name":"editor"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/role", strings.NewReader(`{"name":"editor"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerDeleteGatedOnUsage(t *testing.T) {
	r, svc := newTestRouter(t, staticUsage{inUse: true})
	ctx := subject.ContextWithActor(context.Background(), subject.Ref{Type: "user", ID: "admin"})
	_, err := svc.Create(ctx, KindPermission, "edit-posts")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/permission/edit-posts", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	// Still present.
	found, err := svc.FindByName(ctx, KindPermission, "edit-posts")
	require.NoError(t, err)
	require.False(t, found.Deleted())
}

func TestHandlerLifecycleRoutes(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feature", strings.NewReader(`{"name":"dark-mode"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feature/dark-mode/default-grant", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.True(t, updated.GrantByDefault)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feature/dark-mode/deactivate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feature/missing/reactivate", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerPageEnvelope(t *testing.T) {
	r, svc := newTestRouter(t, nil)
	ctx := subject.ContextWithActor(context.Background(), subject.Ref{Type: "user", ID: "admin"})
	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := svc.Create(ctx, KindPermission, name)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permission?page=2&per_page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page shared.Page[Entity]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.CurrentPage)
	require.Equal(t, 2, page.LastPage)
	require.Len(t, page.Data, 1)
	require.Equal(t, 3, page.From)
	require.Equal(t, 3, page.To)
}
