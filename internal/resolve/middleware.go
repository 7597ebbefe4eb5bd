package resolve

import (
	"log/slog"
	"net/http"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/subject"
)

// Guard wires effective-permission checks into HTTP handlers.
type Guard struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireAny ensures the acting subject effectively holds at least one of
// the named permissions.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := subject.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := g.Engine.EffectiveNames(r.Context(), actor, entity.KindPermission)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("guard require any", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			held := make(map[string]struct{}, len(granted))
			for _, name := range granted {
				held[name] = struct{}{}
			}
			for _, name := range perms {
				if _, ok := held[name]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the acting subject effectively holds every named
// permission.
func (g Guard) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := subject.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := g.Engine.EffectiveNames(r.Context(), actor, entity.KindPermission)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("guard require all", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			held := make(map[string]struct{}, len(granted))
			for _, name := range granted {
				held[name] = struct{}{}
			}
			for _, name := range perms {
				if _, ok := held[name]; !ok {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
