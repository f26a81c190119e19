package entitlement

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/visayasmed/access-management/internal"
)

// Guard turns evaluator decisions into HTTP middleware. Every gated route
// goes through here; handlers never inspect records themselves.
type Guard struct {
	logger *slog.Logger
}

func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{logger: logger}
}

// Require wraps next with an evaluator check for the given requirement.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record, _ := RecordFromContext(r.Context())

			decision := Evaluate(record, req)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			appErr := g.toAppError(decision)
			g.logger.WarnContext(r.Context(), "access denied",
				"path", r.URL.Path,
				"reason", string(decision.Reason),
				"module", string(decision.Module))

			status, body := appErr.ToHTTPResponse()
			writeJSON(w, status, body)
		})
	}
}

// RequireAuthenticated gates a route on any live session.
func (g *Guard) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.Require(AnyAuthenticated())
}

// RequireAdmin gates a route on the admin flag.
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return g.Require(AdminOnly())
}

// RequireModule gates a route on a named module grant.
func (g *Guard) RequireModule(id ModuleID) func(http.Handler) http.Handler {
	return g.Require(HasModule(id))
}

func (g *Guard) toAppError(decision Decision) *internal.AppError {
	switch decision.Reason {
	case DenyNotAdmin:
		return internal.ErrNotAdmin
	case DenyModuleNotGranted:
		return internal.ErrModuleNotGranted
	default:
		return internal.ErrUnauthenticated
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
