package middleware

import (
	"net/http"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
)

// RequireCapability lets the request through when the actor holds any of the capabilities.
// Ownership checks (which dealer, which quote author) stay in the workflow services.
func RequireCapability(logg *logger.Logger, capabilities ...enums.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			for _, c := range capabilities {
				if actor.Has(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "capability required").
				WithDetails(map[string]any{"required": capabilities}))
		})
	}
}
