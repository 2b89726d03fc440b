package middleware

import (
	"net/http"
	"strings"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/internal/workflow"
	pkgAuth "github.com/evdms/dealer-backend/pkg/auth"
	"github.com/evdms/dealer-backend/pkg/config"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the resolved actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			for _, capability := range claims.Capabilities {
				if !capability.IsValid() {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown capability in token"))
					return
				}
			}

			actor := workflow.Actor{
				UserID:       claims.UserID,
				DealerID:     claims.DealerID,
				Capabilities: claims.Capabilities,
			}
			ctx := WithActor(r.Context(), actor)

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				if claims.DealerID != nil {
					ctx = logg.WithDealerID(ctx, claims.DealerID.String())
				}
				roles := make([]string, 0, len(claims.Capabilities))
				for _, c := range claims.Capabilities {
					roles = append(roles, c.String())
				}
				ctx = logg.WithActorRole(ctx, strings.Join(roles, ","))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
