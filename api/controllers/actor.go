package controllers

import (
	"net/http"

	"github.com/evdms/dealer-backend/api/middleware"
	"github.com/evdms/dealer-backend/internal/workflow"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
)

func actorFrom(r *http.Request) (workflow.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return workflow.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
