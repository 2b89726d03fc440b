package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evdms/dealer-backend/api/middleware"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Level: zerolog.Disabled, Output: io.Discard})
}

func staffActor(dealerID uuid.UUID) workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), DealerID: &dealerID, Capabilities: []enums.Capability{enums.CapabilityDealerStaff}}
}

func managerActor(dealerID uuid.UUID) workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), DealerID: &dealerID, Capabilities: []enums.Capability{enums.CapabilityDealerManager}}
}

func manufacturerActor() workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), Capabilities: []enums.Capability{enums.CapabilityManufacturerApprover}}
}

// newRequest builds a request carrying the actor and chi URL params.
func newRequest(t *testing.T, method, target string, body any, actor *workflow.Actor, params map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}
