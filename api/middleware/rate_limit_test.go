package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/evdms/dealer-backend/internal/workflow"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("vnpay", time.Minute, 2, 0), newFakeRateStore(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/return", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitIPLimitTriggers(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("vnpay", time.Minute, 2, 0), newFakeRateStore(), nil)(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/return", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}

func TestRateLimitUserLimitIsPerActor(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("payments", time.Minute, 0, 1), store, nil)(okHandler())

	send := func(actor workflow.Actor) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/payments", nil)
		req = req.WithContext(WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	first := workflow.Actor{UserID: uuid.New()}
	if code := send(first); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send(first); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for repeat, got %d", code)
	}
	if code := send(workflow.Actor{UserID: uuid.New()}); code != http.StatusOK {
		t.Fatalf("expected other actor unaffected, got %d", code)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("off", 0, 1, 1), store, nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("expected no counters, got %v", store.counts)
	}
}
