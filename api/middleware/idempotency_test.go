package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

type replayStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newReplayStore() *replayStore {
	return &replayStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *replayStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *replayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return nil
}

func (s *replayStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	return true, s.Set(ctx, key, value, ttl)
}

func (s *replayStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *replayStore) IdempotencyKey(scope, id string) string {
	return "mb:idempotency:" + scope + ":" + id
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	fmt.Fprintf(w, `{"call":%d}`, h.calls)
}

func idempotentPost(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code
}

func TestReplayTTLMatchesRequestPaths(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/v1/checkout/paynow", checkoutReplayTTL, true},
		{http.MethodPost, "/api/v1/checkout/card/intents/", checkoutReplayTTL, true},
		{http.MethodPost, "/api/v1/admin/orders/5f1c/status", adminReplayTTL, true},
		{http.MethodPost, "/api/v1/admin/inventory/reset", adminReplayTTL, true},
		{http.MethodPost, "/api/v1/admin/orders//status", 0, false},
		{http.MethodPost, "/api/v1/admin/orders/5f1c/status/extra", 0, false},
		{http.MethodGet, "/api/v1/checkout/paynow", 0, false},
		{http.MethodPost, "/api/v1/checkout/fees", 0, false},
		{http.MethodPost, "/api/v1/door/validate", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := replayTTL(tt.method, tt.path)
		if ok != tt.ok || ttl != tt.want {
			t.Fatalf("%s %s: got (%v, %v) want (%v, %v)", tt.method, tt.path, ttl, ok, tt.want, tt.ok)
		}
	}
}

func TestIdempotencyRequiresKey(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(newReplayStore(), nil)(next)

	if rec := serve(h, idempotentPost("/api/v1/checkout/paynow", "", `{}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}
	if rec := serve(h, idempotentPost("/api/v1/checkout/paynow", strings.Repeat("k", 256), `{}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized key, got %d", rec.Code)
	}
	if next.calls != 0 {
		t.Fatalf("handler must not run without a usable key")
	}
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newReplayStore()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(store, nil)(next)

	first := serve(h, idempotentPost("/api/v1/checkout/paynow", "order-1", `{"qty":2}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	second := serve(h, idempotentPost("/api/v1/checkout/paynow", "order-1", `{"qty":2}`))
	if second.Code != http.StatusCreated || second.Body.String() != `{"call":1}` {
		t.Fatalf("expected replay of first response, got %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" || second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("replay headers missing: %v", second.Header())
	}
	if next.calls != 1 {
		t.Fatalf("handler ran %d times", next.calls)
	}
	for key, ttl := range store.ttls {
		if ttl != checkoutReplayTTL {
			t.Fatalf("%s stored with ttl %v", key, ttl)
		}
	}
}

func TestIdempotencyRejectsDifferentBodyUnderSameKey(t *testing.T) {
	h := Idempotency(newReplayStore(), nil)(&countingHandler{status: http.StatusOK})
	serve(h, idempotentPost("/api/v1/checkout/paynow", "order-2", `{"qty":1}`))

	rec := serve(h, idempotentPost("/api/v1/checkout/paynow", "order-2", `{"qty":9}`))
	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyConflictsWhileFirstRequestRuns(t *testing.T) {
	store := newReplayStore()
	var inner *httptest.ResponseRecorder
	var h http.Handler
	h = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = serve(h, idempotentPost("/api/v1/checkout/paynow", "order-3", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	if rec := serve(h, idempotentPost("/api/v1/checkout/paynow", "order-3", `{}`)); rec.Code != http.StatusCreated {
		t.Fatalf("expected first request to complete, got %d", rec.Code)
	}
	if inner.Code != http.StatusConflict || errorCode(t, inner) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected in-progress conflict, got %d %s", inner.Code, inner.Body.String())
	}
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := newReplayStore()
	next := &countingHandler{status: http.StatusServiceUnavailable}
	h := Idempotency(store, nil)(next)

	serve(h, idempotentPost("/api/v1/checkout/card/intents", "order-4", `{}`))
	if len(store.data) != 0 {
		t.Fatalf("5xx responses must not be stored, have %v", store.data)
	}
	next.status = http.StatusOK
	if rec := serve(h, idempotentPost("/api/v1/checkout/card/intents", "order-4", `{}`)); rec.Code != http.StatusOK {
		t.Fatalf("expected retry to run, got %d", rec.Code)
	}
	if next.calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", next.calls)
	}
}

func TestIdempotencyScopesReplayToCredential(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	h := Idempotency(newReplayStore(), nil)(next)

	admin := idempotentPost("/api/v1/admin/inventory/reset", "reset-1", `{}`)
	admin.Header.Set("Authorization", "Bearer admin-token")
	serve(h, admin)

	anonymous := idempotentPost("/api/v1/admin/inventory/reset", "reset-1", `{}`)
	if rec := serve(h, anonymous); rec.Header().Get(replayedHeader) != "" {
		t.Fatalf("anonymous caller must not receive the admin replay")
	}
	if next.calls != 2 {
		t.Fatalf("expected separate execution per credential, got %d", next.calls)
	}
}

func TestIdempotencySkipsUnlistedRoutes(t *testing.T) {
	store := newReplayStore()
	h := Idempotency(store, nil)(&countingHandler{status: http.StatusOK})

	if rec := serve(h, idempotentPost("/api/v1/door/validate", "", `{}`)); rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d records", len(store.data))
	}
}
