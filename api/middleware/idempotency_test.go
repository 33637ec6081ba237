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

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

var testMember = uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f")

func memberRequest(method, path, body, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithMemberID(req.Context(), testMember))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil, BorrowIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKey+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, memberRequest(http.MethodPost, "/loans", `{}`, key))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for key len %d, got %d", len(key), rec.Code)
		}
	}
	if called {
		t.Fatalf("handler should not run without a usable key")
	}
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil, BorrowIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, memberRequest(http.MethodPost, "/loans", `{"items":[1]}`, "abc"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}
	key := store.IdempotencyKey(testMember.String(), "abc")
	if store.ttls[key] != BorrowIdempotencyTTL {
		t.Fatalf("expected completed record ttl %v, got %v", BorrowIdempotencyTTL, store.ttls[key])
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, memberRequest(http.MethodPost, "/loans", `{"items":[1]}`, "abc"))
	if replay.Code != http.StatusCreated || strings.TrimSpace(replay.Body.String()) != `{"ok":true}` {
		t.Fatalf("unexpected replay %d %s", replay.Code, replay.Body.String())
	}
	if replay.Header().Get("Content-Type") != "application/json" || replay.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", replay.Header())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyRejectsDifferentRequestForSameKey(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil, ReturnIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), memberRequest(http.MethodPost, "/loans/a/return", `{"items":[1]}`, "xyz"))

	for _, req := range []*http.Request{
		memberRequest(http.MethodPost, "/loans/a/return", `{"items":[2]}`, "xyz"),
		memberRequest(http.MethodPost, "/loans/b/return", `{"items":[1]}`, "xyz"),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
			t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, code)
		}
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner http.Handler
	handler := Idempotency(store, nil, BorrowIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a duplicate arrives while the first request is still being served
		rec := httptest.NewRecorder()
		inner.ServeHTTP(rec, memberRequest(http.MethodPost, "/loans", `{}`, "dup"))
		if rec.Code != http.StatusConflict {
			t.Errorf("expected in-flight duplicate to get 409, got %d", rec.Code)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	inner = handler

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, memberRequest(http.MethodPost, "/loans", `{}`, "dup"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	fail := true
	handler := Idempotency(store, nil, BorrowIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, memberRequest(http.MethodPost, "/loans", `{}`, "retry"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released, store has %v", store.data)
	}

	fail = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, memberRequest(http.MethodPost, "/loans", `{}`, "retry"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to run the handler, got %d", rec.Code)
	}
}

func TestIdempotencySkipsReads(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil, BorrowIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, memberRequest(http.MethodGet, "/loans/history", "", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reads to pass through, got %d", rec.Code)
	}
}
