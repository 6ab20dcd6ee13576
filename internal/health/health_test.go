package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthy() Checker {
	return NewFuncChecker("ok", func(context.Context) error { return nil })
}

func failing(msg string) Checker {
	return NewFuncChecker("bad", func(context.Context) error { return errors.New(msg) })
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", healthy())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Fatalf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Fatalf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Statuses(t *testing.T) {
	cases := []struct {
		name       string
		register   func(h *Handler)
		wantStatus Status
		wantCode   int
		wantReady  int
	}{
		{
			name:       "critical failure",
			register:   func(h *Handler) { h.RegisterChecker("storage", failing("db down")) },
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
			wantReady:  http.StatusServiceUnavailable,
		},
		{
			name: "optional failure",
			register: func(h *Handler) {
				h.RegisterChecker("storage", healthy())
				h.RegisterOptional("redis", failing("redis down"))
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
		},
		{
			name:       "no checks",
			register:   func(*Handler) {},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler("test")
			tc.register(handler)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %d", tc.wantCode, w.Code)
			}
			var response Response
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if response.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, response.Status)
			}

			ready := httptest.NewRecorder()
			handler.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if ready.Code != tc.wantReady {
				t.Fatalf("expected readiness %d, got %d", tc.wantReady, ready.Code)
			}
		})
	}
}

func TestEvaluate_RespectsTimeout(t *testing.T) {
	handler := NewHandler("test")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	response := handler.Evaluate(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("evaluate must not outlive the check timeout")
	}
	if response.Checks["slow"].Status != StatusUnhealthy {
		t.Fatalf("expected slow check to fail, got %+v", response.Checks["slow"])
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response %d %q", w.Code, w.Body.String())
	}
}
