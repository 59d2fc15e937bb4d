package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Haoxincode/coursechat/internal/domain"
	logpkg "github.com/Haoxincode/coursechat/internal/logger"
)

func TestJSONRecoverer(t *testing.T) {
	handler := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/documents", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "internal_error" {
		t.Errorf("body = %v", body)
	}
}

func TestWideEventMiddleware_LogsUsage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Info("inner")
		domain.UsageFromContext(r.Context()).Add(domain.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})
		w.WriteHeader(http.StatusTeapot)
	})
	handler := chiMiddleware.RequestID(wideEventMiddleware(zap.New(core))(inner))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/api/chat/stream", http.NoBody))

	innerLogs := logs.FilterMessage("inner").All()
	if len(innerLogs) != 1 || innerLogs[0].ContextMap()["request_id"] == "" {
		t.Error("handlers must log through the request-scoped logger")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v", fields["status"])
	}
	if fields["total_tokens"] != int64(10) {
		t.Errorf("total_tokens field = %v", fields["total_tokens"])
	}
	if _, ok := fields["request_id"]; !ok {
		t.Error("request_id missing")
	}
}

func TestWideEventMiddleware_NoUsageFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := wideEventMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", http.NoBody))

	fields := logs.All()[0].ContextMap()
	if _, ok := fields["total_tokens"]; ok {
		t.Error("token fields must be omitted for requests without a completion")
	}
}
