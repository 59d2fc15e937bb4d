package coursechat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Haoxincode/coursechat/internal/stream"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeEvents(t *testing.T, w http.ResponseWriter, events ...stream.Event) {
	t.Helper()
	sink := stream.NewSSEWriter(w)
	for _, ev := range events {
		if err := sink.Write(context.Background(), ev); err != nil {
			t.Errorf("write event: %v", err)
		}
	}
	_ = sink.Close()
}

func responseEvent(answer string) stream.Event {
	return stream.DataReplace(stream.KindResponse, stream.ResponseID, map[string]any{
		"reasoning":  "",
		"answer":     answer,
		"sources":    []map[string]any{{"id": "src-0", "documentId": "guide", "documentName": "Guide", "section": "Ch 4"}},
		"confidence": nil,
	})
}

func TestNew_Validation(t *testing.T) {
	for _, base := range []string{"", "localhost:8080", "ftp://x"} {
		if _, err := New(base); err == nil {
			t.Errorf("New(%q): expected error", base)
		}
	}
	if _, err := New("http://localhost:8080/"); err != nil {
		t.Errorf("trailing slash should be accepted: %v", err)
	}
}

func TestChat_StreamsUpdatesAndReply(t *testing.T) {
	var gotReq ChatRequest
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		writeEvents(t, w,
			stream.Start("msg-1"),
			responseEvent("Teams"),
			responseEvent("Teams of 4-5."),
			stream.DataReplace(stream.KindMetadata, stream.MetadataID, map[string]any{
				"confidence": "high", "sourcesCount": 1, "totalTokens": 42,
			}),
			stream.Finish(),
		)
	}, WithAPIKey("secret"))

	var updates []string
	reply, err := c.Chat(context.Background(), ChatRequest{
		SessionID: "s-1",
		Messages:  []Message{UserMessage("How big are teams?")},
	}, func(r Response) { updates = append(updates, r.Answer) })
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.SessionID != "s-1" || len(gotReq.Messages) != 1 || gotReq.Messages[0].Parts[0].Text != "How big are teams?" {
		t.Errorf("request = %+v", gotReq)
	}
	if strings.Join(updates, "|") != "Teams|Teams of 4-5." {
		t.Errorf("updates = %v", updates)
	}
	if reply.MessageID != "msg-1" || reply.Response.Answer != "Teams of 4-5." {
		t.Errorf("reply = %+v", reply)
	}
	if len(reply.Response.Sources) != 1 || reply.Response.Sources[0].DocumentID != "guide" {
		t.Errorf("sources = %+v", reply.Response.Sources)
	}
	if reply.Metadata["totalTokens"] != float64(42) {
		t.Errorf("metadata = %v", reply.Metadata)
	}
}

func TestChat_ErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvents(t, w, stream.Start("msg-2"), responseEvent("Te"), stream.Error("upstream reset"))
	})

	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("q")}}, nil)

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StreamError, got %v", err)
	}
	if se.MessageID != "msg-2" || se.Text != "upstream reset" {
		t.Errorf("stream error = %+v", se)
	}
}

func TestChat_TruncatedStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"type":"start","messageId":"m"}`+"\n\n")
	})

	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("q")}}, nil)
	if !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("expected ErrIncompleteStream, got %v", err)
	}
}

func TestChat_RejectedBeforeStreaming(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty", http.StatusBadRequest, `{"error":"Messages cannot be empty","code":"bad_request"}`, ErrBadRequest},
		{"quota", http.StatusPaymentRequired, `{"error":"Token budget exhausted.","code":"token_quota_exceeded"}`, ErrQuotaExceeded},
		{"provider", http.StatusBadGateway, `{"error":"unavailable","code":"llm_provider_error"}`, ErrProviderUnavailable},
		{"no docs", http.StatusServiceUnavailable, `{"error":"none","code":"no_documents"}`, ErrNoDocuments},
		{"auth", http.StatusUnauthorized, `{"code":"unauthorized","message":"invalid api key"}`, ErrUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.Chat(context.Background(), ChatRequest{}, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Message == "" {
				t.Errorf("api error = %+v", apiErr)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tc.want)
			}
		})
	}
}

func TestAssistantMessage_RoundTrips(t *testing.T) {
	conf := "high"
	msg := AssistantMessage(Reply{MessageID: "msg-9", Response: Response{Answer: "A", Confidence: &conf}})

	if msg.Role != RoleAssistant || msg.ID != "msg-9" || len(msg.Parts) != 1 {
		t.Fatalf("message = %+v", msg)
	}
	p := msg.Parts[0]
	if p.Type != "data-response" || p.ID != stream.ResponseID {
		t.Errorf("part = %+v", p)
	}
	var got Response
	if err := json.Unmarshal(p.Data, &got); err != nil || got.Answer != "A" {
		t.Errorf("data = %s (%v)", p.Data, err)
	}
}

func TestDocuments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		var in NewDocument
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Document{ID: "doc-1", Name: in.Name, Content: in.Content})
	})
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		_, _ = io.WriteString(w, `{"items":[{"id":"doc-1","name":"N","size":3}],"nextCursor":"1","hasMore":true}`)
	})
	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"document_not_found","message":"document not found"}`)
	})
	mux.HandleFunc("DELETE /api/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux.ServeHTTP)
	ctx := context.Background()

	doc, err := c.CreateDocument(ctx, NewDocument{Name: "N", Content: "abc"})
	if err != nil || doc.ID != "doc-1" || doc.Content != "abc" {
		t.Fatalf("CreateDocument = %+v, %v", doc, err)
	}

	page, err := c.ListDocuments(ctx, "", 1)
	if err != nil || len(page.Documents) != 1 || page.NextCursor != "1" {
		t.Fatalf("ListDocuments = %+v, %v", page, err)
	}

	if _, err := c.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument error = %v, want ErrNotFound", err)
	}
	if err := c.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Errorf("DeleteDocument: %v", err)
	}
}

func TestHealth_UnhealthyIsNotAnError(t *testing.T) {
	status := http.StatusServiceUnavailable
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"status":"error","checks":{"database":"error","llm":"ok"}}`)
	})

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "error" || h.Checks["database"] != "error" {
		t.Errorf("health = %+v", h)
	}
}

func TestUsage_PeriodQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period") != "day" {
			t.Errorf("period = %q", r.URL.Query().Get("period"))
		}
		_, _ = io.WriteString(w, `{"period":"day","provider":"openai","usage":{"requests":2,"tokens":30},"budget":{"tokensLimit":100,"tokensRemaining":70,"isExhausted":false}}`)
	})

	u, err := c.Usage(context.Background(), PeriodDay)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Usage.Requests != 2 || u.Budget.TokensRemaining != 70 {
		t.Errorf("usage = %+v", u)
	}
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvents(t, w, stream.Start("m"), responseEvent("x"), stream.Finish())
	}, WithPrometheus(reg), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if _, err := c.Chat(context.Background(), ChatRequest{}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	obs := c.obs.metrics
	if got := testutil.ToFloat64(obs.operations.WithLabelValues("chat", "ok")); got != 1 {
		t.Errorf("chat ok operations = %v", got)
	}
	if got := testutil.ToFloat64(obs.events.WithLabelValues(stream.TypeStart)); got != 1 {
		t.Errorf("start events = %v", got)
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New("http://localhost", WithPrometheus(reg)); err != nil {
		t.Fatalf("first client: %v", err)
	}
	if _, err := New("http://localhost", WithPrometheus(reg)); err != nil {
		t.Fatalf("second client on the same registry: %v", err)
	}
}
