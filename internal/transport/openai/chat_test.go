package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
	"github.com/Haoxincode/coursechat/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterLLMMetrics()
	os.Exit(m.Run())
}

// chunkServer streams the given content deltas as OpenAI chat completion chunks,
// followed by a usage-only chunk.
func chunkServer(t *testing.T, deltas []string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if inspect != nil {
			inspect(r)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, d := range deltas {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"model":   "test-model",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": d}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
			if flusher != nil {
				flusher.Flush()
			}
		}
		usage := `{"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}}`
		fmt.Fprintf(w, "data: %s\n\n", usage)
		io.WriteString(w, "data: [DONE]\n\n")
	}))
}

func newTestClient(url string) *Client {
	return NewClient(&Config{
		APIKey:      "test-key",
		BaseURL:     url,
		Model:       "test-model",
		Temperature: 0.2,
		Provider:    "test",
		Logger:      zap.NewNop(),
	})
}

func TestClient_StreamAnswer(t *testing.T) {
	deltas := []string{
		`{"reasoning":"Chapter 4`,
		` covers it.","answer":"Hi`,
		` there`,
		`!","sources":[{"document_id":1,"document_name":"Guide","section":"Chapter 4"}],`,
		`"confidence":"high"}`,
	}

	var gotBody map[string]any
	server := chunkServer(t, deltas, func(r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
	})
	defer server.Close()

	prompt := domain.Prompt{
		System: "You are a course assistant.",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "How big are teams?"},
		},
	}

	s, err := newTestClient(server.URL).StreamAnswer(context.Background(), prompt)
	if err != nil {
		t.Fatalf("StreamAnswer failed: %v", err)
	}
	defer s.Close()

	var answers []string
	for {
		snap, ok, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		if snap.Answer != nil {
			answers = append(answers, *snap.Answer)
		}
	}

	if len(answers) == 0 {
		t.Fatal("expected partial answers")
	}
	if answers[0] != "Hi" {
		t.Errorf("first partial answer = %q, want %q", answers[0], "Hi")
	}

	final, err := s.Final(context.Background())
	if err != nil {
		t.Fatalf("Final failed: %v", err)
	}
	if final.Answer == nil || *final.Answer != "Hi there!" {
		t.Errorf("final answer = %v", final.Answer)
	}
	if len(final.Sources) != 1 || *final.Sources[0].DocumentID != 1 {
		t.Errorf("final sources = %+v", final.Sources)
	}

	usage := s.Usage()
	if usage.TotalTokens != 150 || usage.PromptTokens != 120 || usage.CompletionTokens != 30 {
		t.Errorf("usage = %+v", usage)
	}

	if gotBody["stream"] != true {
		t.Errorf("expected stream=true, got %v", gotBody["stream"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first message role = %v", first["role"])
	}
	format, _ := gotBody["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", gotBody["response_format"])
	}
}

func TestClient_SnapshotsAreDistinct(t *testing.T) {
	// The second and third deltas add nothing parseable.
	deltas := []string{`{"answer":"A`, `","reas`, `oning":`, `"r"}`}
	server := chunkServer(t, deltas, nil)
	defer server.Close()

	s, err := newTestClient(server.URL).StreamAnswer(context.Background(), domain.Prompt{})
	if err != nil {
		t.Fatalf("StreamAnswer failed: %v", err)
	}
	defer s.Close()

	var n int
	for {
		_, ok, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		n++
	}
	// {"answer":"A"}, {"answer":"A","reasoning":"r"}
	if n != 2 {
		t.Errorf("expected 2 distinct snapshots, got %d", n)
	}
}

func TestClient_FinalMalformed(t *testing.T) {
	server := chunkServer(t, []string{"I cannot answer ", "that."}, nil)
	defer server.Close()

	s, err := newTestClient(server.URL).StreamAnswer(context.Background(), domain.Prompt{})
	if err != nil {
		t.Fatalf("StreamAnswer failed: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Next(context.Background()); ok || err != nil {
		t.Fatalf("expected no snapshots, got ok=%v err=%v", ok, err)
	}
	_, err = s.Final(context.Background())
	if !errors.Is(err, domain.ErrMalformedAnswer) {
		t.Fatalf("expected ErrMalformedAnswer, got %v", err)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).StreamAnswer(context.Background(), domain.Prompt{})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Errorf("expected ErrLLMProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error should carry the provider message, got %q", err)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	server := chunkServer(t, []string{`{"answer":"x"}`}, nil)
	defer server.Close()

	s, err := newTestClient(server.URL).StreamAnswer(context.Background(), domain.Prompt{})
	if err != nil {
		t.Fatalf("StreamAnswer failed: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"id":"test-model","object":"model"}]}`)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestParseAPIError_Detail(t *testing.T) {
	err := parseAPIError(errors.New("connection reset"))
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("expected ErrLLMProviderError, got %v", err)
	}

	if got := extractDetail([]byte(`{"detail":"model not found"}`)); got != "model not found" {
		t.Errorf("extractDetail = %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("extractDetail = %q", got)
	}
}
