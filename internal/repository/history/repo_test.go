package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	rpushFn  func(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error
	lrangeFn func(ctx context.Context, key string, start, stop int64) ([][]byte, error)
}

func (m *mockStore) RPushCapped(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	if m.rpushFn != nil {
		return m.rpushFn(ctx, key, value, maxLen, ttl)
	}
	return nil
}

func (m *mockStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if m.lrangeFn != nil {
		return m.lrangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func testTurn() chat.Turn {
	high := answer.ConfidenceHigh
	return chat.Turn{
		MessageID: "msg-1",
		Question:  "How many students per group?",
		Response: answer.Response{
			Answer:     "4-5 students.",
			Sources:    []answer.ResolvedSource{},
			Confidence: &high,
		},
		Metadata:  map[string]any{"isComplete": true},
		CreatedAt: 1700000000000,
	}
}

func TestAppend(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "", 50, 7*24*time.Hour)

	var stored []byte
	ms.rpushFn = func(_ context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
		if key != "coursechat:session:chat-1" {
			t.Errorf("unexpected key: %s", key)
		}
		if maxLen != 50 || ttl != 7*24*time.Hour {
			t.Errorf("unexpected cap=%d ttl=%v", maxLen, ttl)
		}
		stored = value
		return nil
	}

	if err := repo.Append(context.Background(), "chat-1", testTurn()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(stored, &decoded); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if decoded["messageId"] != "msg-1" || decoded["question"] != "How many students per group?" {
		t.Errorf("unexpected stored turn: %s", stored)
	}
}

func TestAppend_StoreError(t *testing.T) {
	ms := &mockStore{
		rpushFn: func(_ context.Context, _ string, _ []byte, _ int64, _ time.Duration) error {
			return errors.New("READONLY")
		},
	}
	repo := New(ms, "x:", 0, 0)

	if err := repo.Append(context.Background(), "s", testTurn()); err == nil {
		t.Fatal("expected error")
	}
}

func TestList(t *testing.T) {
	first, _ := json.Marshal(testTurn())
	second := testTurn()
	second.MessageID = "msg-2"
	secondRaw, _ := json.Marshal(second)

	ms := &mockStore{
		lrangeFn: func(_ context.Context, key string, start, stop int64) ([][]byte, error) {
			if key != "t:session:s1" || start != 0 || stop != -1 {
				t.Errorf("unexpected lrange %s %d..%d", key, start, stop)
			}
			return [][]byte{first, secondRaw}, nil
		},
	}
	repo := New(ms, "t:", 10, time.Hour)

	turns, err := repo.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 || turns[0].MessageID != "msg-1" || turns[1].MessageID != "msg-2" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if turns[0].Response.Confidence == nil || *turns[0].Response.Confidence != answer.ConfidenceHigh {
		t.Errorf("confidence not restored: %v", turns[0].Response.Confidence)
	}
}

func TestList_Empty(t *testing.T) {
	repo := New(&mockStore{}, "", 0, 0)

	turns, err := repo.List(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", turns)
	}
}

func TestList_CorruptEntry(t *testing.T) {
	ms := &mockStore{
		lrangeFn: func(_ context.Context, _ string, _, _ int64) ([][]byte, error) {
			return [][]byte{[]byte("{not json")}, nil
		},
	}
	repo := New(ms, "", 0, 0)

	if _, err := repo.List(context.Background(), "s"); err == nil {
		t.Fatal("expected decode error")
	}
}
