package domain

import (
	"context"
	"testing"
)

func TestRequestUsage_Context(t *testing.T) {
	if UsageFromContext(context.Background()) != nil {
		t.Fatal("expected nil collector on a bare context")
	}

	ctx, u := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).Add(TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	UsageFromContext(ctx).Add(TokenUsage{})

	if !u.Used {
		t.Error("expected Used after Add")
	}
	if u.TotalTokens != 15 || u.PromptTokens != 10 || u.CompletionTokens != 5 {
		t.Errorf("usage = %+v", u.TokenUsage)
	}
}

func TestRequestUsage_NilSafe(t *testing.T) {
	var u *RequestUsage
	u.Add(TokenUsage{TotalTokens: 1})
}
